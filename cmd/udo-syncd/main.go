// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the knowledge-sync daemon: it owns one core, serves the
// HTTP API over it, and shuts down cleanly so a terminal flush always runs
// before exit.
//
// Typical invocation:
//
//	udo-syncd -vault_root=$HOME/vault -http_addr=:8080 -window=3s
//
// With no -vault_root the OBSIDIAN_VAULT_PATH environment variable is
// consulted; with neither, the daemon still runs, accepting and counting
// events without persisting notes.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"udo"
	"udo/internal/knowledge/api"
	"udo/internal/knowledge/syncer"
)

func main() {
	var (
		vaultRoot  = flag.String("vault_root", "", "Vault root directory (default: $OBSIDIAN_VAULT_PATH)")
		dailyDir   = flag.String("daily_dir", "", "Per-date directory under the vault root (default: daily)")
		project    = flag.String("project", "", "Project name for belief-tracker state (default: default)")
		window     = flag.Duration("window", syncer.DefaultWindow, "Event debounce window")
		maxPending = flag.Int("max_pending", 0, "Pending-event queue cap (default 10000)")
		backupIvl  = flag.Duration("backup_interval", syncer.DefaultBackupInterval, "Periodic-backup probe interval")
		backupRepo = flag.String("backup_repo", "", "Git working tree probed for uncommitted changes; empty disables periodic backups")
		redisAddr  = flag.String("redis_addr", "", "Redis address for usefulness scores; empty uses the in-process aggregator")
		httpAddr   = flag.String("http_addr", ":8080", "HTTP listen address")
		metricsAdr = flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
		minScore   = flag.Float64("search_min_score", 0, "Minimum relevance for search results (default 1.0)")
		logLevel   = flag.String("log_level", "info", "Log level: trace|debug|info|warn|error")
		logPretty  = flag.Bool("log_pretty", false, "Human-readable console logging instead of JSON")
	)
	flag.Parse()

	log := buildLogger(*logLevel, *logPretty)

	cfg := udo.Config{
		VaultRoot:      *vaultRoot,
		DailyDir:       *dailyDir,
		Project:        *project,
		Window:         *window,
		MaxPending:     *maxPending,
		BackupInterval: *backupIvl,
		RedisAddr:      *redisAddr,
		MetricsAddr:    *metricsAdr,
		SearchMinScore: *minScore,
	}
	if *backupRepo != "" {
		cfg.Probe = gitChangesProbe(*backupRepo)
	}

	core, err := udo.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("core construction failed")
	}
	if err := core.Start(); err != nil {
		log.Fatal().Err(err).Msg("core start failed")
	}

	httpServer := api.NewServer(core, log).HTTPServer(*httpAddr)
	go func() {
		log.Info().Str("addr", *httpAddr).Msg("knowledge API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", *httpAddr).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")

	// Stop the HTTP surface first so no producer races the terminal flush,
	// then stop the core: its Stop runs the final flush and persists state.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := core.Stop(); err != nil {
		log.Error().Err(err).Msg("core stop failed")
	}

	stats := core.Statistics()
	log.Info().
		Int64("events", stats.TotalEvents).
		Int64("notes", stats.TotalSyncs).
		Float64("batching_rate", stats.BatchingRate).
		Int64("dead_letter_events", stats.DeadLetterEvents).
		Msg("final sync statistics")
}

func buildLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

// gitChangesProbe reports whether the working tree has uncommitted changes.
// Any git failure (not a repo, binary missing) reads as "no changes" after
// the coordinator logs it.
func gitChangesProbe(repo string) syncer.Probe {
	return func(ctx context.Context) (bool, error) {
		cmd := exec.CommandContext(ctx, "git", "-C", repo, "status", "--porcelain")
		out, err := cmd.Output()
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(string(out)) != "", nil
	}
}
