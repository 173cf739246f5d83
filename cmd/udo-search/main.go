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

// Package main is a one-shot query tool over a vault: run the three-tier
// search (or the error-resolution lookup with -resolve) directly against the
// note files, no daemon required.
//
// Usage examples:
//
//	udo-search -vault_root=$HOME/vault "connection refused docker"
//	udo-search -resolve "ModuleNotFoundError: No module named 'pandas'"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"udo/internal/knowledge/search"
	"udo/internal/knowledge/vault"
)

func main() {
	var (
		vaultRoot = flag.String("vault_root", "", "Vault root directory (default: $OBSIDIAN_VAULT_PATH)")
		dailyDir  = flag.String("daily_dir", "", "Per-date directory under the vault root (default: daily)")
		maxN      = flag.Int("max", search.DefaultMaxResults, "Maximum results")
		minScore  = flag.Float64("min_score", 0, "Minimum relevance (default 1.0)")
		errorType = flag.String("error_type", "", "Frontmatter error_type constraint")
		resolve   = flag.Bool("resolve", false, "Treat the argument as a raw error string and look up a past solution")
		asJSON    = flag.Bool("json", false, "Emit JSON instead of text")
		timeout   = flag.Duration("timeout", 10*time.Second, "Query timeout")
	)
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: udo-search [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	store := vault.New(vault.Config{Root: *vaultRoot, DailyDir: *dailyDir}, log)
	if !store.Available() {
		fmt.Fprintln(os.Stderr, "no vault found; set -vault_root or OBSIDIAN_VAULT_PATH")
		os.Exit(1)
	}
	searcher := search.New(store, search.Config{MinScore: *minScore}, nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *resolve {
		res, err := searcher.Resolve(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve failed: %v\n", err)
			os.Exit(1)
		}
		if res == nil {
			fmt.Println("no past solution found")
			os.Exit(1)
		}
		if *asJSON {
			printJSON(res)
			return
		}
		fmt.Printf("solution (%s, %v):\n%s\n", res.NotePath, res.Latency.Truncate(time.Millisecond), res.Solution)
		return
	}

	results, err := searcher.Search(ctx, query, *errorType, *maxN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%2d. %-50s relevance=%.1f (t1=%.0f t2=%.0f t3=%.1f fresh=%.0f useful=%.1f)\n",
			i+1, r.DocumentID, r.Relevance, r.Tier1Score, r.Tier2Score, r.Tier3Score, r.FreshnessBonus, r.Usefulness)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}
}
