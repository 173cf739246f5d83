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

// Package search is the three-tier retrieval pipeline over the vault.
// This file supplies the per-document usefulness score: an injected,
// read-only lookup in [-5, +5] aggregated from user feedback. The core has
// no feedback surface of its own, so the score arrives through a Source.
package search

import (
	"context"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"udo/internal/knowledge/telemetry"
	"udo/pkg/breaker"
)

// Usefulness bounds.
const (
	usefulnessMin = -5.0
	usefulnessMax = 5.0
)

// Feedback weights applied by the in-memory aggregator.
const (
	weightHelpful        = 1.0
	weightImplicitAccept = 0.5
	weightUnhelpful      = -1.0
	weightImplicitReject = -0.3
)

// Feedback enumerates the feedback kinds the aggregator understands.
type Feedback int

const (
	FeedbackHelpful Feedback = iota
	FeedbackImplicitAccept
	FeedbackUnhelpful
	FeedbackImplicitReject
)

// Source supplies the usefulness score for a document. Implementations must
// return 0 for unknown documents and never fail the search: errors degrade
// to 0.
type Source interface {
	Score(ctx context.Context, docID string) float64
}

// StaticSource scores every document 0. The default when no feedback store
// is wired.
type StaticSource struct{}

func (StaticSource) Score(context.Context, string) float64 { return 0 }

// MemorySource aggregates feedback in process, clamped to [-5, +5].
type MemorySource struct {
	mu     sync.Mutex
	scores map[string]float64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{scores: make(map[string]float64)}
}

// Record folds one feedback signal into the document's score.
func (m *MemorySource) Record(docID string, fb Feedback) {
	var w float64
	switch fb {
	case FeedbackHelpful:
		w = weightHelpful
	case FeedbackImplicitAccept:
		w = weightImplicitAccept
	case FeedbackUnhelpful:
		w = weightUnhelpful
	case FeedbackImplicitReject:
		w = weightImplicitReject
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.scores[docID] + w
	if s > usefulnessMax {
		s = usefulnessMax
	}
	if s < usefulnessMin {
		s = usefulnessMin
	}
	m.scores[docID] = s
}

func (m *MemorySource) Score(_ context.Context, docID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores[docID]
}

// RedisSource reads scores some external aggregator maintains under
// udo:usefulness:<docID>. Lookups run behind a circuit breaker: when Redis
// misbehaves, searches proceed with a 0 score instead of stalling.
type RedisSource struct {
	c   *redis.Client
	br  *breaker.Breaker
	log zerolog.Logger
}

const redisKeyPrefix = "udo:usefulness:"

const redisLookupTimeout = 250 * time.Millisecond

func NewRedisSource(addr string, br *breaker.Breaker, log zerolog.Logger) *RedisSource {
	return &RedisSource{
		c:   redis.NewClient(&redis.Options{Addr: addr}),
		br:  br,
		log: log.With().Str("component", "usefulness").Logger(),
	}
}

func (r *RedisSource) Score(ctx context.Context, docID string) float64 {
	ctx, cancel := context.WithTimeout(ctx, redisLookupTimeout)
	defer cancel()

	score, err := breaker.Call(ctx, r.br, func(ctx context.Context) (float64, error) {
		raw, err := r.c.Get(ctx, redisKeyPrefix+docID).Result()
		if err == redis.Nil {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(raw, 64)
	})
	telemetry.SetBreakerState(int(r.br.State()))
	if err != nil {
		r.log.Debug().Err(err).Str("doc", docID).Msg("usefulness lookup degraded to 0")
		return 0
	}
	if score > usefulnessMax {
		return usefulnessMax
	}
	if score < usefulnessMin {
		return usefulnessMin
	}
	return score
}

// BuildSource selects the usefulness provider: Redis when an address is
// configured, the in-memory aggregator otherwise. The memory source is
// returned too so the caller can wire its feedback intake.
func BuildSource(redisAddr string, br *breaker.Breaker, log zerolog.Logger) (Source, *MemorySource) {
	if redisAddr != "" {
		return NewRedisSource(redisAddr, br, log), nil
	}
	mem := NewMemorySource()
	return mem, mem
}
