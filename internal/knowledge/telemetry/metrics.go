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

// Package telemetry exposes the knowledge core's Prometheus metrics. All
// observation functions are safe to call from hot paths and keep label
// cardinality fixed: no per-key or per-query labels.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udo_sync_events_total",
		Help: "Total events accepted by sync_event",
	})
	flushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udo_flushes_total",
		Help: "Total non-empty batch flushes persisted to the vault",
	})
	flushErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udo_flush_errors_total",
		Help: "Total flush attempts that failed after exhausting retries",
	})
	eventsPerBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "udo_events_per_batch",
		Help:    "Distribution of events coalesced into one persisted note",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})
	flushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "udo_flush_duration_seconds",
		Help:    "Wall time of one flush, including retries",
		Buckets: prometheus.DefBuckets,
	})
	pendingEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "udo_pending_events",
		Help: "Events currently waiting in the debounce queue",
	})
	deadLetterTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udo_dead_letter_events_total",
		Help: "Events dropped to the dead-letter log (flush failure or queue cap)",
	})
	searchTierDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "udo_search_tier_duration_seconds",
		Help:    "Per-tier search latency",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1},
	}, []string{"tier"})
	searchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udo_searches_total",
		Help: "Total search_knowledge invocations",
	})
	resolutionHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "udo_error_resolutions_total",
		Help: "Tier-1 error resolution lookups by outcome",
	}, []string{"outcome"})
	breakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "udo_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
	})
	docCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "udo_doc_cache_total",
		Help: "Parsed-note cache lookups by result",
	}, []string{"result"})
)

func init() {
	// Eager global registration, same trade-off as any single-process service:
	// harmless when no /metrics endpoint is exposed.
	prometheus.MustRegister(
		eventsTotal, flushesTotal, flushErrorsTotal, eventsPerBatch,
		flushDuration, pendingEvents, deadLetterTotal,
		searchTierDuration, searchesTotal, resolutionHitsTotal, breakerState,
		docCacheTotal,
	)
}

// ObserveEvent records one accepted sync_event.
func ObserveEvent() { eventsTotal.Inc() }

// ObserveFlush records one persisted batch of the given size.
func ObserveFlush(events int, d time.Duration) {
	flushesTotal.Inc()
	eventsPerBatch.Observe(float64(events))
	flushDuration.Observe(d.Seconds())
}

// ObserveFlushError records a flush that exhausted its retries.
func ObserveFlushError() { flushErrorsTotal.Inc() }

// SetPending publishes the current debounce-queue depth.
func SetPending(n int) { pendingEvents.Set(float64(n)) }

// ObserveDeadLetter records n events dropped to the dead-letter log.
func ObserveDeadLetter(n int) { deadLetterTotal.Add(float64(n)) }

// ObserveSearchTier records the latency of one search tier
// ("filename", "frontmatter", "content").
func ObserveSearchTier(tier string, d time.Duration) {
	searchTierDuration.WithLabelValues(tier).Observe(d.Seconds())
}

// ObserveSearch records one completed search.
func ObserveSearch() { searchesTotal.Inc() }

// ObserveResolution records a tier-1 resolution lookup outcome
// ("hit" or "miss").
func ObserveResolution(outcome string) { resolutionHitsTotal.WithLabelValues(outcome).Inc() }

// SetBreakerState publishes the numeric breaker state.
func SetBreakerState(state int) { breakerState.Set(float64(state)) }

// ObserveDocCache records one parsed-note cache lookup.
func ObserveDocCache(hit bool) {
	if hit {
		docCacheTotal.WithLabelValues("hit").Inc()
	} else {
		docCacheTotal.WithLabelValues("miss").Inc()
	}
}

// Serve exposes /metrics on its own listener in a background goroutine.
// Leave addr empty to skip; callers already serving promhttp elsewhere
// should not use this.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
