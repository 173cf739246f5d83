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

// Package api exposes the knowledge core over HTTP. It translates requests
// into core operations and core results into JSON; all policy (debouncing,
// ranking, degradation) lives below it.
package api

import (
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"udo"
	"udo/internal/knowledge/search"
)

// Server handles the HTTP surface for one core.
type Server struct {
	core *udo.Core
	log  zerolog.Logger
}

// NewServer wraps a started core.
func NewServer(core *udo.Core, log zerolog.Logger) *Server {
	return &Server{
		core: core,
		log:  log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /flush", s.handleFlush)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /resolve", s.handleResolve)
	mux.HandleFunc("POST /resolutions", s.handleSaveResolution)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("GET /notes/recent", s.handleRecentNotes)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("POST /beliefs/update", s.handleBeliefUpdate)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type syncRequest struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// handleSync enqueues one event. 202: the event is queued, not yet on disk.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EventType == "" {
		s.writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if err := s.core.SyncEvent(req.EventType, req.Data); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	n, err := s.core.ForceFlush(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"events_flushed": n})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	maxResults := 0
	if raw := q.Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "max must be an integer")
			return
		}
		maxResults = n
	}

	results, err := s.core.SearchKnowledge(r.Context(), query, maxResults, q.Get("error_type"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleResolve is the past-solution lookup. A miss is 404 with a JSON body,
// not an error: clients fall through to their slower tiers on it.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	errStr := r.URL.Query().Get("error")
	if errStr == "" {
		s.writeError(w, http.StatusBadRequest, "error is required")
		return
	}
	res, err := s.core.ResolveErrorTier1(r.Context(), errStr)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"status": "miss"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"solution":   res.Solution,
		"note_path":  res.NotePath,
		"latency_ms": res.Latency.Milliseconds(),
	})
}

type resolutionRequest struct {
	Error    string         `json:"error"`
	Solution string         `json:"solution"`
	Context  map[string]any `json:"context"`
}

func (s *Server) handleSaveResolution(w http.ResponseWriter, r *http.Request) {
	var req resolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Error == "" || req.Solution == "" {
		s.writeError(w, http.StatusBadRequest, "error and solution are required")
		return
	}
	if err := s.core.SaveErrorResolution(req.Error, req.Solution, req.Context); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type feedbackRequest struct {
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
}

var feedbackKinds = map[string]search.Feedback{
	"helpful":         search.FeedbackHelpful,
	"implicit_accept": search.FeedbackImplicitAccept,
	"unhelpful":       search.FeedbackUnhelpful,
	"implicit_reject": search.FeedbackImplicitReject,
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	kind, ok := feedbackKinds[req.Kind]
	if !ok || req.DocumentID == "" {
		s.writeError(w, http.StatusBadRequest, "document_id and a known kind are required")
		return
	}
	s.core.RecordFeedback(req.DocumentID, kind)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleRecentNotes(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}
	notes, err := s.core.RecentNotes(days)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type noteSummary struct {
		Name string    `json:"name"`
		Path string    `json:"path"`
		Date time.Time `json:"date"`
		Size int64     `json:"size"`
	}
	out := make([]noteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, noteSummary{Name: n.Name, Path: n.Path, Date: n.Date, Size: n.Size})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notes": out})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.core.Statistics())
}

type predictRequest struct {
	Phase   string             `json:"phase"`
	Current map[string]float64 `json:"current"`
	Horizon int                `json:"horizon"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Phase == "" {
		s.writeError(w, http.StatusBadRequest, "phase is required")
		return
	}
	pred := s.core.Predict(req.Phase, req.Current, req.Horizon)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"prediction": pred,
		"bias":       s.core.BiasProfile(req.Phase),
	})
}

type beliefUpdateRequest struct {
	Phase    string             `json:"phase"`
	Observed map[string]float64 `json:"observed"`
	Success  bool               `json:"success"`
}

// handleBeliefUpdate scores the phase's latest prediction against an
// observed vector. The prediction is re-derived server-side so clients never
// have to round-trip forecast payloads.
func (s *Server) handleBeliefUpdate(w http.ResponseWriter, r *http.Request) {
	var req beliefUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Phase == "" || len(req.Observed) == 0 {
		s.writeError(w, http.StatusBadRequest, "phase and observed are required")
		return
	}
	pred := s.core.Predict(req.Phase, nil, 1)
	s.core.UpdateBelief(req.Phase, pred, req.Observed, req.Success)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "updated",
		"bias":   s.core.BiasProfile(req.Phase),
	})
}

// handleHealthz reports liveness plus the vault's availability; a degraded
// vault is still a 200 because the core keeps accepting events without it.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	stats := s.core.Statistics()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"vault_available": stats.VaultAvailable,
		"pending_events":  stats.PendingEvents,
	})
}

// ListenAndServe starts the HTTP server on the specified address.
func (s *Server) ListenAndServe(addr string) error {
	srv := s.HTTPServer(addr)
	s.log.Info().Str("addr", addr).Msg("knowledge API listening")
	return srv.ListenAndServe()
}

// HTTPServer builds the configured http.Server so callers can own its
// shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
