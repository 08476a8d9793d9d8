// Package server exposes the training API over HTTP: stats and import,
// question generation, session flow with a per-session SSE progress
// stream, the question library, audio narration, runtime settings, and
// the streaming chat tutor.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"lexvoss/internal/audio"
	"lexvoss/internal/buffer"
	"lexvoss/internal/config"
	"lexvoss/internal/importer"
	"lexvoss/internal/observe"
	"lexvoss/internal/session"
	"lexvoss/internal/srs"
	"lexvoss/internal/store"
	"lexvoss/pkg/provider/llm"
)

// Options carries the server's collaborators. Store, Composer, Buffer,
// and SRS are required; the rest degrade gracefully when absent.
type Options struct {
	Store    store.Store
	Composer *session.Composer
	Buffer   *buffer.Controller
	SRS      *srs.Engine

	// Generator serves the foreground batch-generation endpoint. It
	// shares the backend with the buffer controller's builds.
	Generator buffer.Generator

	// Chat is the completion backend for the tutor chat stream. When
	// nil the chat endpoint reports the backend as unavailable.
	Chat llm.Provider

	Narrator *audio.Narrator
	Importer *importer.Importer
	Metrics  *observe.Metrics
	Training config.TrainingConfig
	Log      *slog.Logger
}

// Server is the HTTP handler set for the training API.
type Server struct {
	store    store.Store
	composer *session.Composer
	buf      *buffer.Controller
	srs      *srs.Engine
	gen      buffer.Generator
	chat     llm.Provider
	narrator *audio.Narrator
	importer *importer.Importer
	metrics  *observe.Metrics
	log      *slog.Logger

	mu       sync.Mutex
	training config.TrainingConfig
}

// New builds a Server from opts.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{
		store:    opts.Store,
		composer: opts.Composer,
		buf:      opts.Buffer,
		srs:      opts.SRS,
		gen:      opts.Generator,
		chat:     opts.Chat,
		narrator: opts.Narrator,
		importer: opts.Importer,
		metrics:  m,
		log:      log,
		training: opts.Training,
	}
}

// Register mounts every API route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)

	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/answer", s.handleSessionAnswer)
	mux.HandleFunc("POST /api/session/next", s.handleSessionNext)
	mux.HandleFunc("POST /api/session/finish", s.handleSessionFinish)
	mux.HandleFunc("GET /api/session/summary", s.handleSessionSummary)
	mux.HandleFunc("GET /api/session/{id}/current", s.handleSessionCurrent)
	mux.HandleFunc("GET /api/session/{id}/events", s.handleSessionEvents)

	mux.HandleFunc("GET /api/questions/active", s.handleQuestionsActive)
	mux.HandleFunc("GET /api/questions/archived", s.handleQuestionsArchived)
	mux.HandleFunc("POST /api/questions/reset-due", s.handleResetDue)
	mux.HandleFunc("POST /api/words/archive", s.handleArchiveOverride)

	mux.HandleFunc("GET /api/audio/{file}", s.handleAudio)
	mux.HandleFunc("POST /api/tts/generate", s.handleTTSGenerate)

	mux.HandleFunc("GET /api/settings", s.handleSettingsGet)
	mux.HandleFunc("PUT /api/settings", s.handleSettingsPut)

	mux.HandleFunc("POST /api/chat", s.handleChat)
}

// ApplyTraining pushes a new training configuration into the running
// components. Used by the settings endpoint and by config reloads. The
// archive interval applies to reviews recorded afterwards; session size
// applies to sessions started afterwards.
func (s *Server) ApplyTraining(tc config.TrainingConfig) {
	s.mu.Lock()
	if tc.SessionSize > 0 {
		s.training.SessionSize = tc.SessionSize
	}
	if tc.MinReadyQuestions > 0 {
		s.training.MinReadyQuestions = tc.MinReadyQuestions
	}
	if tc.ArchiveIntervalDays > 0 {
		s.training.ArchiveIntervalDays = tc.ArchiveIntervalDays
	}
	applied := s.training
	s.mu.Unlock()

	s.composer.SetSessionSize(applied.SessionSize)
	s.buf.SetMinReady(applied.MinReadyQuestions)
	s.srs.SetArchiveInterval(applied.ArchiveIntervalDays)
	s.log.Info("training settings applied",
		"session_size", applied.SessionSize,
		"min_ready_questions", applied.MinReadyQuestions,
		"archive_interval_days", applied.ArchiveIntervalDays)
}

// trainingSnapshot returns the current training configuration.
func (s *Server) trainingSnapshot() config.TrainingConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.training
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encoding response failed", "error", err)
	}
}

// writeError maps domain sentinels onto HTTP status codes and emits a
// JSON error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNoCurrentQuestion):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNoQuestions):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, audio.ErrNoProvider):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON decodes a request body, tolerating an empty body for
// endpoints whose fields are all optional.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
