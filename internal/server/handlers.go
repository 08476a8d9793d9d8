package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"lexvoss/internal/audio"
	"lexvoss/internal/observe"
	"lexvoss/internal/session"
	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// ─────────────────────────────────────────────────────────────────────────────
// Stats / import / generate
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		s.badRequest(w, "no vocabulary files configured")
		return
	}
	res, err := s.importer.ImportAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	totalWords, err := s.store.WordCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	totalClusters, err := s.store.ClusterCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{
		"words_imported":    res.WordsImported,
		"clusters_imported": res.ClustersImported,
		"total_words":       totalWords,
		"total_clusters":    totalClusters,
	})
}

// handleGenerate runs a foreground generation batch. It takes the
// generation backend the same way chat does, so a running background
// build is preempted rather than raced.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Count <= 0 {
		req.Count = 10
	}

	ctx := r.Context()
	if err := s.buf.AcquireForChat(ctx); err != nil {
		s.writeError(w, err)
		return
	}

	generated := 0
	start := time.Now()
	for i := 0; i < req.Count; i++ {
		if ctx.Err() != nil {
			break
		}
		q, err := s.gen.GenerateOne(ctx)
		if err != nil {
			s.log.Warn("batch generation attempt failed", "attempt", i+1, "error", err)
			continue
		}
		if q == nil {
			continue
		}
		if err := s.store.SaveQuestion(ctx, q); err != nil {
			s.log.Warn("saving generated question failed", "question", q.ID, "error", err)
			continue
		}
		generated++
	}
	s.buf.ReleaseChat(context.WithoutCancel(ctx))
	s.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("stage", "batch")))

	bankSize, err := s.store.ReadyQuestionCount(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Pre-render narration for the fresh questions off-request.
	s.warmAudio()

	s.writeJSON(w, http.StatusOK, map[string]int{
		"generated": generated,
		"bank_size": bankSize,
	})
}

// warmAudio renders uncached question sentences in the background.
func (s *Server) warmAudio() {
	if s.narrator == nil || !s.narrator.Enabled() {
		return
	}
	go func() {
		ctx := context.Background()
		texts, err := s.store.QuestionAudioTexts(ctx)
		if err != nil {
			s.log.Warn("collecting audio texts failed", "error", err)
			return
		}
		s.narrator.Warm(ctx, texts)
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	d, err := s.composer.Start(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	s.writeJSON(w, http.StatusOK, d)
}

// answerResponse augments the composer's answer outcome with narration
// hashes for the explanation and context sentence.
type answerResponse struct {
	*session.AnswerResult
	ExplanationAudioHash string `json:"explanation_audio_hash,omitempty"`
	ContextAudioHash     string `json:"context_audio_hash,omitempty"`
}

func (s *Server) handleSessionAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID     int64   `json:"session_id"`
		SelectedIndex int     `json:"selected_index"`
		TimeSeconds   float64 `json:"time_seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	responseTime := time.Duration(req.TimeSeconds * float64(time.Second))
	res, err := s.composer.Answer(ctx, req.SessionID, req.SelectedIndex, responseTime)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordAnswer(ctx, res.Correct)
	if res.SessionComplete {
		s.metrics.ActiveSessions.Add(ctx, -1)
	}

	out := answerResponse{AnswerResult: res}
	if s.narrator != nil && s.narrator.Enabled() {
		out.ExplanationAudioHash = s.narrate(ctx, res.Explanation)
		out.ContextAudioHash = s.narrate(ctx, res.ContextSentence)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// narrate renders text and returns its hash, or "" when rendering is
// impossible. Narration failures never fail the answer.
func (s *Server) narrate(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}
	if _, err := s.narrator.GetOrCreate(ctx, text); err != nil {
		if !errors.Is(err, audio.ErrNoProvider) {
			s.log.Warn("answer narration failed", "error", err)
		}
		return ""
	}
	return audio.SentenceHash(text)
}

func (s *Server) handleSessionNext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID int64 `json:"session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	res, err := s.composer.Next(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	switch {
	case res.Question != nil:
		s.writeJSON(w, http.StatusOK, res.Question)
	case res.Generating:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"generating": true,
			"session_id": req.SessionID,
		})
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"session_complete": true,
			"session_id":       req.SessionID,
		})
	}
}

// handleSessionCurrent re-serves the undelivered question so a
// reconnecting client can resume where it left off.
func (s *Server) handleSessionCurrent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid session id")
		return
	}
	cur, err := s.composer.Current(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cur)
}

func (s *Server) handleSessionFinish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID int64 `json:"session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	summary, err := s.composer.Finish(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), -1)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_complete": true,
		"summary":          summary,
	})
}

// sessionView is the JSON shape of one historical session.
type sessionView struct {
	ID               int64      `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	QuestionsTotal   int        `json:"questions_total"`
	QuestionsCorrect int        `json:"questions_correct"`
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.SessionHistory(r.Context(), 10)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]sessionView, 0, len(history))
	for _, sess := range history {
		v := sessionView{
			ID:               sess.ID,
			StartedAt:        sess.StartedAt,
			QuestionsTotal:   sess.QuestionsTotal,
			QuestionsCorrect: sess.QuestionsCorrect,
		}
		if !sess.EndedAt.IsZero() {
			ended := sess.EndedAt
			v.EndedAt = &ended
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// ─────────────────────────────────────────────────────────────────────────────
// Question library
// ─────────────────────────────────────────────────────────────────────────────

// progressView is the JSON shape of one word's scheduling state.
type progressView struct {
	TargetWord     string     `json:"target_word"`
	ClusterTitle   string     `json:"cluster_title"`
	EasinessFactor float64    `json:"easiness_factor"`
	IntervalDays   float64    `json:"interval_days"`
	Repetitions    int        `json:"repetitions"`
	NextReview     time.Time  `json:"next_review"`
	LastReview     *time.Time `json:"last_review,omitempty"`
	TimesCorrect   int        `json:"times_correct"`
	TimesIncorrect int        `json:"times_incorrect"`
	Archived       bool       `json:"archived"`
}

func progressViews(in []vocab.WordProgress) []progressView {
	out := make([]progressView, 0, len(in))
	for _, p := range in {
		v := progressView{
			TargetWord:     p.Word,
			ClusterTitle:   p.ClusterTitle,
			EasinessFactor: p.EasinessFactor,
			IntervalDays:   p.IntervalDays,
			Repetitions:    p.Repetitions,
			NextReview:     p.NextReview,
			TimesCorrect:   p.TotalCorrect,
			TimesIncorrect: p.TotalIncorrect,
			Archived:       p.Archived,
		}
		if !p.LastReview.IsZero() {
			last := p.LastReview
			v.LastReview = &last
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) handleQuestionsActive(w http.ResponseWriter, r *http.Request) {
	active, err := s.store.ActiveProgress(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progressViews(active))
}

func (s *Server) handleQuestionsArchived(w http.ResponseWriter, r *http.Request) {
	archived, err := s.store.ArchivedProgress(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progressViews(archived))
}

func (s *Server) handleResetDue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word         string `json:"word"`
		ClusterTitle string `json:"cluster_title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Word == "" {
		s.badRequest(w, "no word provided")
		return
	}
	if err := s.store.ResetWordDue(r.Context(), req.Word, req.ClusterTitle); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleArchiveOverride forces a (word, cluster) pair in or out of the
// archive regardless of its interval.
func (s *Server) handleArchiveOverride(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Word         string `json:"word"`
		ClusterTitle string `json:"cluster_title"`
		Archived     *bool  `json:"archived"`
	}{}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Word == "" {
		s.badRequest(w, "no word provided")
		return
	}
	archived := true
	if req.Archived != nil {
		archived = *req.Archived
	}

	ctx := r.Context()
	if err := s.store.SetWordArchived(ctx, req.Word, req.ClusterTitle, archived); err != nil {
		s.writeError(w, err)
		return
	}
	// Archiving shrinks the eligible pool; un-archiving raises demand.
	if err := s.buf.Check(ctx); err != nil {
		s.log.Warn("buffer check after archive override failed", "error", err)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"word":          req.Word,
		"cluster_title": req.ClusterTitle,
		"archived":      archived,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Audio
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.narrator == nil {
		http.NotFound(w, r)
		return
	}
	file := r.PathValue("file")
	hash, ok := strings.CutSuffix(file, ".mp3")
	if !ok || hash == "" {
		http.NotFound(w, r)
		return
	}

	p, err := s.narrator.CachedPath(r.Context(), hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, p)
}

func (s *Server) handleTTSGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	clean := audio.StripMarkdown(req.Text)
	if clean == "" {
		s.badRequest(w, "no text provided")
		return
	}
	if s.narrator == nil {
		s.writeError(w, audio.ErrNoProvider)
		return
	}

	start := time.Now()
	if _, err := s.narrator.GetOrCreate(r.Context(), clean); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.TTSDuration.Record(r.Context(), time.Since(start).Seconds())
	s.writeJSON(w, http.StatusOK, map[string]string{
		"audio_hash": audio.SentenceHash(clean),
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// settingsView is the runtime-tunable configuration as served over the
// API.
type settingsView struct {
	SessionSize         int  `json:"session_size"`
	MinReadyQuestions   int  `json:"min_ready_questions"`
	ArchiveIntervalDays int  `json:"archive_interval_days"`
	TTSEnabled          bool `json:"tts_enabled"`
}

func (s *Server) settingsSnapshot() settingsView {
	tc := s.trainingSnapshot()
	return settingsView{
		SessionSize:         tc.SessionSize,
		MinReadyQuestions:   tc.MinReadyQuestions,
		ArchiveIntervalDays: tc.ArchiveIntervalDays,
		TTSEnabled:          s.narrator != nil && s.narrator.Enabled(),
	}
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settingsSnapshot())
}

// handleSettingsPut applies a partial settings update. Unknown fields
// are ignored; omitted fields keep their value.
func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionSize         *int `json:"session_size"`
		MinReadyQuestions   *int `json:"min_ready_questions"`
		ArchiveIntervalDays *int `json:"archive_interval_days"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	tc := s.trainingSnapshot()
	if req.SessionSize != nil {
		if *req.SessionSize <= 0 {
			s.badRequest(w, fmt.Sprintf("session_size must be positive, got %d", *req.SessionSize))
			return
		}
		tc.SessionSize = *req.SessionSize
	}
	if req.MinReadyQuestions != nil {
		if *req.MinReadyQuestions <= 0 {
			s.badRequest(w, fmt.Sprintf("min_ready_questions must be positive, got %d", *req.MinReadyQuestions))
			return
		}
		tc.MinReadyQuestions = *req.MinReadyQuestions
	}
	if req.ArchiveIntervalDays != nil {
		if *req.ArchiveIntervalDays <= 0 {
			s.badRequest(w, fmt.Sprintf("archive_interval_days must be positive, got %d", *req.ArchiveIntervalDays))
			return
		}
		tc.ArchiveIntervalDays = *req.ArchiveIntervalDays
	}
	s.ApplyTraining(tc)

	// A lower floor never cancels a build; a higher one may start one.
	if err := s.buf.Check(r.Context()); err != nil {
		s.log.Warn("buffer check after settings update failed", "error", err)
	}
	s.writeJSON(w, http.StatusOK, s.settingsSnapshot())
}
