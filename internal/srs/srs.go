// Package srs implements the SM-2 spaced repetition variant that drives
// the review schedule: quality scoring from answer outcome and response
// time, the SM-2 state update with an easiness-factor floor, overdue
// credit for late-but-correct reviews, and the mastery archival policy.
package srs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"lexvoss/internal/store"
)

// OverdueDampening is the credit factor for late correct reviews: the
// scheduled interval is boosted by half the overdue period before
// feeding into SM-2.
const OverdueDampening = 0.5

// Default SM-2 state for a pair seen for the first time.
const (
	DefaultEasiness = 2.5
	DefaultInterval = 1.0
)

// minEasiness is the SM-2 EF floor.
const minEasiness = 1.3

// State is the SM-2 triple for one (word, cluster) pair.
type State struct {
	EasinessFactor float64
	IntervalDays   float64
	Repetitions    int
}

// Update applies the SM-2 recurrence to s for a review of the given
// quality (0..5, clamped). Quality below 3 resets the repetition streak
// and the interval; otherwise the interval grows 1 → 6 → interval·EF.
func Update(s State, quality int) State {
	if quality < 0 {
		quality = 0
	}
	if quality > 5 {
		quality = 5
	}

	q := float64(quality)
	ef := s.EasinessFactor + (0.1 - (5-q)*(0.08+(5-q)*0.02))
	if ef < minEasiness {
		ef = minEasiness
	}

	out := State{EasinessFactor: ef}
	if quality < 3 {
		out.Repetitions = 0
		out.IntervalDays = 1.0
		return out
	}

	out.Repetitions = s.Repetitions + 1
	switch out.Repetitions {
	case 1:
		out.IntervalDays = 1.0
	case 2:
		out.IntervalDays = 6.0
	default:
		out.IntervalDays = s.IntervalDays * ef
	}
	return out
}

// Quality maps an answer outcome to an SM-2 quality score. Response
// time, when known, grades correct answers: under 3s is instant recall,
// under 8s minor hesitation, anything slower significant difficulty.
func Quality(correct bool, responseTime time.Duration) int {
	if !correct {
		return 1
	}
	if responseTime <= 0 {
		return 4
	}
	switch {
	case responseTime < 3*time.Second:
		return 5
	case responseTime < 8*time.Second:
		return 4
	default:
		return 3
	}
}

// Result reports the outcome of recording one review.
type Result struct {
	Archived         bool      `json:"archived"`
	Reason           string    `json:"reason"`
	IntervalDays     float64   `json:"interval_days"`
	ArchiveThreshold int       `json:"archive_threshold"`
	EasinessFactor   float64   `json:"easiness_factor"`
	Repetitions      int       `json:"repetitions"`
	NextReview       time.Time `json:"next_review"`
}

// Engine records reviews against the store. now is swappable for tests.
type Engine struct {
	store               store.ProgressStore
	archiveIntervalDays atomic.Int32
	log                 *slog.Logger
	now                 func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Tests use this to pin
// overdue calculations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an Engine over st. Pairs whose post-review interval
// reaches archiveIntervalDays on a correct answer are archived.
func NewEngine(st store.ProgressStore, archiveIntervalDays int, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		store: st,
		log:   log,
		now:   time.Now,
	}
	e.archiveIntervalDays.Store(int32(archiveIntervalDays))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetArchiveInterval updates the mastery threshold at runtime.
func (e *Engine) SetArchiveInterval(days int) {
	if days > 0 {
		e.archiveIntervalDays.Store(int32(days))
	}
}

// RecordReview records a review of a (word, cluster) pair. When the pair
// is overdue and the answer was correct, the scheduled interval gains
// half the overdue period before the SM-2 update, so a late successful
// recall schedules further out than an on-time one.
func (e *Engine) RecordReview(ctx context.Context, word, clusterTitle string, quality int) (Result, error) {
	st := State{EasinessFactor: DefaultEasiness, IntervalDays: DefaultInterval}

	prev, err := e.store.WordProgress(ctx, word, clusterTitle)
	switch {
	case err == nil:
		st = State{
			EasinessFactor: prev.EasinessFactor,
			IntervalDays:   prev.IntervalDays,
			Repetitions:    prev.Repetitions,
		}
		if quality >= 3 && !prev.NextReview.IsZero() {
			if overdue := e.now().Sub(prev.NextReview); overdue > 0 {
				st.IntervalDays += overdue.Hours() / 24 * OverdueDampening
			}
		}
	case errors.Is(err, store.ErrNotFound):
		// first review of this pair
	default:
		return Result{}, fmt.Errorf("srs: load progress for %q/%q: %w", word, clusterTitle, err)
	}

	next := Update(st, quality)
	nextReview := e.now().Add(time.Duration(next.IntervalDays * 24 * float64(time.Hour)))
	correct := quality >= 3

	if err := e.store.UpsertWordProgress(ctx, word, clusterTitle,
		next.EasinessFactor, next.IntervalDays, next.Repetitions, nextReview, correct); err != nil {
		return Result{}, fmt.Errorf("srs: save progress for %q/%q: %w", word, clusterTitle, err)
	}

	threshold := int(e.archiveIntervalDays.Load())
	res := Result{
		IntervalDays:     next.IntervalDays,
		ArchiveThreshold: threshold,
		EasinessFactor:   next.EasinessFactor,
		Repetitions:      next.Repetitions,
		NextReview:       nextReview,
	}

	if correct && next.IntervalDays >= float64(threshold) {
		if err := e.store.SetWordArchived(ctx, word, clusterTitle, true); err != nil {
			return Result{}, fmt.Errorf("srs: archive %q/%q: %w", word, clusterTitle, err)
		}
		res.Archived = true
		res.Reason = fmt.Sprintf("Mastered (interval %.0f days)", next.IntervalDays)
		e.log.Info("word archived",
			"word", word,
			"cluster", clusterTitle,
			"interval_days", next.IntervalDays)
	}

	return res, nil
}
