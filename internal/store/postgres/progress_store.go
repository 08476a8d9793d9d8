package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

const progressCols = `word, cluster_title, easiness_factor, interval_days,
	repetitions, next_review, last_review, total_correct, total_incorrect, archived`

// WordProgress implements [store.ProgressStore].
func (s *Store) WordProgress(ctx context.Context, word, clusterTitle string) (*vocab.WordProgress, error) {
	q := `
		SELECT ` + progressCols + `
		FROM   word_progress
		WHERE  word = $1 AND cluster_title = $2`

	row, err := s.pool.Query(ctx, q, word, clusterTitle)
	if err != nil {
		return nil, fmt.Errorf("progress store: query: %w", err)
	}
	wp, err := pgx.CollectOneRow(row, scanProgress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("progress store: by pair: %w", err)
	}
	return &wp, nil
}

// UpsertWordProgress implements [store.ProgressStore]. The insert path
// seeds the outcome counters from the correct flag; the update path
// overwrites the SRS fields and increments the matching counter.
func (s *Store) UpsertWordProgress(ctx context.Context, word, clusterTitle string, ef, intervalDays float64, repetitions int, nextReview time.Time, correct bool) error {
	const q = `
		INSERT INTO word_progress
		    (word, cluster_title, easiness_factor, interval_days, repetitions,
		     next_review, last_review, total_correct, total_incorrect)
		VALUES ($1, $2, $3, $4, $5, $6, now(),
		        CASE WHEN $7 THEN 1 ELSE 0 END,
		        CASE WHEN $7 THEN 0 ELSE 1 END)
		ON CONFLICT (word, cluster_title) DO UPDATE SET
		    easiness_factor = EXCLUDED.easiness_factor,
		    interval_days   = EXCLUDED.interval_days,
		    repetitions     = EXCLUDED.repetitions,
		    next_review     = EXCLUDED.next_review,
		    last_review     = now(),
		    total_correct   = word_progress.total_correct   + CASE WHEN $7 THEN 1 ELSE 0 END,
		    total_incorrect = word_progress.total_incorrect + CASE WHEN $7 THEN 0 ELSE 1 END`

	_, err := s.pool.Exec(ctx, q, word, clusterTitle, ef, intervalDays, repetitions, nextReview, correct)
	if err != nil {
		return fmt.Errorf("progress store: upsert: %w", err)
	}
	return nil
}

// SetWordArchived implements [store.ProgressStore]. The SRS fields are
// left untouched so restoring resumes the previous schedule.
func (s *Store) SetWordArchived(ctx context.Context, word, clusterTitle string, archived bool) error {
	const q = `
		UPDATE word_progress
		SET    archived = $3
		WHERE  word = $1 AND cluster_title = $2`

	tag, err := s.pool.Exec(ctx, q, word, clusterTitle, archived)
	if err != nil {
		return fmt.Errorf("progress store: set archived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ResetWordDue implements [store.ProgressStore]. An empty clusterTitle
// resets the word across every cluster it appears in. Unknown pairs are
// a no-op.
func (s *Store) ResetWordDue(ctx context.Context, word, clusterTitle string) error {
	const base = `
		UPDATE word_progress
		SET    next_review = now() + interval '1 day',
		       interval_days = 1.0,
		       repetitions = 0
		WHERE  LOWER(word) = LOWER($1)`

	var err error
	if clusterTitle != "" {
		_, err = s.pool.Exec(ctx, base+` AND cluster_title = $2`, word, clusterTitle)
	} else {
		_, err = s.pool.Exec(ctx, base, word)
	}
	if err != nil {
		return fmt.Errorf("progress store: reset due: %w", err)
	}
	return nil
}

// ActiveProgress implements [store.ProgressStore].
func (s *Store) ActiveProgress(ctx context.Context) ([]vocab.WordProgress, error) {
	q := `
		SELECT ` + progressCols + `
		FROM   word_progress
		WHERE  NOT archived
		ORDER  BY next_review ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("progress store: active: %w", err)
	}
	return collectProgress(rows)
}

// ArchivedProgress implements [store.ProgressStore].
func (s *Store) ArchivedProgress(ctx context.Context) ([]vocab.WordProgress, error) {
	q := `
		SELECT ` + progressCols + `
		FROM   word_progress
		WHERE  archived
		ORDER  BY last_review DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("progress store: archived: %w", err)
	}
	return collectProgress(rows)
}

func scanProgress(row pgx.CollectableRow) (vocab.WordProgress, error) {
	var wp vocab.WordProgress
	err := row.Scan(
		&wp.Word,
		&wp.ClusterTitle,
		&wp.EasinessFactor,
		&wp.IntervalDays,
		&wp.Repetitions,
		&wp.NextReview,
		&wp.LastReview,
		&wp.TotalCorrect,
		&wp.TotalIncorrect,
		&wp.Archived,
	)
	return wp, err
}

func collectProgress(rows pgx.Rows) ([]vocab.WordProgress, error) {
	progress, err := pgx.CollectRows(rows, scanProgress)
	if err != nil {
		return nil, fmt.Errorf("progress store: scan rows: %w", err)
	}
	if progress == nil {
		progress = []vocab.WordProgress{}
	}
	return progress, nil
}
