package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// StartSession implements [store.SessionStore].
func (s *Store) StartSession(ctx context.Context) (int64, error) {
	const q = `INSERT INTO sessions DEFAULT VALUES RETURNING id`

	var id int64
	if err := s.pool.QueryRow(ctx, q).Scan(&id); err != nil {
		return 0, fmt.Errorf("session store: start: %w", err)
	}
	return id, nil
}

// EndSession implements [store.SessionStore].
func (s *Store) EndSession(ctx context.Context, id int64, total, correct int) error {
	const q = `
		UPDATE sessions
		SET    ended_at = now(), questions_total = $2, questions_correct = $3
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, total, correct)
	if err != nil {
		return fmt.Errorf("session store: end: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SessionHistory implements [store.SessionStore].
func (s *Store) SessionHistory(ctx context.Context, limit int) ([]vocab.Session, error) {
	const q = `
		SELECT id, started_at, ended_at, questions_total, questions_correct
		FROM   sessions
		ORDER  BY id DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("session store: history: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.Session, error) {
		var (
			sess    vocab.Session
			endedAt *time.Time
		)
		if err := row.Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.QuestionsTotal, &sess.QuestionsCorrect); err != nil {
			return vocab.Session{}, err
		}
		if endedAt != nil {
			sess.EndedAt = *endedAt
		}
		return sess, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session store: scan rows: %w", err)
	}
	if sessions == nil {
		sessions = []vocab.Session{}
	}
	return sessions, nil
}
