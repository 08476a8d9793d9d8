package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"

	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the central PostgreSQL-backed trainer store. It holds a single
// [pgxpool.Pool] and implements every sub-interface of [store.Store]
// directly.
//
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure all required
// tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping implements [store.Store]. It verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}

// Stats implements [store.Store]. It assembles the aggregate progress
// snapshot in a single round trip of scalar subqueries.
func (s *Store) Stats(ctx context.Context) (vocab.Stats, error) {
	const q = `
		SELECT
		    (SELECT COUNT(*) FROM words),
		    (SELECT COUNT(*) FROM clusters),
		    (SELECT COUNT(*) FROM word_progress),
		    (SELECT COUNT(*) FROM word_progress WHERE NOT archived AND next_review <= now()),
		    (SELECT COUNT(*) FROM questions),
		    (SELECT COUNT(*) FROM questions WHERE answered_at IS NULL),
		    (SELECT COUNT(*) FROM word_progress WHERE archived),
		    (SELECT COUNT(*) FROM word_progress WHERE NOT archived),
		    (SELECT COUNT(*) FROM sessions),
		    (SELECT COALESCE(SUM(total_correct), 0) FROM word_progress),
		    (SELECT COALESCE(SUM(total_correct + total_incorrect), 0) FROM word_progress)`

	var st vocab.Stats
	err := s.pool.QueryRow(ctx, q).Scan(
		&st.TotalWords,
		&st.TotalClusters,
		&st.WordsReviewed,
		&st.WordsDue,
		&st.QuestionBankSize,
		&st.QuestionsReady,
		&st.QuestionsArchived,
		&st.ActiveWords,
		&st.TotalSessions,
		&st.TotalCorrect,
		&st.TotalAnswered,
	)
	if err != nil {
		return vocab.Stats{}, fmt.Errorf("postgres store: stats: %w", err)
	}

	st.WordsNew = st.TotalWords - st.WordsReviewed
	if st.TotalAnswered > 0 {
		st.Accuracy = math.Round(float64(st.TotalCorrect)/float64(st.TotalAnswered)*1000) / 10
	}
	return st, nil
}
