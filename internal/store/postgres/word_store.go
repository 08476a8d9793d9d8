package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lexvoss/pkg/vocab"
)

// ImportWords implements [store.WordStore]. Duplicate headwords are
// ignored; the word already present wins.
func (s *Store) ImportWords(ctx context.Context, words []vocab.Word) (int, error) {
	const q = `
		INSERT INTO words (word, definition, section, source_file)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("word store: begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, w := range words {
		if _, err := tx.Exec(ctx, q, w.Word, w.Definition, w.Section, w.SourceFile); err != nil {
			return 0, fmt.Errorf("word store: import %q: %w", w.Word, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("word store: commit import: %w", err)
	}
	return len(words), nil
}

// DeleteWordsBySource implements [store.WordStore].
func (s *Store) DeleteWordsBySource(ctx context.Context, sourceFile string) (int, error) {
	const q = `DELETE FROM words WHERE source_file = $1`

	tag, err := s.pool.Exec(ctx, q, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("word store: delete by source: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RandomWords implements [store.WordStore].
func (s *Store) RandomWords(ctx context.Context, limit int) ([]vocab.Word, error) {
	const q = `
		SELECT word, definition, section, source_file
		FROM   words
		ORDER  BY random()
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("word store: random words: %w", err)
	}
	words, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.Word, error) {
		var w vocab.Word
		err := row.Scan(&w.Word, &w.Definition, &w.Section, &w.SourceFile)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("word store: scan rows: %w", err)
	}
	if words == nil {
		words = []vocab.Word{}
	}
	return words, nil
}

// WordCount implements [store.WordStore].
func (s *Store) WordCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM words`).Scan(&n); err != nil {
		return 0, fmt.Errorf("word store: count: %w", err)
	}
	return n, nil
}
