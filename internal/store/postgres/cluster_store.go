package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// ImportClusters implements [store.ClusterStore]. Each cluster is upserted
// by title and its entry list replaced wholesale, so removed rows in the
// source file disappear on re-import. Entry words are also ensured to
// exist in the words table, using the cluster meaning as the definition.
func (s *Store) ImportClusters(ctx context.Context, clusters []vocab.Cluster) (int, error) {
	const upsertCluster = `
		INSERT INTO clusters (title, preamble, commentary, source_file)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (title) DO UPDATE SET
		    preamble    = EXCLUDED.preamble,
		    commentary  = EXCLUDED.commentary,
		    source_file = EXCLUDED.source_file
		RETURNING id`

	const clearEntries = `DELETE FROM cluster_entries WHERE cluster_id = $1`

	const insertEntry = `
		INSERT INTO cluster_entries (cluster_id, word, meaning, distinction, position)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cluster_id, word) DO UPDATE SET
		    meaning     = EXCLUDED.meaning,
		    distinction = EXCLUDED.distinction,
		    position    = EXCLUDED.position`

	const ensureWord = `
		INSERT INTO words (word, definition, section, source_file)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("cluster store: begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range clusters {
		var clusterID int64
		if err := tx.QueryRow(ctx, upsertCluster, c.Title, c.Preamble, c.Commentary, c.SourceFile).Scan(&clusterID); err != nil {
			return 0, fmt.Errorf("cluster store: upsert %q: %w", c.Title, err)
		}
		if _, err := tx.Exec(ctx, clearEntries, clusterID); err != nil {
			return 0, fmt.Errorf("cluster store: clear entries for %q: %w", c.Title, err)
		}
		for i, e := range c.Entries {
			if _, err := tx.Exec(ctx, insertEntry, clusterID, e.Word, e.Meaning, e.Distinction, i); err != nil {
				return 0, fmt.Errorf("cluster store: insert entry %q: %w", e.Word, err)
			}
			if _, err := tx.Exec(ctx, ensureWord, e.Word, e.Meaning, c.Title, c.SourceFile); err != nil {
				return 0, fmt.Errorf("cluster store: ensure word %q: %w", e.Word, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("cluster store: commit import: %w", err)
	}
	return len(clusters), nil
}

// DeleteClustersBySource implements [store.ClusterStore]. Entries go with
// their cluster via ON DELETE CASCADE.
func (s *Store) DeleteClustersBySource(ctx context.Context, sourceFile string) (int, error) {
	const q = `DELETE FROM clusters WHERE source_file = $1`

	tag, err := s.pool.Exec(ctx, q, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("cluster store: delete by source: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClusterByTitle implements [store.ClusterStore].
func (s *Store) ClusterByTitle(ctx context.Context, title string) (*vocab.Cluster, error) {
	const clusterQ = `
		SELECT id, title, preamble, commentary, source_file
		FROM   clusters
		WHERE  title = $1`

	const entriesQ = `
		SELECT word, meaning, distinction
		FROM   cluster_entries
		WHERE  cluster_id = $1
		ORDER  BY position`

	var c vocab.Cluster
	err := s.pool.QueryRow(ctx, clusterQ, title).Scan(&c.ID, &c.Title, &c.Preamble, &c.Commentary, &c.SourceFile)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cluster store: by title: %w", err)
	}

	rows, err := s.pool.Query(ctx, entriesQ, c.ID)
	if err != nil {
		return nil, fmt.Errorf("cluster store: entries: %w", err)
	}
	c.Entries, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.ClusterEntry, error) {
		var e vocab.ClusterEntry
		err := row.Scan(&e.Word, &e.Meaning, &e.Distinction)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("cluster store: scan entries: %w", err)
	}
	return &c, nil
}

// ClusterCount implements [store.ClusterStore].
func (s *Store) ClusterCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clusters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cluster store: count: %w", err)
	}
	return n, nil
}
