package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lexvoss/internal/store"
)

// AudioCachePath implements [store.AudioCacheStore].
func (s *Store) AudioCachePath(ctx context.Context, sentenceHash string) (string, error) {
	const q = `SELECT file_path FROM audio_cache WHERE sentence_hash = $1`

	var path string
	err := s.pool.QueryRow(ctx, q, sentenceHash).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("audio cache: lookup: %w", err)
	}
	return path, nil
}

// SetAudioCache implements [store.AudioCacheStore].
func (s *Store) SetAudioCache(ctx context.Context, sentenceHash, filePath, ttsBackend string) error {
	const q = `
		INSERT INTO audio_cache (sentence_hash, file_path, tts_backend)
		VALUES ($1, $2, $3)
		ON CONFLICT (sentence_hash) DO UPDATE SET
		    file_path   = EXCLUDED.file_path,
		    tts_backend = EXCLUDED.tts_backend,
		    created_at  = now()`

	if _, err := s.pool.Exec(ctx, q, sentenceHash, filePath, ttsBackend); err != nil {
		return fmt.Errorf("audio cache: set: %w", err)
	}
	return nil
}

// DeleteAudioCache implements [store.AudioCacheStore]. Deleting an
// unknown hash is a no-op.
func (s *Store) DeleteAudioCache(ctx context.Context, sentenceHash string) error {
	const q = `DELETE FROM audio_cache WHERE sentence_hash = $1`

	if _, err := s.pool.Exec(ctx, q, sentenceHash); err != nil {
		return fmt.Errorf("audio cache: delete: %w", err)
	}
	return nil
}

// FileMtime implements [store.ImportStore].
func (s *Store) FileMtime(ctx context.Context, filePath string) (int64, error) {
	const q = `SELECT mtime_ns FROM file_mtimes WHERE file_path = $1`

	var mtime int64
	err := s.pool.QueryRow(ctx, q, filePath).Scan(&mtime)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("import store: file mtime: %w", err)
	}
	return mtime, nil
}

// SetFileMtime implements [store.ImportStore].
func (s *Store) SetFileMtime(ctx context.Context, filePath string, mtimeNS int64) error {
	const q = `
		INSERT INTO file_mtimes (file_path, mtime_ns)
		VALUES ($1, $2)
		ON CONFLICT (file_path) DO UPDATE SET mtime_ns = EXCLUDED.mtime_ns`

	if _, err := s.pool.Exec(ctx, q, filePath, mtimeNS); err != nil {
		return fmt.Errorf("import store: set file mtime: %w", err)
	}
	return nil
}
