// Package postgres provides the PostgreSQL-backed implementation of
// [store.Store].
//
// All sub-stores share a single [pgxpool.Pool] connection pool.
// [Migrate] is idempotent and runs automatically from [NewStore], so the
// schema is ensured on every application start.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_, _ = st.ImportWords(ctx, words)
//	qs, _ := st.SessionQuestions(ctx, 20)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Vocabulary DDL: words, clusters, cluster entries
// ─────────────────────────────────────────────────────────────────────────────

const ddlVocabulary = `
CREATE TABLE IF NOT EXISTS words (
    word         TEXT         PRIMARY KEY,
    definition   TEXT         NOT NULL,
    section      TEXT         NOT NULL DEFAULT '',
    source_file  TEXT         NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_words_lower
    ON words (LOWER(word));

CREATE INDEX IF NOT EXISTS idx_words_source_file
    ON words (source_file);

CREATE TABLE IF NOT EXISTS clusters (
    id           BIGSERIAL    PRIMARY KEY,
    title        TEXT         NOT NULL UNIQUE,
    preamble     TEXT         NOT NULL DEFAULT '',
    commentary   TEXT         NOT NULL DEFAULT '',
    source_file  TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_clusters_source_file
    ON clusters (source_file);

CREATE TABLE IF NOT EXISTS cluster_entries (
    cluster_id   BIGINT       NOT NULL REFERENCES clusters (id) ON DELETE CASCADE,
    word         TEXT         NOT NULL,
    meaning      TEXT         NOT NULL DEFAULT '',
    distinction  TEXT         NOT NULL DEFAULT '',
    position     INT          NOT NULL DEFAULT 0,
    PRIMARY KEY (cluster_id, word)
);
`

// ─────────────────────────────────────────────────────────────────────────────
// Question bank DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlQuestions = `
CREATE TABLE IF NOT EXISTS questions (
    id                TEXT         PRIMARY KEY,
    question_type     TEXT         NOT NULL,
    target_word       TEXT         NOT NULL,
    cluster_title     TEXT         NOT NULL DEFAULT '',
    stem              TEXT         NOT NULL,
    choices           JSONB        NOT NULL,
    correct_index     INT          NOT NULL,
    explanation       TEXT         NOT NULL DEFAULT '',
    context_sentence  TEXT         NOT NULL DEFAULT '',
    choice_details    JSONB        NOT NULL DEFAULT '[]',
    backend           TEXT         NOT NULL DEFAULT '',
    generated_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    answered_at       TIMESTAMPTZ,
    chosen_index      INT          NOT NULL DEFAULT 0,
    was_correct       BOOLEAN      NOT NULL DEFAULT FALSE,
    response_time_ms  BIGINT       NOT NULL DEFAULT 0,
    session_id        BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_questions_ready
    ON questions (target_word, cluster_title)
    WHERE answered_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_questions_answered_at
    ON questions (answered_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// SRS progress DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlProgress = `
CREATE TABLE IF NOT EXISTS word_progress (
    word             TEXT              NOT NULL,
    cluster_title    TEXT              NOT NULL,
    archived         BOOLEAN           NOT NULL DEFAULT FALSE,
    easiness_factor  DOUBLE PRECISION  NOT NULL DEFAULT 2.5,
    interval_days    DOUBLE PRECISION  NOT NULL DEFAULT 1.0,
    repetitions      INT               NOT NULL DEFAULT 0,
    next_review      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    last_review      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    total_correct    INT               NOT NULL DEFAULT 0,
    total_incorrect  INT               NOT NULL DEFAULT 0,
    PRIMARY KEY (word, cluster_title)
);

CREATE INDEX IF NOT EXISTS idx_word_progress_next_review
    ON word_progress (next_review)
    WHERE NOT archived;
`

// ─────────────────────────────────────────────────────────────────────────────
// Sessions + bookkeeping DDL: sessions, audio cache, import mtimes
// ─────────────────────────────────────────────────────────────────────────────

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id                 BIGSERIAL    PRIMARY KEY,
    started_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at           TIMESTAMPTZ,
    questions_total    INT          NOT NULL DEFAULT 0,
    questions_correct  INT          NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audio_cache (
    sentence_hash  TEXT         PRIMARY KEY,
    file_path      TEXT         NOT NULL,
    tts_backend    TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS file_mtimes (
    file_path  TEXT    PRIMARY KEY,
    mtime_ns   BIGINT  NOT NULL
);
`

// Migrate creates or ensures all required database tables and indexes exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlVocabulary,
		ddlQuestions,
		ddlProgress,
		ddlSessions,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
