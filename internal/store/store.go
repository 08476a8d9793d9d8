// Package store defines the transactional query API over the durable
// state of the trainer: words, clusters, questions, per-pair SRS
// progress, sessions, the narration audio cache, and import bookkeeping.
//
// Every mutating operation commits before returning. Read operations
// are snapshot-consistent within a single call. Implementations fail
// only on underlying persistence errors; callers surface those rather
// than recovering locally.
package store

import (
	"context"
	"errors"
	"time"

	"lexvoss/pkg/vocab"
)

// ErrNotFound is returned when an operation references a row that does
// not exist (e.g. marking an unknown question answered).
var ErrNotFound = errors.New("store: not found")

// Store is the single owner of durable trainer state.
//
// Implementations must be safe for concurrent use. Write access is
// serialized by the implementation; readers may run concurrently.
type Store interface {
	WordStore
	ClusterStore
	QuestionStore
	ProgressStore
	SessionStore
	AudioCacheStore
	ImportStore

	// Stats returns the aggregate progress snapshot.
	Stats(ctx context.Context) (vocab.Stats, error)

	// Ping verifies the underlying persistence engine is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close()
}

// WordStore covers the immutable vocabulary entries.
type WordStore interface {
	// ImportWords inserts words, ignoring duplicates. Returns the number
	// of words processed.
	ImportWords(ctx context.Context, words []vocab.Word) (int, error)

	// DeleteWordsBySource removes all words imported from sourceFile.
	DeleteWordsBySource(ctx context.Context, sourceFile string) (int, error)

	// RandomWords returns up to limit words in random order. Used for
	// prompt enrichment.
	RandomWords(ctx context.Context, limit int) ([]vocab.Word, error)

	// WordCount returns the total number of words.
	WordCount(ctx context.Context) (int, error)
}

// ClusterStore covers distinction clusters and their entries.
type ClusterStore interface {
	// ImportClusters upserts clusters with their entries, replacing any
	// previous entries for the same title. Entry words are also ensured
	// to exist in the word table.
	ImportClusters(ctx context.Context, clusters []vocab.Cluster) (int, error)

	// DeleteClustersBySource removes clusters (and entries) imported
	// from sourceFile.
	DeleteClustersBySource(ctx context.Context, sourceFile string) (int, error)

	// ClusterByTitle returns the cluster with the given title, entries
	// included, or ErrNotFound.
	ClusterByTitle(ctx context.Context, title string) (*vocab.Cluster, error)

	// ClusterCount returns the total number of clusters.
	ClusterCount(ctx context.Context) (int, error)
}

// QuestionStore covers the question bank.
type QuestionStore interface {
	// SaveQuestion inserts or replaces a question by ID.
	SaveQuestion(ctx context.Context, q *vocab.Question) error

	// MarkQuestionAnswered sets the answer-state fields of a question.
	// It is idempotent and returns ErrNotFound for an unknown ID.
	MarkQuestionAnswered(ctx context.Context, id string, chosenIndex int, wasCorrect bool, responseTimeMS int64, sessionID int64) error

	// ReadyQuestionCount returns the number of unanswered questions.
	ReadyQuestionCount(ctx context.Context) (int, error)

	// SessionQuestions returns up to limit ready questions ordered by
	// priority: due active pairs first (freshly-due first, then random),
	// then new pairs. Archived pairs and reviewed-but-not-due pairs are
	// excluded.
	SessionQuestions(ctx context.Context, limit int) ([]vocab.Question, error)

	// ReviewQuestions returns ready questions for due active pairs,
	// freshly-due first (descending next_review).
	ReviewQuestions(ctx context.Context, limit int) ([]vocab.Question, error)

	// NewQuestions returns ready questions for pairs with no progress
	// row, in random order.
	NewQuestions(ctx context.Context, limit int) ([]vocab.Question, error)

	// ActiveWordNewQuestions returns unseen ready questions for pairs
	// that already have a progress row (reinforcement), excluding the
	// supplied words (case-insensitive).
	ActiveWordNewQuestions(ctx context.Context, limit int, excludeWords map[string]struct{}) ([]vocab.Question, error)

	// PairQuestionCounts returns, for every (word, cluster) pair from
	// eligible clusters excluding archived pairs, the ready-question
	// count. Drives coverage-weighted generation targeting.
	PairQuestionCounts(ctx context.Context) ([]vocab.PairCount, error)

	// PairsNeedingQuestions returns active non-archived pairs with zero
	// ready questions, soonest-due first.
	PairsNeedingQuestions(ctx context.Context) ([]vocab.Pair, error)

	// NewPairsWithoutQuestions returns pairs from eligible clusters with
	// no progress row and no ready question, in random order.
	NewPairsWithoutQuestions(ctx context.Context, limit int) ([]vocab.Pair, error)

	// QuestionAudioTexts returns the explanation and context-sentence
	// texts of all ready questions, for narration pre-caching.
	QuestionAudioTexts(ctx context.Context) ([]string, error)
}

// ProgressStore covers per-pair SRS state.
type ProgressStore interface {
	// WordProgress returns the progress row for a pair, or ErrNotFound
	// when the pair is new.
	WordProgress(ctx context.Context, word, clusterTitle string) (*vocab.WordProgress, error)

	// UpsertWordProgress inserts a row on first call; on update it
	// overwrites the SRS fields, sets last_review to now, and increments
	// total_correct or total_incorrect per the correct flag.
	UpsertWordProgress(ctx context.Context, word, clusterTitle string, ef, intervalDays float64, repetitions int, nextReview time.Time, correct bool) error

	// SetWordArchived archives or restores a pair. Restoring preserves
	// the SRS state.
	SetWordArchived(ctx context.Context, word, clusterTitle string, archived bool) error

	// ResetWordDue resets a pair's schedule: interval 1 day, zero
	// repetitions, due in one day. An empty clusterTitle resets the word
	// across all clusters.
	ResetWordDue(ctx context.Context, word, clusterTitle string) error

	// ActiveProgress returns non-archived pairs ordered by next_review.
	ActiveProgress(ctx context.Context) ([]vocab.WordProgress, error)

	// ArchivedProgress returns archived pairs, most recently reviewed
	// first.
	ArchivedProgress(ctx context.Context) ([]vocab.WordProgress, error)
}

// SessionStore covers durable session records.
type SessionStore interface {
	// StartSession inserts a session row and returns its ID.
	StartSession(ctx context.Context) (int64, error)

	// EndSession records the end timestamp and totals.
	EndSession(ctx context.Context, id int64, total, correct int) error

	// SessionHistory returns the most recent sessions, newest first.
	SessionHistory(ctx context.Context, limit int) ([]vocab.Session, error)
}

// AudioCacheStore maps content hashes of narrated text to audio files.
type AudioCacheStore interface {
	// AudioCachePath returns the cached file path for a sentence hash,
	// or ErrNotFound.
	AudioCachePath(ctx context.Context, sentenceHash string) (string, error)

	// SetAudioCache records a synthesized audio file for a hash.
	SetAudioCache(ctx context.Context, sentenceHash, filePath, ttsBackend string) error

	// DeleteAudioCache forgets a cached hash.
	DeleteAudioCache(ctx context.Context, sentenceHash string) error
}

// ImportStore tracks source-file modification times so unchanged files
// are not re-imported.
type ImportStore interface {
	// FileMtime returns the recorded mtime (ns) for a file path, or
	// ErrNotFound.
	FileMtime(ctx context.Context, filePath string) (int64, error)

	// SetFileMtime records the mtime (ns) for a file path.
	SetFileMtime(ctx context.Context, filePath string, mtimeNS int64) error
}
