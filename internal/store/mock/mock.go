// Package mock provides an in-memory test double for [store.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. Methods whose results a
// test needs to vary across calls additionally accept a *Fn override.
// The mock is safe for concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	st := &mock.Store{}
//	st.SessionQuestionsResult = []vocab.Question{{ID: "q1"}}
//
//	// inject st into the system under test …
//
//	if got := st.CallCount("SessionQuestions"); got != 1 {
//	    t.Errorf("expected 1 SessionQuestions call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [store.Store]. All exported
// *Err fields default to nil (success); slice-valued *Result fields
// default to nil (empty non-nil slice returned).
type Store struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// ── words / clusters ──

	ImportWordsResult         int
	ImportWordsErr            error
	DeleteWordsBySourceResult int
	DeleteWordsBySourceErr    error
	RandomWordsResult         []vocab.Word
	RandomWordsErr            error
	WordCountResult           int
	WordCountErr              error

	ImportClustersResult         int
	ImportClustersErr            error
	DeleteClustersBySourceResult int
	DeleteClustersBySourceErr    error

	// ClusterByTitleResult is returned by ClusterByTitle. When nil,
	// ClusterByTitle returns [store.ErrNotFound].
	ClusterByTitleResult *vocab.Cluster
	ClusterByTitleErr    error
	ClusterCountResult   int
	ClusterCountErr      error

	// ── questions ──

	SaveQuestionErr error

	// SaveQuestionFn, when non-nil, replaces the default behaviour of
	// SaveQuestion (after call recording).
	SaveQuestionFn func(q *vocab.Question) error

	MarkQuestionAnsweredErr error

	ReadyQuestionCountResult int
	ReadyQuestionCountErr    error

	// ReadyQuestionCountFn, when non-nil, supplies the count per call.
	ReadyQuestionCountFn func() (int, error)

	SessionQuestionsResult []vocab.Question
	SessionQuestionsErr    error

	ReviewQuestionsResult []vocab.Question
	ReviewQuestionsErr    error

	NewQuestionsResult []vocab.Question
	NewQuestionsErr    error

	ActiveWordNewQuestionsResult []vocab.Question
	ActiveWordNewQuestionsErr    error

	PairQuestionCountsResult []vocab.PairCount
	PairQuestionCountsErr    error

	PairsNeedingQuestionsResult []vocab.Pair
	PairsNeedingQuestionsErr    error

	NewPairsWithoutQuestionsResult []vocab.Pair
	NewPairsWithoutQuestionsErr    error

	QuestionAudioTextsResult []string
	QuestionAudioTextsErr    error

	// ── progress ──

	// WordProgressResult is returned by WordProgress. When nil,
	// WordProgress returns [store.ErrNotFound].
	WordProgressResult *vocab.WordProgress
	WordProgressErr    error

	// WordProgressFn, when non-nil, supplies the result per call.
	WordProgressFn func(word, clusterTitle string) (*vocab.WordProgress, error)

	UpsertWordProgressErr error
	SetWordArchivedErr    error
	ResetWordDueErr       error

	ActiveProgressResult []vocab.WordProgress
	ActiveProgressErr    error

	ArchivedProgressResult []vocab.WordProgress
	ArchivedProgressErr    error

	// ── sessions ──

	StartSessionResult int64
	StartSessionErr    error
	EndSessionErr      error

	SessionHistoryResult []vocab.Session
	SessionHistoryErr    error

	// ── audio cache ──

	// AudioCachePathResult is returned by AudioCachePath. When empty,
	// AudioCachePath returns [store.ErrNotFound].
	AudioCachePathResult string
	AudioCachePathErr    error
	SetAudioCacheErr     error
	DeleteAudioCacheErr  error

	// ── imports ──

	// FileMtimeResult is returned by FileMtime. When zero, FileMtime
	// returns [store.ErrNotFound].
	FileMtimeResult int64
	FileMtimeErr    error
	SetFileMtimeErr error

	// ── aggregate ──

	StatsResult vocab.Stats
	StatsErr    error
	PingErr     error
}

var _ store.Store = (*Store)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// SavedQuestions returns every question passed to SaveQuestion, in order.
func (m *Store) SavedQuestions() []*vocab.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*vocab.Question
	for _, c := range m.calls {
		if c.Method == "SaveQuestion" {
			out = append(out, c.Args[0].(*vocab.Question))
		}
	}
	return out
}

func (m *Store) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// ─────────────────────────────────────────────────────────────────────────────
// WordStore
// ─────────────────────────────────────────────────────────────────────────────

func (m *Store) ImportWords(_ context.Context, words []vocab.Word) (int, error) {
	m.record("ImportWords", words)
	return m.ImportWordsResult, m.ImportWordsErr
}

func (m *Store) DeleteWordsBySource(_ context.Context, sourceFile string) (int, error) {
	m.record("DeleteWordsBySource", sourceFile)
	return m.DeleteWordsBySourceResult, m.DeleteWordsBySourceErr
}

func (m *Store) RandomWords(_ context.Context, limit int) ([]vocab.Word, error) {
	m.record("RandomWords", limit)
	if m.RandomWordsErr != nil {
		return nil, m.RandomWordsErr
	}
	return nonNilWords(m.RandomWordsResult), nil
}

func (m *Store) WordCount(_ context.Context) (int, error) {
	m.record("WordCount")
	return m.WordCountResult, m.WordCountErr
}

// ─────────────────────────────────────────────────────────────────────────────
// ClusterStore
// ─────────────────────────────────────────────────────────────────────────────

func (m *Store) ImportClusters(_ context.Context, clusters []vocab.Cluster) (int, error) {
	m.record("ImportClusters", clusters)
	return m.ImportClustersResult, m.ImportClustersErr
}

func (m *Store) DeleteClustersBySource(_ context.Context, sourceFile string) (int, error) {
	m.record("DeleteClustersBySource", sourceFile)
	return m.DeleteClustersBySourceResult, m.DeleteClustersBySourceErr
}

func (m *Store) ClusterByTitle(_ context.Context, title string) (*vocab.Cluster, error) {
	m.record("ClusterByTitle", title)
	if m.ClusterByTitleErr != nil {
		return nil, m.ClusterByTitleErr
	}
	if m.ClusterByTitleResult == nil {
		return nil, store.ErrNotFound
	}
	return m.ClusterByTitleResult, nil
}

func (m *Store) ClusterCount(_ context.Context) (int, error) {
	m.record("ClusterCount")
	return m.ClusterCountResult, m.ClusterCountErr
}

// ─────────────────────────────────────────────────────────────────────────────
// QuestionStore
// ─────────────────────────────────────────────────────────────────────────────

func (m *Store) SaveQuestion(_ context.Context, q *vocab.Question) error {
	m.record("SaveQuestion", q)
	if m.SaveQuestionFn != nil {
		return m.SaveQuestionFn(q)
	}
	return m.SaveQuestionErr
}

func (m *Store) MarkQuestionAnswered(_ context.Context, id string, chosenIndex int, wasCorrect bool, responseTimeMS int64, sessionID int64) error {
	m.record("MarkQuestionAnswered", id, chosenIndex, wasCorrect, responseTimeMS, sessionID)
	return m.MarkQuestionAnsweredErr
}

func (m *Store) ReadyQuestionCount(_ context.Context) (int, error) {
	m.record("ReadyQuestionCount")
	if m.ReadyQuestionCountFn != nil {
		return m.ReadyQuestionCountFn()
	}
	return m.ReadyQuestionCountResult, m.ReadyQuestionCountErr
}

func (m *Store) SessionQuestions(_ context.Context, limit int) ([]vocab.Question, error) {
	m.record("SessionQuestions", limit)
	if m.SessionQuestionsErr != nil {
		return nil, m.SessionQuestionsErr
	}
	return nonNilQuestions(m.SessionQuestionsResult), nil
}

func (m *Store) ReviewQuestions(_ context.Context, limit int) ([]vocab.Question, error) {
	m.record("ReviewQuestions", limit)
	if m.ReviewQuestionsErr != nil {
		return nil, m.ReviewQuestionsErr
	}
	return nonNilQuestions(m.ReviewQuestionsResult), nil
}

func (m *Store) NewQuestions(_ context.Context, limit int) ([]vocab.Question, error) {
	m.record("NewQuestions", limit)
	if m.NewQuestionsErr != nil {
		return nil, m.NewQuestionsErr
	}
	return nonNilQuestions(m.NewQuestionsResult), nil
}

func (m *Store) ActiveWordNewQuestions(_ context.Context, limit int, excludeWords map[string]struct{}) ([]vocab.Question, error) {
	m.record("ActiveWordNewQuestions", limit, excludeWords)
	if m.ActiveWordNewQuestionsErr != nil {
		return nil, m.ActiveWordNewQuestionsErr
	}
	return nonNilQuestions(m.ActiveWordNewQuestionsResult), nil
}

func (m *Store) PairQuestionCounts(_ context.Context) ([]vocab.PairCount, error) {
	m.record("PairQuestionCounts")
	if m.PairQuestionCountsErr != nil {
		return nil, m.PairQuestionCountsErr
	}
	if m.PairQuestionCountsResult == nil {
		return []vocab.PairCount{}, nil
	}
	return m.PairQuestionCountsResult, nil
}

func (m *Store) PairsNeedingQuestions(_ context.Context) ([]vocab.Pair, error) {
	m.record("PairsNeedingQuestions")
	if m.PairsNeedingQuestionsErr != nil {
		return nil, m.PairsNeedingQuestionsErr
	}
	return nonNilPairs(m.PairsNeedingQuestionsResult), nil
}

func (m *Store) NewPairsWithoutQuestions(_ context.Context, limit int) ([]vocab.Pair, error) {
	m.record("NewPairsWithoutQuestions", limit)
	if m.NewPairsWithoutQuestionsErr != nil {
		return nil, m.NewPairsWithoutQuestionsErr
	}
	return nonNilPairs(m.NewPairsWithoutQuestionsResult), nil
}

func (m *Store) QuestionAudioTexts(_ context.Context) ([]string, error) {
	m.record("QuestionAudioTexts")
	if m.QuestionAudioTextsErr != nil {
		return nil, m.QuestionAudioTextsErr
	}
	if m.QuestionAudioTextsResult == nil {
		return []string{}, nil
	}
	return m.QuestionAudioTextsResult, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ProgressStore
// ─────────────────────────────────────────────────────────────────────────────

func (m *Store) WordProgress(_ context.Context, word, clusterTitle string) (*vocab.WordProgress, error) {
	m.record("WordProgress", word, clusterTitle)
	if m.WordProgressFn != nil {
		return m.WordProgressFn(word, clusterTitle)
	}
	if m.WordProgressErr != nil {
		return nil, m.WordProgressErr
	}
	if m.WordProgressResult == nil {
		return nil, store.ErrNotFound
	}
	return m.WordProgressResult, nil
}

func (m *Store) UpsertWordProgress(_ context.Context, word, clusterTitle string, ef, intervalDays float64, repetitions int, nextReview time.Time, correct bool) error {
	m.record("UpsertWordProgress", word, clusterTitle, ef, intervalDays, repetitions, nextReview, correct)
	return m.UpsertWordProgressErr
}

func (m *Store) SetWordArchived(_ context.Context, word, clusterTitle string, archived bool) error {
	m.record("SetWordArchived", word, clusterTitle, archived)
	return m.SetWordArchivedErr
}

func (m *Store) ResetWordDue(_ context.Context, word, clusterTitle string) error {
	m.record("ResetWordDue", word, clusterTitle)
	return m.ResetWordDueErr
}

func (m *Store) ActiveProgress(_ context.Context) ([]vocab.WordProgress, error) {
	m.record("ActiveProgress")
	if m.ActiveProgressErr != nil {
		return nil, m.ActiveProgressErr
	}
	if m.ActiveProgressResult == nil {
		return []vocab.WordProgress{}, nil
	}
	return m.ActiveProgressResult, nil
}

func (m *Store) ArchivedProgress(_ context.Context) ([]vocab.WordProgress, error) {
	m.record("ArchivedProgress")
	if m.ArchivedProgressErr != nil {
		return nil, m.ArchivedProgressErr
	}
	if m.ArchivedProgressResult == nil {
		return []vocab.WordProgress{}, nil
	}
	return m.ArchivedProgressResult, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SessionStore
// ─────────────────────────────────────────────────────────────────────────────

func (m *Store) StartSession(_ context.Context) (int64, error) {
	m.record("StartSession")
	return m.StartSessionResult, m.StartSessionErr
}

func (m *Store) EndSession(_ context.Context, id int64, total, correct int) error {
	m.record("EndSession", id, total, correct)
	return m.EndSessionErr
}

func (m *Store) SessionHistory(_ context.Context, limit int) ([]vocab.Session, error) {
	m.record("SessionHistory", limit)
	if m.SessionHistoryErr != nil {
		return nil, m.SessionHistoryErr
	}
	if m.SessionHistoryResult == nil {
		return []vocab.Session{}, nil
	}
	return m.SessionHistoryResult, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// AudioCacheStore / ImportStore / aggregate
// ─────────────────────────────────────────────────────────────────────────────

func (m *Store) AudioCachePath(_ context.Context, sentenceHash string) (string, error) {
	m.record("AudioCachePath", sentenceHash)
	if m.AudioCachePathErr != nil {
		return "", m.AudioCachePathErr
	}
	if m.AudioCachePathResult == "" {
		return "", store.ErrNotFound
	}
	return m.AudioCachePathResult, nil
}

func (m *Store) SetAudioCache(_ context.Context, sentenceHash, filePath, ttsBackend string) error {
	m.record("SetAudioCache", sentenceHash, filePath, ttsBackend)
	return m.SetAudioCacheErr
}

func (m *Store) DeleteAudioCache(_ context.Context, sentenceHash string) error {
	m.record("DeleteAudioCache", sentenceHash)
	return m.DeleteAudioCacheErr
}

func (m *Store) FileMtime(_ context.Context, filePath string) (int64, error) {
	m.record("FileMtime", filePath)
	if m.FileMtimeErr != nil {
		return 0, m.FileMtimeErr
	}
	if m.FileMtimeResult == 0 {
		return 0, store.ErrNotFound
	}
	return m.FileMtimeResult, nil
}

func (m *Store) SetFileMtime(_ context.Context, filePath string, mtimeNS int64) error {
	m.record("SetFileMtime", filePath, mtimeNS)
	return m.SetFileMtimeErr
}

func (m *Store) Stats(_ context.Context) (vocab.Stats, error) {
	m.record("Stats")
	return m.StatsResult, m.StatsErr
}

func (m *Store) Ping(_ context.Context) error {
	m.record("Ping")
	return m.PingErr
}

func (m *Store) Close() {
	m.record("Close")
}

func nonNilQuestions(in []vocab.Question) []vocab.Question {
	if in == nil {
		return []vocab.Question{}
	}
	return in
}

func nonNilPairs(in []vocab.Pair) []vocab.Pair {
	if in == nil {
		return []vocab.Pair{}
	}
	return in
}

func nonNilWords(in []vocab.Word) []vocab.Word {
	if in == nil {
		return []vocab.Word{}
	}
	return in
}
