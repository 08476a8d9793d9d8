// Package session composes training sessions out of the ready-question
// bank and walks the user through them: pool layering at start, answer
// processing with SRS recording, mid-session extension from the bank,
// and live progress snapshots for the event stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"lexvoss/internal/buffer"
	"lexvoss/internal/srs"
	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// Sentinel errors for the HTTP layer to map onto status codes.
var (
	ErrSessionNotFound   = errors.New("session: not found")
	ErrNoCurrentQuestion = errors.New("session: no current question")
	ErrNoQuestions       = errors.New("session: no questions available, import vocabulary and generate questions first")
)

// maxReviewLoad caps the due-review pool at session start. The session
// target is soft; users can keep going past it, so all due reviews ride
// along rather than being cut at session size.
const maxReviewLoad = 200

// Progress is a live snapshot of one session.
type Progress struct {
	Answered   int  `json:"answered"`
	Correct    int  `json:"correct"`
	Ready      int  `json:"ready"`
	Target     int  `json:"target"`
	Generating bool `json:"generating"`
	HasNext    bool `json:"has_next"`
}

// Summary is the end-of-session report.
type Summary struct {
	Total       int     `json:"total"`
	Correct     int     `json:"correct"`
	Accuracy    float64 `json:"accuracy"`
	ReviewCount int     `json:"review_count"`
	NewCount    int     `json:"new_count"`
}

// Delivered is one question as served to the user: choices shuffled per
// delivery so the correct answer moves between slots, with the details
// and correct index remapped to match.
type Delivered struct {
	SessionID       int64                `json:"session_id"`
	QuestionID      string               `json:"id"`
	Type            vocab.QuestionType   `json:"question_type"`
	Stem            string               `json:"stem"`
	Choices         []string             `json:"choices"`
	ChoiceDetails   []vocab.ChoiceDetail `json:"choice_details"`
	CorrectIndex    int                  `json:"correct_index"`
	CorrectWord     string               `json:"correct_word"`
	Explanation     string               `json:"explanation"`
	ContextSentence string               `json:"context_sentence"`
	ClusterTitle    string               `json:"cluster_title"`
	IsNew           bool                 `json:"is_new"`
	Progress        Progress             `json:"progress"`

	// perm maps delivered choice positions back to storage order.
	perm []int
}

// NextResult is the outcome of advancing a session. Exactly one of
// Question, Generating, or SessionComplete describes the state.
type NextResult struct {
	Question        *Delivered
	Generating      bool
	SessionComplete bool
}

// AnswerResult reports the outcome of one answer.
type AnswerResult struct {
	Correct         bool       `json:"correct"`
	CorrectIndex    int        `json:"correct_index"`
	CorrectWord     string     `json:"correct_word"`
	Explanation     string     `json:"explanation"`
	ContextSentence string     `json:"context_sentence"`
	Archive         srs.Result `json:"archive"`
	Progress        Progress   `json:"session_progress"`
	SessionComplete bool       `json:"session_complete"`
	Generating      bool       `json:"generating"`
	Summary         *Summary   `json:"summary,omitempty"`
}

// state is the in-memory record of one running session.
type state struct {
	questions      []vocab.Question
	currentIndex   int
	total          int
	correct        int
	reviewCount    int
	newCount       int
	reinforceCount int
	target         int
	seenIDs        map[string]struct{}
	seenWords      map[string]struct{}
	current        *Delivered
}

func (s *state) shortfall() int {
	have := len(s.questions) - s.currentIndex
	if have >= s.target {
		return 0
	}
	return s.target - have
}

// Composer owns all running sessions. Safe for concurrent use.
type Composer struct {
	store       store.Store
	srs         *srs.Engine
	buf         *buffer.Controller
	sessionSize int
	log         *slog.Logger

	perm func(n int) []int

	mu       sync.Mutex
	sessions map[int64]*state

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Option customizes a Composer.
type Option func(*Composer)

// WithPerm overrides the shuffle permutation source. Tests use this to
// pin choice order.
func WithPerm(perm func(n int) []int) Option {
	return func(c *Composer) { c.perm = perm }
}

// NewComposer builds a Composer. The buffer controller's shortfall
// source is wired to the composer's active sessions.
func NewComposer(st store.Store, eng *srs.Engine, buf *buffer.Controller, sessionSize int, log *slog.Logger, opts ...Option) *Composer {
	if log == nil {
		log = slog.Default()
	}
	c := &Composer{
		store:       st,
		srs:         eng,
		buf:         buf,
		sessionSize: sessionSize,
		log:         log,
		perm:        rand.Perm,
		sessions:    make(map[int64]*state),
		shutdownCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	buf.SetShortfall(c.Shortfall)
	return c
}

// SetSessionSize updates the soft session target at runtime. Applies to
// sessions started afterwards.
func (c *Composer) SetSessionSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.sessionSize = n
	}
}

// size returns the current soft target.
func (c *Composer) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionSize
}

// Shortfall reports how many more questions all active sessions need
// beyond what they hold. Feeds the buffer target.
func (c *Composer) Shortfall() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, s := range c.sessions {
		total += s.shortfall()
	}
	return total
}

// ShutdownCh is closed when the composer shuts down. Event streams use
// it to exit their tick loop promptly.
func (c *Composer) ShutdownCh() <-chan struct{} { return c.shutdownCh }

// Shutdown unblocks all event streams. Sessions are not persisted as
// ended; an unfinished session simply evaporates with the process.
func (c *Composer) Shutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })
}

// Start opens a session: a durable session row, then three pools
// layered in priority order. Due reviews load first (uncapped at
// session size), remaining slots fill with questions for unseen words,
// then with unseen questions for already-active words. One question per
// word per session; the combined set is shuffled.
func (c *Composer) Start(ctx context.Context) (*Delivered, error) {
	id, err := c.store.StartSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: start: %w", err)
	}

	size := c.size()
	st := &state{
		target:    size,
		seenIDs:   make(map[string]struct{}),
		seenWords: make(map[string]struct{}),
	}

	reviews, err := c.store.ReviewQuestions(ctx, maxReviewLoad)
	if err != nil {
		return nil, fmt.Errorf("session: load reviews: %w", err)
	}
	for _, q := range reviews {
		st.add(q)
		st.reviewCount++
	}
	c.log.Info("session review pool loaded", "session_id", id, "count", st.reviewCount)

	if remaining := size - len(st.questions); remaining > 0 {
		newQs, err := c.store.NewQuestions(ctx, remaining)
		if err != nil {
			return nil, fmt.Errorf("session: load new questions: %w", err)
		}
		for _, q := range newQs {
			if st.addUnseenWord(q) {
				st.newCount++
			}
		}
	}
	c.log.Info("session new pool loaded", "session_id", id, "count", st.newCount)

	if remaining := size - len(st.questions); remaining > 0 {
		active, err := c.store.ActiveWordNewQuestions(ctx, remaining, st.seenWords)
		if err != nil {
			return nil, fmt.Errorf("session: load reinforcement questions: %w", err)
		}
		for _, q := range active {
			if st.addUnseenWord(q) {
				st.reinforceCount++
			}
		}
	}
	c.log.Info("session reinforcement pool loaded", "session_id", id, "count", st.reinforceCount)

	c.shuffleQuestions(st.questions)

	if len(st.questions) == 0 {
		clusters, err := c.store.ClusterCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("session: cluster count: %w", err)
		}
		if clusters == 0 {
			return nil, ErrNoQuestions
		}
	}

	c.mu.Lock()
	c.sessions[id] = st
	c.mu.Unlock()

	// Top up the bank in the background now that this session raised
	// the target.
	if err := c.buf.Check(ctx); err != nil {
		c.log.Warn("buffer check after session start failed", "error", err)
	}

	res, err := c.Next(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Question == nil {
		// Empty bank but clusters exist: the buffer build will feed the
		// session, surface the generating state as a placeholder.
		return &Delivered{SessionID: id, Progress: c.progressLocked(id)}, nil
	}
	return res.Question, nil
}

// Next advances to the current question of a session, extending the
// question list from the bank when exhausted. With an empty list and a
// running build it reports Generating; otherwise SessionComplete.
func (c *Composer) Next(ctx context.Context, id int64) (*NextResult, error) {
	c.mu.Lock()
	st, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	c.mu.Lock()
	exhausted := st.currentIndex >= len(st.questions)
	c.mu.Unlock()
	if exhausted {
		if err := c.loadMore(ctx, st); err != nil {
			return nil, err
		}
		c.mu.Lock()
		exhausted = st.currentIndex >= len(st.questions)
		c.mu.Unlock()
		if exhausted {
			if c.buf.Generating() {
				return &NextResult{Generating: true}, nil
			}
			return &NextResult{SessionComplete: true}, nil
		}
	}

	c.mu.Lock()
	q := st.questions[st.currentIndex]
	c.mu.Unlock()

	d := c.deliver(id, &q)

	isNew := false
	if _, err := c.store.WordProgress(ctx, q.TargetWord, q.ClusterTitle); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("session: check progress: %w", err)
		}
		isNew = true
	}
	d.IsNew = isNew
	d.Progress = c.progressLocked(id)

	c.mu.Lock()
	st.current = d
	c.mu.Unlock()
	return &NextResult{Question: d}, nil
}

// Answer processes the user's answer to the current question: SRS
// update and archive decision first, then the permanent answer record,
// then a buffer check, then advance. When the list is exhausted the
// session either waits on a running build or ends with a summary.
func (c *Composer) Answer(ctx context.Context, id int64, selectedIndex int, responseTime time.Duration) (*AnswerResult, error) {
	c.mu.Lock()
	st, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	cur := st.current
	if cur == nil {
		c.mu.Unlock()
		return nil, ErrNoCurrentQuestion
	}
	correct := selectedIndex == cur.CorrectIndex
	st.total++
	if correct {
		st.correct++
	}
	c.mu.Unlock()

	// SRS first so the archive check sees the updated interval.
	quality := srs.Quality(correct, responseTime)
	archive, err := c.srs.RecordReview(ctx, cur.CorrectWord, cur.ClusterTitle, quality)
	if err != nil {
		return nil, err
	}

	if cur.QuestionID != "" {
		chosen := selectedIndex
		if selectedIndex >= 0 && selectedIndex < len(cur.perm) {
			chosen = cur.perm[selectedIndex]
		}
		err := c.store.MarkQuestionAnswered(ctx, cur.QuestionID, chosen, correct, responseTime.Milliseconds(), id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("session: record answer: %w", err)
		}
	}

	if err := c.buf.Check(ctx); err != nil {
		c.log.Warn("buffer check after answer failed", "error", err)
	}

	res := &AnswerResult{
		Correct:         correct,
		CorrectIndex:    cur.CorrectIndex,
		CorrectWord:     cur.CorrectWord,
		Explanation:     cur.Explanation,
		ContextSentence: cur.ContextSentence,
		Archive:         archive,
		Progress:        c.progressLocked(id),
	}

	c.mu.Lock()
	st.current = nil
	st.currentIndex++
	exhausted := st.currentIndex >= len(st.questions)
	c.mu.Unlock()

	if exhausted {
		if err := c.loadMore(ctx, st); err != nil {
			return nil, err
		}
		c.mu.Lock()
		exhausted = st.currentIndex >= len(st.questions)
		c.mu.Unlock()
	}

	if exhausted {
		if c.buf.Generating() {
			res.Generating = true
		} else {
			summary, err := c.finish(ctx, id)
			if err != nil {
				return nil, err
			}
			res.SessionComplete = true
			res.Summary = summary
		}
	}
	res.Progress = c.progressLocked(id)
	return res, nil
}

// Finish ends a session early, e.g. after reaching the soft target.
func (c *Composer) Finish(ctx context.Context, id int64) (*Summary, error) {
	c.mu.Lock()
	_, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c.finish(ctx, id)
}

func (c *Composer) finish(ctx context.Context, id int64) (*Summary, error) {
	c.mu.Lock()
	st, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	delete(c.sessions, id)
	total, correct := st.total, st.correct
	reviewCount, newCount := st.reviewCount, st.newCount
	c.mu.Unlock()

	if err := c.store.EndSession(ctx, id, total, correct); err != nil {
		return nil, fmt.Errorf("session: end: %w", err)
	}

	denom := total
	if denom == 0 {
		denom = 1
	}
	return &Summary{
		Total:       total,
		Correct:     correct,
		Accuracy:    float64(int(float64(correct)/float64(denom)*1000+0.5)) / 10,
		ReviewCount: reviewCount,
		NewCount:    newCount,
	}, nil
}

// Current returns the question currently awaiting an answer, for
// reconnection and chat context.
func (c *Composer) Current(id int64) (*Delivered, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if st.current == nil {
		return nil, ErrNoCurrentQuestion
	}
	return st.current, nil
}

// Snapshot extends the session from the bank and returns its progress.
// The second return is false when the session no longer exists. Drives
// the per-session event stream.
func (c *Composer) Snapshot(ctx context.Context, id int64) (Progress, bool) {
	c.mu.Lock()
	st, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return Progress{}, false
	}
	if err := c.loadMore(ctx, st); err != nil {
		c.log.Warn("session extension failed", "session_id", id, "error", err)
	}
	return c.progressLocked(id), true
}

// progressLocked builds the progress snapshot for a session, or a zero
// snapshot when it is gone.
func (c *Composer) progressLocked(id int64) Progress {
	generating := c.buf.Generating()
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[id]
	if !ok {
		return Progress{Generating: generating}
	}
	hasNext := st.currentIndex < len(st.questions)
	ready := 0
	if hasNext {
		ready = len(st.questions) - st.currentIndex - 1
	}
	return Progress{
		Answered:   st.total,
		Correct:    st.correct,
		Ready:      ready,
		Target:     st.target,
		Generating: generating,
		HasNext:    hasNext,
	}
}

// loadMore pulls additional questions from the bank up to the session
// target, walking the same three pools as Start and skipping questions
// and words the session has already seen.
func (c *Composer) loadMore(ctx context.Context, st *state) error {
	c.mu.Lock()
	need := st.target - len(st.questions)
	seenWords := copySet(st.seenWords)
	c.mu.Unlock()
	if need <= 0 {
		return nil
	}

	reviews, err := c.store.ReviewQuestions(ctx, need)
	if err != nil {
		return fmt.Errorf("session: extend reviews: %w", err)
	}
	added := 0
	c.mu.Lock()
	for _, q := range reviews {
		if _, seen := st.seenIDs[q.ID]; seen {
			continue
		}
		st.add(q)
		added++
	}
	remaining := need - added
	c.mu.Unlock()

	if remaining > 0 {
		newQs, err := c.store.NewQuestions(ctx, remaining)
		if err != nil {
			return fmt.Errorf("session: extend new questions: %w", err)
		}
		c.mu.Lock()
		for _, q := range newQs {
			if st.addUnseenWord(q) {
				added++
			}
		}
		remaining = need - added
		seenWords = copySet(st.seenWords)
		c.mu.Unlock()
	}

	if remaining > 0 {
		active, err := c.store.ActiveWordNewQuestions(ctx, remaining, seenWords)
		if err != nil {
			return fmt.Errorf("session: extend reinforcement: %w", err)
		}
		c.mu.Lock()
		for _, q := range active {
			if _, seen := st.seenIDs[q.ID]; seen {
				continue
			}
			st.add(q)
		}
		c.mu.Unlock()
	}
	return nil
}

// deliver builds the per-delivery view of a question with shuffled
// choices. The correct index and choice details follow the permutation.
func (c *Composer) deliver(sessionID int64, q *vocab.Question) *Delivered {
	perm := c.perm(len(q.Choices))

	choices := make([]string, len(q.Choices))
	var details []vocab.ChoiceDetail
	if len(q.ChoiceDetails) == len(q.Choices) {
		details = make([]vocab.ChoiceDetail, len(q.Choices))
	}
	correctIndex := 0
	for pos, orig := range perm {
		choices[pos] = q.Choices[orig]
		if details != nil {
			details[pos] = q.ChoiceDetails[orig]
		}
		if orig == q.CorrectIndex {
			correctIndex = pos
		}
	}

	return &Delivered{
		SessionID:       sessionID,
		QuestionID:      q.ID,
		Type:            q.Type,
		Stem:            q.Stem,
		Choices:         choices,
		ChoiceDetails:   details,
		CorrectIndex:    correctIndex,
		CorrectWord:     q.TargetWord,
		Explanation:     q.Explanation,
		ContextSentence: q.ContextSentence,
		ClusterTitle:    q.ClusterTitle,
		perm:            perm,
	}
}

// shuffleQuestions randomizes question order using the permutation
// source.
func (c *Composer) shuffleQuestions(qs []vocab.Question) {
	perm := c.perm(len(qs))
	shuffled := make([]vocab.Question, len(qs))
	for pos, orig := range perm {
		shuffled[pos] = qs[orig]
	}
	copy(qs, shuffled)
}

func (s *state) add(q vocab.Question) {
	s.questions = append(s.questions, q)
	s.seenIDs[q.ID] = struct{}{}
	s.seenWords[strings.ToLower(q.TargetWord)] = struct{}{}
}

// addUnseenWord adds q only when its target word has not appeared in
// the session yet.
func (s *state) addUnseenWord(q vocab.Question) bool {
	if _, seen := s.seenWords[strings.ToLower(q.TargetWord)]; seen {
		return false
	}
	if _, seen := s.seenIDs[q.ID]; seen {
		return false
	}
	s.add(q)
	return true
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
