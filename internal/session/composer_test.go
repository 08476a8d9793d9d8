package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lexvoss/internal/buffer"
	"lexvoss/internal/session"
	"lexvoss/internal/srs"
	"lexvoss/internal/store/mock"
	"lexvoss/pkg/vocab"
)

func identityPerm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func reversePerm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = n - 1 - i
	}
	return out
}

func question(id, word string) vocab.Question {
	return vocab.Question{
		ID:           id,
		Type:         vocab.FillBlank,
		TargetWord:   word,
		ClusterTitle: "Walking and Movement",
		Stem:         "He loves to ___ there.",
		Choices:      []string{word, "b", "c", "d"},
		CorrectIndex: 0,
		Explanation:  "because",
		ChoiceDetails: []vocab.ChoiceDetail{
			{Word: word}, {Word: "b"}, {Word: "c"}, {Word: "d"},
		},
	}
}

// newComposer wires a composer over st with an idle buffer controller.
func newComposer(st *mock.Store, opts ...session.Option) *session.Composer {
	bufStore := &mock.Store{ReadyQuestionCountResult: 100}
	ctl := buffer.NewController(bufStore, nil, 3, nil, nil)
	eng := srs.NewEngine(st, 21, nil)
	return session.NewComposer(st, eng, ctl, 3, nil, opts...)
}

func TestStartLayersPools(t *testing.T) {
	st := &mock.Store{
		StartSessionResult: 7,
		ReviewQuestionsResult: []vocab.Question{
			question("r1", "saunter"),
		},
		NewQuestionsResult: []vocab.Question{
			question("n1", "trudge"),
			question("n2", "saunter"), // duplicate word, must be skipped
		},
		ActiveWordNewQuestionsResult: []vocab.Question{
			question("a1", "amble"),
		},
	}
	c := newComposer(st, session.WithPerm(identityPerm))

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.SessionID != 7 {
		t.Errorf("session id = %d", first.SessionID)
	}
	if first.QuestionID != "r1" {
		t.Errorf("first question = %q, reviews lead the session", first.QuestionID)
	}
	// One review + one new + one reinforcement; the duplicate-word new
	// question is dropped.
	if got := first.Progress.Ready; got != 2 {
		t.Errorf("ready after first delivery = %d, want 2", got)
	}
	if !first.Progress.HasNext {
		t.Error("expected has_next")
	}
	if !first.IsNew {
		t.Error("a word without progress is new")
	}
}

func TestStartEmptyBankNoClusters(t *testing.T) {
	st := &mock.Store{StartSessionResult: 1}
	c := newComposer(st)

	_, err := c.Start(context.Background())
	if !errors.Is(err, session.ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
}

func TestDeliveryShufflesChoices(t *testing.T) {
	st := &mock.Store{
		StartSessionResult:    1,
		ReviewQuestionsResult: []vocab.Question{question("r1", "saunter")},
	}
	c := newComposer(st, session.WithPerm(reversePerm))

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Reversed: stored ["saunter", "b", "c", "d"] delivers as
	// ["d", "c", "b", "saunter"], correct index follows to 3.
	if first.Choices[3] != "saunter" || first.CorrectIndex != 3 {
		t.Errorf("choices = %v correct = %d", first.Choices, first.CorrectIndex)
	}
	if first.ChoiceDetails[3].Word != "saunter" {
		t.Errorf("details must follow the shuffle: %+v", first.ChoiceDetails)
	}
}

func TestAnswerCorrectAdvances(t *testing.T) {
	st := &mock.Store{
		StartSessionResult: 1,
		ReviewQuestionsResult: []vocab.Question{
			question("r1", "saunter"),
			question("r2", "trudge"),
		},
	}
	c := newComposer(st, session.WithPerm(identityPerm))

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := c.Answer(context.Background(), 1, first.CorrectIndex, 2*time.Second)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !res.Correct {
		t.Error("expected correct")
	}
	if res.SessionComplete {
		t.Error("one more question remains")
	}
	if res.Progress.Answered != 1 || res.Progress.Correct != 1 {
		t.Errorf("progress = %+v", res.Progress)
	}
	if got := st.CallCount("UpsertWordProgress"); got != 1 {
		t.Errorf("UpsertWordProgress calls = %d", got)
	}
	if got := st.CallCount("MarkQuestionAnswered"); got != 1 {
		t.Errorf("MarkQuestionAnswered calls = %d", got)
	}

	next, err := c.Next(context.Background(), 1)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next.Question == nil || next.Question.QuestionID != "r2" {
		t.Fatalf("next = %+v", next)
	}
}

func TestAnswerRecordsOriginalChoiceIndex(t *testing.T) {
	st := &mock.Store{
		StartSessionResult:    1,
		ReviewQuestionsResult: []vocab.Question{question("r1", "saunter")},
	}
	c := newComposer(st, session.WithPerm(reversePerm))

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Delivered slot 3 is the stored slot 0.
	if _, err := c.Answer(context.Background(), 1, first.CorrectIndex, 0); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	var marked *mock.Call
	for _, call := range st.Calls() {
		if call.Method == "MarkQuestionAnswered" {
			marked = &call
			break
		}
	}
	if marked == nil {
		t.Fatal("no MarkQuestionAnswered call")
	}
	if got := marked.Args[1].(int); got != 0 {
		t.Errorf("recorded choice index = %d, want storage order 0", got)
	}
}

func TestAnswerWrongResetsNothingButCounts(t *testing.T) {
	st := &mock.Store{
		StartSessionResult:    1,
		ReviewQuestionsResult: []vocab.Question{question("r1", "saunter")},
	}
	c := newComposer(st, session.WithPerm(identityPerm))

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	wrong := (first.CorrectIndex + 1) % 4
	res, err := c.Answer(context.Background(), 1, wrong, time.Second)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Correct {
		t.Error("expected wrong")
	}
	if res.CorrectIndex != first.CorrectIndex || res.CorrectWord != "saunter" {
		t.Errorf("result = %+v", res)
	}
	if !res.SessionComplete {
		t.Error("single-question session must complete")
	}
	if res.Summary == nil || res.Summary.Total != 1 || res.Summary.Correct != 0 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if got := st.CallCount("EndSession"); got != 1 {
		t.Errorf("EndSession calls = %d", got)
	}
}

func TestAnswerWithoutCurrentQuestion(t *testing.T) {
	st := &mock.Store{
		StartSessionResult: 1,
		ReviewQuestionsResult: []vocab.Question{
			question("r1", "saunter"),
			question("r2", "trudge"),
		},
	}
	c := newComposer(st, session.WithPerm(identityPerm))

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Answer(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	// Answered but not advanced via Next: no current question.
	_, err := c.Answer(context.Background(), 1, 0, 0)
	if !errors.Is(err, session.ErrNoCurrentQuestion) {
		t.Fatalf("err = %v, want ErrNoCurrentQuestion", err)
	}
}

func TestAnswerUnknownSession(t *testing.T) {
	c := newComposer(&mock.Store{})
	_, err := c.Answer(context.Background(), 42, 0, 0)
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestFinishEarly(t *testing.T) {
	st := &mock.Store{
		StartSessionResult: 1,
		ReviewQuestionsResult: []vocab.Question{
			question("r1", "saunter"),
			question("r2", "trudge"),
		},
	}
	c := newComposer(st, session.WithPerm(identityPerm))

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Answer(context.Background(), 1, first.CorrectIndex, 0); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	sum, err := c.Finish(context.Background(), 1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if sum.Total != 1 || sum.Correct != 1 || sum.Accuracy != 100.0 {
		t.Errorf("summary = %+v", sum)
	}
	if _, err := c.Finish(context.Background(), 1); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("second finish err = %v", err)
	}
}

func TestShortfall(t *testing.T) {
	st := &mock.Store{
		StartSessionResult:    1,
		ReviewQuestionsResult: []vocab.Question{question("r1", "saunter")},
	}
	c := newComposer(st, session.WithPerm(identityPerm))

	if got := c.Shortfall(); got != 0 {
		t.Errorf("shortfall with no sessions = %d", got)
	}
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Session size 3, one question held: two short.
	if got := c.Shortfall(); got != 2 {
		t.Errorf("shortfall = %d, want 2", got)
	}
}

func TestSnapshotExtendsSession(t *testing.T) {
	st := &mock.Store{
		StartSessionResult:    1,
		ReviewQuestionsResult: []vocab.Question{question("r1", "saunter")},
	}
	c := newComposer(st, session.WithPerm(identityPerm))

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// New questions appear in the bank mid-session.
	st.NewQuestionsResult = []vocab.Question{question("n1", "trudge")}

	prog, ok := c.Snapshot(context.Background(), 1)
	if !ok {
		t.Fatal("session must exist")
	}
	if prog.Ready != 1 {
		t.Errorf("ready = %d, want the extension picked up", prog.Ready)
	}

	if _, ok := c.Snapshot(context.Background(), 99); ok {
		t.Error("unknown session must report gone")
	}
}
