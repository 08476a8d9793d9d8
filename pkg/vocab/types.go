// Package vocab defines the shared domain types for the lexvoss
// vocabulary training server: words, distinction clusters, generated
// questions, per-pair SRS progress, and training sessions.
//
// These types are plain data carriers shared between the store, the
// question builder, and the session composer. They hold no behaviour
// beyond small convenience accessors.
package vocab

import "time"

// QuestionType identifies the format of a generated question.
type QuestionType string

const (
	// FillBlank is a sentence with exactly one "___" marker.
	FillBlank QuestionType = "fill_blank"

	// BestFit is a scenario followed by "which word best describes …?".
	BestFit QuestionType = "best_fit"

	// Distinction probes the semantic boundary between near-synonyms.
	Distinction QuestionType = "distinction"
)

// IsValid reports whether t is a recognised question type.
func (t QuestionType) IsValid() bool {
	switch t {
	case FillBlank, BestFit, Distinction:
		return true
	}
	return false
}

// Word is a single vocabulary entry imported from a source file.
// Words are immutable during normal operation; a full re-import of the
// originating file replaces them wholesale.
type Word struct {
	// Word is the headword. Uniqueness is case-insensitive.
	Word string

	// Definition is the dictionary-style gloss.
	Definition string

	// Section is the originating section heading in the source file.
	Section string

	// SourceFile is the name of the file the word was imported from.
	SourceFile string
}

// ClusterEntry is one member of a distinction cluster: the word, its
// meaning within the cluster, and what sets it apart from its
// near-synonyms.
type ClusterEntry struct {
	Word        string
	Meaning     string
	Distinction string
}

// Cluster is a curated group of near-synonyms. A cluster with fewer
// than MinClusterSize entries cannot supply the four distinct choices a
// question needs and is ineligible for generation.
type Cluster struct {
	// ID is the store-assigned identifier.
	ID int64

	// Title uniquely names the cluster (e.g. "Happiness and Joy").
	Title string

	// Preamble introduces the cluster in the source material.
	Preamble string

	// Commentary is the source material's closing discussion.
	Commentary string

	// SourceFile is the file the cluster was imported from.
	SourceFile string

	// Entries lists the member words in source order.
	Entries []ClusterEntry
}

// MinClusterSize is the minimum number of entries a cluster needs to be
// eligible for question generation (one correct choice + three
// distractors).
const MinClusterSize = 4

// Eligible reports whether the cluster has enough entries to generate
// four-choice questions.
func (c *Cluster) Eligible() bool {
	return len(c.Entries) >= MinClusterSize
}

// ChoiceDetail annotates a single choice of a question: what the word
// means, how it differs from the cluster, and why it does or does not
// fit this particular stem.
type ChoiceDetail struct {
	// Word is the choice text exactly as shown (possibly inflected).
	Word string `json:"word"`

	// BaseWord is the uninflected cluster headword behind the choice.
	BaseWord string `json:"base_word"`

	Meaning     string `json:"meaning"`
	Distinction string `json:"distinction"`

	// Why is a stem-specific note on the choice's fitness. Empty when
	// the annotation came from the store fallback rather than the
	// generator.
	Why string `json:"why"`
}

// Question is a stored multiple-choice question. A question with a zero
// AnsweredAt is ready (eligible for serving); once answered it becomes a
// permanent historical record and is never served again.
type Question struct {
	// ID is an opaque unique identifier (UUID).
	ID string

	Type QuestionType

	// TargetWord is the base cluster word the question tests. When the
	// generator used an inflected form in the choices, TargetWord still
	// holds the base form.
	TargetWord string

	// ClusterTitle names the cluster the question was drawn from.
	ClusterTitle string

	// Stem is the question text. For FillBlank it contains exactly one
	// "___" marker.
	Stem string

	// Choices are the four answer options in generation order. All four
	// are case-insensitively distinct.
	Choices []string

	// CorrectIndex points into Choices at the correct answer.
	CorrectIndex int

	Explanation string

	// ContextSentence is the fully resolved sentence (blank filled in),
	// used for audio narration.
	ContextSentence string

	// ChoiceDetails annotates Choices position-by-position.
	ChoiceDetails []ChoiceDetail

	// Backend names the generation backend that produced the question.
	Backend string

	GeneratedAt time.Time

	// Answer-state fields, set exactly once by MarkQuestionAnswered.
	AnsweredAt     time.Time
	ChosenIndex    int
	WasCorrect     bool
	ResponseTimeMS int64
	SessionID      int64
}

// Answered reports whether the question has been consumed.
func (q *Question) Answered() bool {
	return !q.AnsweredAt.IsZero()
}

// WordProgress is the SRS state for a (word, cluster) pair. A pair with
// no row is new; with Archived false it is active; with Archived true it
// is mastered and excluded from rotation.
type WordProgress struct {
	Word         string
	ClusterTitle string

	// EasinessFactor is the SM-2 EF, floored at 1.3. Default 2.5.
	EasinessFactor float64

	// IntervalDays is the current SM-2 interval. Default 1.0.
	IntervalDays float64

	// Repetitions counts consecutive successful reviews.
	Repetitions int

	NextReview time.Time
	LastReview time.Time

	TotalCorrect   int
	TotalIncorrect int

	Archived bool
}

// Session is the durable record of a training session. Totals are
// written when the session ends.
type Session struct {
	ID               int64
	StartedAt        time.Time
	EndedAt          time.Time
	QuestionsTotal   int
	QuestionsCorrect int
}

// PairCount reports the number of ready questions for one eligible
// (word, cluster) pair, along with the cluster-entry metadata needed to
// prompt the generator. Produced by the store's coverage query and
// consumed by the builder's weighted target selection.
type PairCount struct {
	Word         string
	Meaning      string
	Distinction  string
	ClusterID    int64
	ClusterTitle string
	ReadyCount   int
}

// Pair identifies a (word, cluster) combination.
type Pair struct {
	Word         string
	ClusterTitle string
}

// Stats is the aggregate progress snapshot served by the stats endpoint.
type Stats struct {
	TotalWords        int     `json:"total_words"`
	TotalClusters     int     `json:"total_clusters"`
	WordsReviewed     int     `json:"words_reviewed"`
	WordsDue          int     `json:"words_due"`
	WordsNew          int     `json:"words_new"`
	QuestionBankSize  int     `json:"question_bank_size"`
	QuestionsReady    int     `json:"questions_ready"`
	QuestionsArchived int     `json:"questions_archived"`
	ActiveWords       int     `json:"active_words"`
	TotalSessions     int     `json:"total_sessions"`
	TotalAnswered     int     `json:"total_questions_answered"`
	TotalCorrect      int     `json:"total_correct"`
	Accuracy          float64 `json:"accuracy"`
}
