package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// questionCols is the canonical column list shared by every question
// query so that collectQuestions can scan all of them the same way.
const questionCols = `q.id, q.question_type, q.target_word, q.cluster_title, q.stem,
	q.choices, q.correct_index, q.explanation, q.context_sentence, q.choice_details,
	q.backend, q.generated_at, q.answered_at, q.chosen_index, q.was_correct,
	q.response_time_ms, q.session_id`

// SaveQuestion implements [store.QuestionStore]. Saving an existing ID
// replaces the question wholesale, answer state included.
func (s *Store) SaveQuestion(ctx context.Context, q *vocab.Question) error {
	const sql = `
		INSERT INTO questions
		    (id, question_type, target_word, cluster_title, stem, choices,
		     correct_index, explanation, context_sentence, choice_details,
		     backend, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
		    question_type    = EXCLUDED.question_type,
		    target_word      = EXCLUDED.target_word,
		    cluster_title    = EXCLUDED.cluster_title,
		    stem             = EXCLUDED.stem,
		    choices          = EXCLUDED.choices,
		    correct_index    = EXCLUDED.correct_index,
		    explanation      = EXCLUDED.explanation,
		    context_sentence = EXCLUDED.context_sentence,
		    choice_details   = EXCLUDED.choice_details,
		    backend          = EXCLUDED.backend,
		    generated_at     = EXCLUDED.generated_at,
		    answered_at      = NULL,
		    chosen_index     = 0,
		    was_correct      = FALSE,
		    response_time_ms = 0,
		    session_id       = 0`

	generatedAt := q.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	choiceDetails := q.ChoiceDetails
	if choiceDetails == nil {
		choiceDetails = []vocab.ChoiceDetail{}
	}

	_, err := s.pool.Exec(ctx, sql,
		q.ID,
		string(q.Type),
		q.TargetWord,
		q.ClusterTitle,
		q.Stem,
		q.Choices,
		q.CorrectIndex,
		q.Explanation,
		q.ContextSentence,
		choiceDetails,
		q.Backend,
		generatedAt,
	)
	if err != nil {
		return fmt.Errorf("question store: save: %w", err)
	}
	return nil
}

// MarkQuestionAnswered implements [store.QuestionStore]. The first call
// wins; a repeat call on an already-answered question is a no-op.
func (s *Store) MarkQuestionAnswered(ctx context.Context, id string, chosenIndex int, wasCorrect bool, responseTimeMS int64, sessionID int64) error {
	const q = `
		UPDATE questions
		SET    answered_at = now(), chosen_index = $2, was_correct = $3,
		       response_time_ms = $4, session_id = $5
		WHERE  id = $1 AND answered_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, id, chosenIndex, wasCorrect, responseTimeMS, sessionID)
	if err != nil {
		return fmt.Errorf("question store: mark answered: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("question store: mark answered: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

// ReadyQuestionCount implements [store.QuestionStore].
func (s *Store) ReadyQuestionCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE answered_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("question store: ready count: %w", err)
	}
	return n, nil
}

// SessionQuestions implements [store.QuestionStore]. Due active pairs come
// first (freshly-due before long-overdue), then new pairs; archived pairs
// and reviewed-but-not-due pairs are excluded entirely.
func (s *Store) SessionQuestions(ctx context.Context, limit int) ([]vocab.Question, error) {
	q := `
		SELECT ` + questionCols + `
		FROM   questions q
		LEFT JOIN word_progress wp
		    ON  q.target_word   = wp.word
		    AND q.cluster_title = wp.cluster_title
		WHERE  q.answered_at IS NULL
		  AND  (wp.word IS NULL OR NOT wp.archived)
		  AND  (wp.word IS NULL OR wp.next_review <= now())
		ORDER  BY CASE WHEN wp.word IS NOT NULL THEN 0 ELSE 1 END,
		          wp.next_review DESC,
		          random()
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("question store: session questions: %w", err)
	}
	return collectQuestions(rows)
}

// ReviewQuestions implements [store.QuestionStore].
func (s *Store) ReviewQuestions(ctx context.Context, limit int) ([]vocab.Question, error) {
	q := `
		SELECT ` + questionCols + `
		FROM   questions q
		JOIN   word_progress wp
		    ON  q.target_word   = wp.word
		    AND q.cluster_title = wp.cluster_title
		WHERE  q.answered_at IS NULL
		  AND  NOT wp.archived
		  AND  wp.next_review <= now()
		ORDER  BY wp.next_review DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("question store: review questions: %w", err)
	}
	return collectQuestions(rows)
}

// NewQuestions implements [store.QuestionStore].
func (s *Store) NewQuestions(ctx context.Context, limit int) ([]vocab.Question, error) {
	q := `
		SELECT ` + questionCols + `
		FROM   questions q
		LEFT JOIN word_progress wp
		    ON  q.target_word   = wp.word
		    AND q.cluster_title = wp.cluster_title
		WHERE  q.answered_at IS NULL
		  AND  wp.word IS NULL
		ORDER  BY random()
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("question store: new questions: %w", err)
	}
	return collectQuestions(rows)
}

// ActiveWordNewQuestions implements [store.QuestionStore]. Used to top a
// session up with reinforcement material without repeating the words the
// session already covers.
func (s *Store) ActiveWordNewQuestions(ctx context.Context, limit int, excludeWords map[string]struct{}) ([]vocab.Question, error) {
	exclude := make([]string, 0, len(excludeWords))
	for w := range excludeWords {
		exclude = append(exclude, strings.ToLower(w))
	}

	q := `
		SELECT ` + questionCols + `
		FROM   questions q
		JOIN   word_progress wp
		    ON  q.target_word   = wp.word
		    AND q.cluster_title = wp.cluster_title
		WHERE  q.answered_at IS NULL
		  AND  NOT wp.archived
		  AND  NOT (LOWER(q.target_word) = ANY($2::text[]))
		ORDER  BY random()
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit, exclude)
	if err != nil {
		return nil, fmt.Errorf("question store: active word new questions: %w", err)
	}
	return collectQuestions(rows)
}

// PairQuestionCounts implements [store.QuestionStore]. Only pairs from
// clusters large enough to supply four distinct choices are considered.
func (s *Store) PairQuestionCounts(ctx context.Context) ([]vocab.PairCount, error) {
	const q = `
		SELECT ce.word, ce.meaning, ce.distinction,
		       c.id, c.title,
		       COUNT(q.id)
		FROM   cluster_entries ce
		JOIN   clusters c ON ce.cluster_id = c.id
		LEFT JOIN questions q
		    ON  q.target_word   = ce.word
		    AND q.cluster_title = c.title
		    AND q.answered_at IS NULL
		LEFT JOIN word_progress wp
		    ON  wp.word          = ce.word
		    AND wp.cluster_title = c.title
		WHERE  c.id IN (
		           SELECT cluster_id FROM cluster_entries
		           GROUP BY cluster_id HAVING COUNT(*) >= $1
		       )
		  AND  (wp.word IS NULL OR NOT wp.archived)
		GROUP  BY ce.word, ce.meaning, ce.distinction, c.id, c.title`

	rows, err := s.pool.Query(ctx, q, vocab.MinClusterSize)
	if err != nil {
		return nil, fmt.Errorf("question store: pair counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.PairCount, error) {
		var pc vocab.PairCount
		err := row.Scan(&pc.Word, &pc.Meaning, &pc.Distinction, &pc.ClusterID, &pc.ClusterTitle, &pc.ReadyCount)
		return pc, err
	})
	if err != nil {
		return nil, fmt.Errorf("question store: scan pair counts: %w", err)
	}
	if counts == nil {
		counts = []vocab.PairCount{}
	}
	return counts, nil
}

// PairsNeedingQuestions implements [store.QuestionStore]. Soonest-due
// first so pairs about to come up for review generate ahead of the rest.
func (s *Store) PairsNeedingQuestions(ctx context.Context) ([]vocab.Pair, error) {
	const q = `
		SELECT wp.word, wp.cluster_title
		FROM   word_progress wp
		LEFT JOIN questions q
		    ON  q.target_word   = wp.word
		    AND q.cluster_title = wp.cluster_title
		    AND q.answered_at IS NULL
		WHERE  NOT wp.archived
		  AND  q.id IS NULL
		ORDER  BY wp.next_review ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("question store: pairs needing questions: %w", err)
	}
	return collectPairs(rows)
}

// NewPairsWithoutQuestions implements [store.QuestionStore].
func (s *Store) NewPairsWithoutQuestions(ctx context.Context, limit int) ([]vocab.Pair, error) {
	const q = `
		SELECT ce.word, c.title
		FROM   cluster_entries ce
		JOIN   clusters c ON ce.cluster_id = c.id
		LEFT JOIN word_progress wp
		    ON  ce.word = wp.word AND c.title = wp.cluster_title
		LEFT JOIN questions q
		    ON  q.target_word   = ce.word
		    AND q.cluster_title = c.title
		    AND q.answered_at IS NULL
		WHERE  wp.word IS NULL
		  AND  q.id IS NULL
		  AND  c.id IN (
		           SELECT cluster_id FROM cluster_entries
		           GROUP BY cluster_id HAVING COUNT(*) >= $2
		       )
		ORDER  BY random()
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit, vocab.MinClusterSize)
	if err != nil {
		return nil, fmt.Errorf("question store: new pairs without questions: %w", err)
	}
	return collectPairs(rows)
}

// QuestionAudioTexts implements [store.QuestionStore].
func (s *Store) QuestionAudioTexts(ctx context.Context) ([]string, error) {
	const q = `
		SELECT explanation, context_sentence
		FROM   questions
		WHERE  answered_at IS NULL`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("question store: audio texts: %w", err)
	}
	defer rows.Close()

	texts := []string{}
	for rows.Next() {
		var explanation, sentence string
		if err := rows.Scan(&explanation, &sentence); err != nil {
			return nil, fmt.Errorf("question store: scan audio texts: %w", err)
		}
		if explanation != "" {
			texts = append(texts, explanation)
		}
		if sentence != "" {
			texts = append(texts, sentence)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("question store: audio texts: %w", err)
	}
	return texts, nil
}

// collectQuestions scans pgx rows produced with questionCols into a slice
// of Question values.
func collectQuestions(rows pgx.Rows) ([]vocab.Question, error) {
	questions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.Question, error) {
		var (
			q          vocab.Question
			qtype      string
			answeredAt *time.Time
		)
		if err := row.Scan(
			&q.ID,
			&qtype,
			&q.TargetWord,
			&q.ClusterTitle,
			&q.Stem,
			&q.Choices,
			&q.CorrectIndex,
			&q.Explanation,
			&q.ContextSentence,
			&q.ChoiceDetails,
			&q.Backend,
			&q.GeneratedAt,
			&answeredAt,
			&q.ChosenIndex,
			&q.WasCorrect,
			&q.ResponseTimeMS,
			&q.SessionID,
		); err != nil {
			return vocab.Question{}, err
		}
		q.Type = vocab.QuestionType(qtype)
		if answeredAt != nil {
			q.AnsweredAt = *answeredAt
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("question store: scan rows: %w", err)
	}
	if questions == nil {
		questions = []vocab.Question{}
	}
	return questions, nil
}

// collectPairs scans (word, cluster_title) rows.
func collectPairs(rows pgx.Rows) ([]vocab.Pair, error) {
	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.Pair, error) {
		var p vocab.Pair
		err := row.Scan(&p.Word, &p.ClusterTitle)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("question store: scan pairs: %w", err)
	}
	if pairs == nil {
		pairs = []vocab.Pair{}
	}
	return pairs, nil
}
