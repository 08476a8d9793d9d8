package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lexvoss/pkg/provider/llm"
	"lexvoss/pkg/vocab"
)

// chatContext is the quiz state the frontend sends with the first chat
// message, so the tutor can ground its reply in the question just
// answered.
type chatContext struct {
	QuestionType    vocab.QuestionType   `json:"question_type"`
	Stem            string               `json:"stem"`
	Choices         []string             `json:"choices"`
	CorrectWord     string               `json:"correct_word"`
	Explanation     string               `json:"explanation"`
	ContextSentence string               `json:"context_sentence"`
	ClusterTitle    string               `json:"cluster_title"`
	SelectedIndex   *int                 `json:"selected_index"`
	WasCorrect      bool                 `json:"was_correct"`
	ChoiceDetails   []vocab.ChoiceDetail `json:"choice_details"`
}

// chatMessage is one prior turn of the tutoring conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var questionTypeLabels = map[vocab.QuestionType]string{
	vocab.FillBlank:   "fill-in-the-blank",
	vocab.BestFit:     "best-fit",
	vocab.Distinction: "distinction",
}

const tutorPreamble = `You are a vocabulary tutor. Your mission is to teach impeccable vocabulary use: the student should walk away knowing not just what each word means, but exactly when to reach for it instead of its near-synonyms, what collocations it naturally forms, and where substituting a close alternative would sound wrong to a native ear.

Your first sentence always delivers substance: a specific semantic distinction, an etymological root, a revealing collocational pattern. You write in flowing prose with **bold** highlights and example sentences woven in naturally. No lists, no tables.

Here is an example of the quality of insight you produce:
"**Beatific** and **blissful** both describe profound happiness, but they diverge in register and reach. **Beatific** carries a specifically religious resonance (from Latin *beatus*, blessed) and implies serene, transcendent joy: you'd write 'a beatific smile' but never 'beatific ignorance.' **Blissful** works in secular contexts and pairs naturally with unawareness ('blissful ignorance,' 'blissful sleep'), a happiness that's felt rather than radiated outward. **Elated** moves into a different register entirely: it's active, momentary, tied to a specific occasion, where the other two describe sustained states."
`

// buildChatPrompt assembles the single-string prompt for the tutor.
//
// The first message of a conversation gets a rich preamble with the
// full quiz context and word definitions, priming the model thoroughly
// enough that it needs no chain-of-thought warmup. Follow-ups send just
// the conversation as Student/Tutor turns.
func buildChatPrompt(qc chatContext, history []chatMessage, message string) string {
	if len(history) > 0 {
		var b strings.Builder
		for _, msg := range history {
			role := "Tutor"
			if msg.Role == "user" {
				role = "Student"
			}
			fmt.Fprintf(&b, "%s: %s\n\n", role, msg.Content)
		}
		fmt.Fprintf(&b, "Student: %s\n\nTutor:", message)
		return b.String()
	}

	label, ok := questionTypeLabels[qc.QuestionType]
	if !ok {
		label = string(qc.QuestionType)
	}

	labels := []string{"A", "B", "C", "D"}
	choiceParts := make([]string, 0, len(qc.Choices))
	for i, c := range qc.Choices {
		if i < len(labels) {
			choiceParts = append(choiceParts, fmt.Sprintf("%s) %s", labels[i], c))
		}
	}

	chosen := "?"
	if qc.SelectedIndex != nil && *qc.SelectedIndex >= 0 && *qc.SelectedIndex < len(qc.Choices) {
		chosen = qc.Choices[*qc.SelectedIndex]
	}

	var outcome, task string
	if qc.WasCorrect {
		outcome = fmt.Sprintf("The student chose %q, which is correct.", chosen)
		task = fmt.Sprintf("Deepen their understanding of why **%s** fits and how it differs from the alternatives.", qc.CorrectWord)
	} else {
		outcome = fmt.Sprintf("The student chose %q, which is wrong. The correct answer is %q.", chosen, qc.CorrectWord)
		task = fmt.Sprintf("Clarify why **%s** doesn't fit and what makes **%s** the right choice. Then illuminate the broader distinctions.", chosen, qc.CorrectWord)
	}

	var b strings.Builder
	b.WriteString(tutorPreamble)
	b.WriteString("\nContext for this question:\n")
	b.WriteString(label + " quiz")
	if qc.ClusterTitle != "" {
		b.WriteString(", cluster: " + qc.ClusterTitle)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Stem: %s\n", qc.Stem)
	fmt.Fprintf(&b, "Choices: %s\n", strings.Join(choiceParts, ", "))
	b.WriteString(outcome + "\n")
	fmt.Fprintf(&b, "Explanation: %s\n", qc.Explanation)
	fmt.Fprintf(&b, "Context sentence: %s\n", qc.ContextSentence)

	var defs []string
	for _, d := range qc.ChoiceDetails {
		if d.Meaning == "" {
			continue
		}
		line := fmt.Sprintf("  - %s: %s", d.Word, d.Meaning)
		if d.Distinction != "" {
			line += ", " + d.Distinction
		}
		defs = append(defs, line)
	}
	if len(defs) > 0 {
		b.WriteString("Word definitions:\n")
		b.WriteString(strings.Join(defs, "\n"))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s\n\nStudent: %s\n\nTutor: **", task, message)
	return b.String()
}

// handleChat streams a tutor reply over SSE. Chat preempts background
// question generation: the generation backend is acquired before the
// stream opens and released (with a buffer re-check) when it ends.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string        `json:"message"`
		Context chatContext   `json:"context"`
		History []chatMessage `json:"history"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.badRequest(w, "no message provided")
		return
	}
	if s.chat == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no chat backend configured",
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fmt.Errorf("server: response writer does not support streaming"))
		return
	}

	ctx := r.Context()
	if err := s.buf.AcquireForChat(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	defer s.buf.ReleaseChat(context.WithoutCancel(ctx))

	prompt := buildChatPrompt(req.Context, req.History, req.Message)
	start := time.Now()
	stream, err := s.chat.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.7,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for chunk := range stream {
		if chunk.FinishReason == "error" {
			writeEvent(map[string]string{"error": chunk.Text})
			s.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds())
			return
		}
		if chunk.Text == "" {
			continue
		}
		if !writeEvent(map[string]string{"token": chunk.Text}) {
			// Client went away; drain so the provider can close.
			for range stream {
			}
			break
		}
	}
	writeEvent(map[string]bool{"done": true})
	s.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds())
}
