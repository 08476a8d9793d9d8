// Package question turns (word, cluster) pairs into validated
// multiple-choice questions via a two-stage model conversation: stage
// one writes the stem, choices, and explanation; stage two annotates
// every choice. Each stage retries with the specific validation error
// fed back to the model, and stage two falls back to cluster-entry
// lookup when the model never produces a usable annotation.
package question

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lexvoss/internal/store"
	"lexvoss/pkg/provider/llm"
	"lexvoss/pkg/vocab"
)

const (
	// MaxRetries bounds stage-one attempts per question.
	MaxRetries = 3

	// EnrichmentRetries bounds stage-two attempts before the lookup
	// fallback.
	EnrichmentRetries = 3

	// GenerationTimeout caps a single model request.
	GenerationTimeout = 120 * time.Second

	stageOneTemperature = 0.7
	stageTwoTemperature = 0.3
)

// Question type selection weights. Fill-blank items carry the bulk of
// training; distinction items are the rarest.
var typeWeights = []struct {
	t vocab.QuestionType
	w float64
}{
	{vocab.FillBlank, 0.60},
	{vocab.BestFit, 0.25},
	{vocab.Distinction, 0.15},
}

const noJSONFeedback = "Your response did not contain valid JSON. Respond with ONLY a JSON object, no other text."

// Builder generates questions against a store and a generation backend.
type Builder struct {
	store store.Store
	llm   llm.Provider
	log   *slog.Logger

	randFloat func() float64
	randIntN  func(n int) int
}

// Option customizes a Builder.
type Option func(*Builder)

// WithRand overrides the random sources. Tests use this to pin type and
// pair selection.
func WithRand(randFloat func() float64, randIntN func(n int) int) Option {
	return func(b *Builder) {
		b.randFloat = randFloat
		b.randIntN = randIntN
	}
}

// NewBuilder builds a Builder over st and p.
func NewBuilder(st store.Store, p llm.Provider, log *slog.Logger, opts ...Option) *Builder {
	if log == nil {
		log = slog.Default()
	}
	b := &Builder{
		store:     st,
		llm:       p,
		log:       log,
		randFloat: rand.Float64,
		randIntN:  rand.IntN,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// pickType draws a question type from the weight table.
func (b *Builder) pickType() vocab.QuestionType {
	r := b.randFloat()
	cumulative := 0.0
	for _, tw := range typeWeights {
		cumulative += tw.w
		if r <= cumulative {
			return tw.t
		}
	}
	return vocab.FillBlank
}

// pickPair draws a (cluster, entry) pair weighted by coverage deficit:
// each pair's probability is proportional to 1/(1+ready_count), so
// well-covered pairs are unlikely and uncovered pairs most likely.
// Returns (nil, nil, nil) when no eligible pairs exist.
func (b *Builder) pickPair(ctx context.Context) (*vocab.Cluster, *vocab.ClusterEntry, error) {
	pairs, err := b.store.PairQuestionCounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("builder: pair counts: %w", err)
	}
	if len(pairs) == 0 {
		return nil, nil, nil
	}

	total := 0.0
	weights := make([]float64, len(pairs))
	for i, p := range pairs {
		weights[i] = 1.0 / float64(1+p.ReadyCount)
		total += weights[i]
	}
	r := b.randFloat() * total
	chosen := pairs[len(pairs)-1]
	for i, w := range weights {
		r -= w
		if r <= 0 {
			chosen = pairs[i]
			break
		}
	}

	cluster, err := b.store.ClusterByTitle(ctx, chosen.ClusterTitle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("builder: load cluster %q: %w", chosen.ClusterTitle, err)
	}
	entry := &vocab.ClusterEntry{
		Word:        chosen.Word,
		Meaning:     chosen.Meaning,
		Distinction: chosen.Distinction,
	}
	return cluster, entry, nil
}

// GenerateOne picks a coverage-weighted pair and a weighted question
// type and generates a single question. Returns (nil, nil) when no
// eligible pairs exist.
func (b *Builder) GenerateOne(ctx context.Context) (*vocab.Question, error) {
	cluster, entry, err := b.pickPair(ctx)
	if err != nil || cluster == nil {
		return nil, err
	}
	return b.Generate(ctx, cluster, entry, b.pickType())
}

// GenerateForPair generates a question targeting a specific
// (word, cluster) combination, e.g. when refilling after an answer.
// Returns (nil, nil) when the cluster or word is unknown.
func (b *Builder) GenerateForPair(ctx context.Context, word, clusterTitle string) (*vocab.Question, error) {
	cluster, err := b.store.ClusterByTitle(ctx, clusterTitle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("builder: load cluster %q: %w", clusterTitle, err)
	}
	for i := range cluster.Entries {
		if strings.EqualFold(cluster.Entries[i].Word, word) {
			return b.Generate(ctx, cluster, &cluster.Entries[i], b.pickType())
		}
	}
	return nil, nil
}

// Generate runs the two-stage conversation for one question. A nil
// question with nil error means the model never produced a valid
// stage-one payload within the retry budget.
func (b *Builder) Generate(ctx context.Context, cluster *vocab.Cluster, entry *vocab.ClusterEntry, qt vocab.QuestionType) (*vocab.Question, error) {
	if !cluster.Eligible() {
		return nil, nil
	}

	enrichment, err := b.store.RandomWords(ctx, 5+b.randIntN(6))
	if err != nil {
		return nil, fmt.Errorf("builder: enrichment words: %w", err)
	}

	basePrompt := renderPrompt(promptForType(qt), map[string]string{
		"cluster_title":      cluster.Title,
		"cluster_info":       formatClusterInfo(cluster.Entries),
		"target_word":        entry.Word,
		"target_meaning":     entry.Meaning,
		"target_distinction": entry.Distinction,
		"enrichment_section": formatEnrichment(enrichment),
	})

	prompt := basePrompt
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		b.log.Info("generate question",
			"type", qt, "word", entry.Word, "cluster", cluster.Title,
			"attempt", attempt, "max_attempts", MaxRetries)

		response, err := b.complete(ctx, prompt, stageOneTemperature)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("builder: generate: %w", ctx.Err())
			}
			b.log.Warn("generation request failed", "attempt", attempt, "error", err)
			continue
		}

		data := extractJSON(response)
		if data == nil {
			prompt = basePrompt + "\n\n" + noJSONFeedback
			b.log.Info("stage one returned no valid JSON, feeding back", "attempt", attempt)
			continue
		}

		d, reason := validateQuestion(data, entry.Word, qt)
		if reason != "" {
			prompt = basePrompt + "\n\nYour previous response had errors: " + reason +
				"\nPlease fix and respond with corrected JSON only."
			b.log.Info("stage one validation failed, feeding back", "attempt", attempt, "reason", reason)
			continue
		}

		details := b.enrichChoices(ctx, cluster, d)

		return &vocab.Question{
			ID:              uuid.NewString(),
			Type:            qt,
			TargetWord:      entry.Word,
			ClusterTitle:    cluster.Title,
			Stem:            d.Stem,
			Choices:         d.Choices,
			CorrectIndex:    d.CorrectIndex,
			Explanation:     d.Explanation,
			ContextSentence: d.ContextSentence,
			ChoiceDetails:   details,
			Backend:         b.llm.Name(),
			GeneratedAt:     time.Now().UTC(),
		}, nil
	}

	b.log.Warn("question generation exhausted retries",
		"word", entry.Word, "cluster", cluster.Title, "type", qt)
	return nil, nil
}

// enrichChoices runs stage two: a lower-temperature call annotating each
// choice. On persistent failure it falls back to cluster-entry lookup,
// matching inflected choices by suffix stripping.
func (b *Builder) enrichChoices(ctx context.Context, cluster *vocab.Cluster, d *draft) []vocab.ChoiceDetail {
	basePrompt := renderPrompt(enrichmentPrompt, map[string]string{
		"cluster_title":     cluster.Title,
		"cluster_info":      formatClusterInfo(cluster.Entries),
		"stem":              d.Stem,
		"choices_formatted": strings.Join(d.Choices, ", "),
		"correct_word":      d.Choices[d.CorrectIndex],
		"correct_index":     strconv.Itoa(d.CorrectIndex),
	})

	prompt := basePrompt
	for attempt := 1; attempt <= EnrichmentRetries; attempt++ {
		b.log.Info("enrich choices", "attempt", attempt, "max_attempts", EnrichmentRetries)

		response, err := b.complete(ctx, prompt, stageTwoTemperature)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.log.Info("enrichment request failed", "attempt", attempt, "error", err)
			continue
		}

		parsed := extractJSON(response)
		if parsed == nil {
			prompt = basePrompt + "\n\n" + noJSONFeedback
			b.log.Info("enrichment returned no valid JSON, feeding back", "attempt", attempt)
			continue
		}

		rawDetails, _ := parsed["choice_details"].([]any)
		if errMsg := validateEnrichment(rawDetails, len(d.Choices)); errMsg != "" {
			prompt = basePrompt + "\n\nYour previous response had errors:\n" + errMsg +
				"\n\nPlease fix and respond with corrected JSON only."
			b.log.Info("enrichment validation failed, feeding back",
				"attempt", attempt, "reason", strings.SplitN(errMsg, "\n", 2)[0])
			continue
		}

		return decodeChoiceDetails(rawDetails)
	}

	b.log.Info("enrichment falling back to cluster lookup")
	return fallbackChoiceDetails(cluster.Entries, d.Choices)
}

// complete issues one model request under the generation timeout.
func (b *Builder) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, GenerationTimeout)
	defer cancel()

	resp, err := b.llm.Complete(reqCtx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func decodeChoiceDetails(raw []any) []vocab.ChoiceDetail {
	out := make([]vocab.ChoiceDetail, 0, len(raw))
	for _, r := range raw {
		obj, _ := r.(map[string]any)
		detail := vocab.ChoiceDetail{}
		detail.Word, _ = obj["word"].(string)
		detail.BaseWord, _ = obj["base_word"].(string)
		detail.Meaning, _ = obj["meaning"].(string)
		detail.Distinction, _ = obj["distinction"].(string)
		detail.Why, _ = obj["why"].(string)
		out = append(out, detail)
	}
	return out
}

// fallbackChoiceDetails annotates choices from the cluster entries,
// stripping regular suffixes to match inflected forms. Unknown choices
// keep empty meaning and distinction.
func fallbackChoiceDetails(entries []vocab.ClusterEntry, choices []string) []vocab.ChoiceDetail {
	byWord := make(map[string]*vocab.ClusterEntry, len(entries))
	for i := range entries {
		byWord[strings.ToLower(entries[i].Word)] = &entries[i]
	}

	out := make([]vocab.ChoiceDetail, 0, len(choices))
	for _, c := range choices {
		detail := vocab.ChoiceDetail{Word: c, BaseWord: c}
		if e := lookupEntry(byWord, c); e != nil {
			detail.BaseWord = e.Word
			detail.Meaning = e.Meaning
			detail.Distinction = e.Distinction
		}
		out = append(out, detail)
	}
	return out
}

// lookupEntry matches a choice to a cluster entry, trying suffix
// stripping for inflected forms.
func lookupEntry(byWord map[string]*vocab.ClusterEntry, choice string) *vocab.ClusterEntry {
	key := strings.ToLower(choice)
	if e, ok := byWord[key]; ok {
		return e
	}
	for _, suffix := range []string{"ed", "d", "ing", "s", "es", "ly"} {
		if trimmed, ok := strings.CutSuffix(key, suffix); ok {
			if e, found := byWord[trimmed]; found {
				return e
			}
		}
	}
	return nil
}
