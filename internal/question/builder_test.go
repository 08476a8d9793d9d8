package question_test

import (
	"context"
	"strings"
	"testing"

	"lexvoss/internal/question"
	storemock "lexvoss/internal/store/mock"
	"lexvoss/pkg/provider/llm"
	llmmock "lexvoss/pkg/provider/llm/mock"
	"lexvoss/pkg/vocab"
)

var walkingCluster = &vocab.Cluster{
	ID:    1,
	Title: "Walking and Movement",
	Entries: []vocab.ClusterEntry{
		{Word: "saunter", Meaning: "walk in a slow, relaxed manner", Distinction: "confident, unhurried"},
		{Word: "trudge", Meaning: "walk slowly with heavy steps", Distinction: "weariness or reluctance"},
		{Word: "stride", Meaning: "walk with long, decisive steps", Distinction: "purpose and determination"},
		{Word: "amble", Meaning: "walk at a slow, easy pace", Distinction: "gentle aimlessness"},
	},
}

const validStageOne = `{"stem": "He loves to ___ through the market.",
"choices": ["saunter", "trudge", "stride", "amble"],
"correct_index": 0,
"explanation": "Saunter combines unhurried pace with swagger.",
"context_sentence": "He loves to saunter through the market."}`

const validStageTwo = `{"choice_details": [
{"word": "saunter", "base_word": "saunter", "meaning": "walk in a slow, relaxed manner", "distinction": "confident, unhurried", "why": "Fits."},
{"word": "trudge", "base_word": "trudge", "meaning": "walk slowly with heavy steps", "distinction": "weariness or reluctance", "why": "Doesn't fit."},
{"word": "stride", "base_word": "stride", "meaning": "walk with long, decisive steps", "distinction": "purpose and determination", "why": "Doesn't fit."},
{"word": "amble", "base_word": "amble", "meaning": "walk at a slow, easy pace", "distinction": "gentle aimlessness", "why": "Doesn't fit."}]}`

func resp(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: content}
}

func fixedRand(floats ...float64) (func() float64, func(int) int) {
	i := 0
	randFloat := func() float64 {
		v := floats[i%len(floats)]
		i++
		return v
	}
	return randFloat, func(n int) int { return 0 }
}

func TestGenerateTwoStage(t *testing.T) {
	st := &storemock.Store{ClusterByTitleResult: walkingCluster}
	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{resp(validStageOne), resp(validStageTwo)},
		NameValue:         "ollama/qwen3:8b",
	}
	rf, ri := fixedRand(0.1)
	b := question.NewBuilder(st, p, nil, question.WithRand(rf, ri))

	q, err := b.Generate(context.Background(), walkingCluster, &walkingCluster.Entries[0], vocab.FillBlank)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q == nil {
		t.Fatal("expected a question")
	}
	if q.ID == "" {
		t.Error("question must get an ID")
	}
	if q.TargetWord != "saunter" || q.ClusterTitle != "Walking and Movement" {
		t.Errorf("target = %q cluster = %q", q.TargetWord, q.ClusterTitle)
	}
	if q.Backend != "ollama/qwen3:8b" {
		t.Errorf("backend = %q", q.Backend)
	}
	if len(q.ChoiceDetails) != 4 || q.ChoiceDetails[0].Why != "Fits." {
		t.Errorf("choice details = %+v", q.ChoiceDetails)
	}
	if len(p.CompleteCalls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(p.CompleteCalls))
	}
	if p.CompleteCalls[0].Req.Temperature != 0.7 {
		t.Errorf("stage one temperature = %v", p.CompleteCalls[0].Req.Temperature)
	}
	if p.CompleteCalls[1].Req.Temperature != 0.3 {
		t.Errorf("stage two temperature = %v", p.CompleteCalls[1].Req.Temperature)
	}
}

func TestGenerateFeedsValidationErrorBack(t *testing.T) {
	missingTarget := `{"stem": "He loves to ___ there.",
"choices": ["trudge", "stride", "amble", "plod"],
"correct_index": 0,
"explanation": "x",
"context_sentence": "He saunters there."}`

	st := &storemock.Store{ClusterByTitleResult: walkingCluster}
	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			resp(missingTarget), resp(validStageOne), resp(validStageTwo),
		},
	}
	rf, ri := fixedRand(0.1)
	b := question.NewBuilder(st, p, nil, question.WithRand(rf, ri))

	q, err := b.Generate(context.Background(), walkingCluster, &walkingCluster.Entries[0], vocab.FillBlank)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q == nil {
		t.Fatal("expected a question after retry")
	}
	if len(p.CompleteCalls) != 3 {
		t.Fatalf("expected 3 model calls, got %d", len(p.CompleteCalls))
	}
	retryPrompt := p.CompleteCalls[1].Req.Messages[0].Content
	if !strings.Contains(retryPrompt, "Your previous response had errors") {
		t.Error("retry prompt must carry the validation error")
	}
	if !strings.Contains(retryPrompt, "'saunter' is missing") {
		t.Error("retry prompt must name the missing target word")
	}
}

func TestGenerateGivesUpAfterRetries(t *testing.T) {
	st := &storemock.Store{ClusterByTitleResult: walkingCluster}
	p := &llmmock.Provider{CompleteResponse: resp("not json at all")}
	rf, ri := fixedRand(0.1)
	b := question.NewBuilder(st, p, nil, question.WithRand(rf, ri))

	q, err := b.Generate(context.Background(), walkingCluster, &walkingCluster.Entries[0], vocab.FillBlank)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q != nil {
		t.Fatal("expected nil question on exhausted retries")
	}
	if len(p.CompleteCalls) != question.MaxRetries {
		t.Errorf("expected %d attempts, got %d", question.MaxRetries, len(p.CompleteCalls))
	}
}

func TestGenerateEnrichmentFallback(t *testing.T) {
	// Stage one succeeds, stage two never returns valid JSON. The
	// builder must fall back to cluster-entry lookup, matching the
	// inflected choice by suffix stripping.
	inflectedStageOne := `{"stem": "Despite the rain, they ___ on.",
"choices": ["trudged", "sauntered", "strided", "ambled"],
"correct_index": 0,
"explanation": "x",
"context_sentence": "They trudged on through the rain."}`

	st := &storemock.Store{ClusterByTitleResult: walkingCluster}
	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{resp(inflectedStageOne)},
		CompleteResponse:  resp("still not json"),
	}
	rf, ri := fixedRand(0.1)
	b := question.NewBuilder(st, p, nil, question.WithRand(rf, ri))

	q, err := b.Generate(context.Background(), walkingCluster, &walkingCluster.Entries[1], vocab.FillBlank)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q == nil {
		t.Fatal("expected a question")
	}
	if len(q.ChoiceDetails) != 4 {
		t.Fatalf("choice details = %+v", q.ChoiceDetails)
	}
	first := q.ChoiceDetails[0]
	if first.Word != "trudged" || first.BaseWord != "trudge" {
		t.Errorf("fallback must resolve inflection: %+v", first)
	}
	if first.Meaning != "walk slowly with heavy steps" {
		t.Errorf("fallback meaning = %q", first.Meaning)
	}
	if first.Why != "" {
		t.Errorf("fallback why must be empty, got %q", first.Why)
	}
}

func TestGenerateForPairUnknownCluster(t *testing.T) {
	st := &storemock.Store{}
	p := &llmmock.Provider{}
	b := question.NewBuilder(st, p, nil)

	q, err := b.GenerateForPair(context.Background(), "saunter", "No Such Cluster")
	if err != nil {
		t.Fatalf("GenerateForPair: %v", err)
	}
	if q != nil {
		t.Fatal("expected nil question for unknown cluster")
	}
	if len(p.CompleteCalls) != 0 {
		t.Errorf("no model calls expected, got %d", len(p.CompleteCalls))
	}
}

func TestGenerateOnePicksUncoveredPairs(t *testing.T) {
	st := &storemock.Store{
		PairQuestionCountsResult: []vocab.PairCount{
			{Word: "saunter", ClusterTitle: "Walking and Movement", ReadyCount: 9,
				Meaning: "walk in a slow, relaxed manner", Distinction: "confident, unhurried"},
			{Word: "trudge", ClusterTitle: "Walking and Movement", ReadyCount: 0,
				Meaning: "walk slowly with heavy steps", Distinction: "weariness or reluctance"},
		},
		ClusterByTitleResult: walkingCluster,
	}
	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{resp(`{"stem": "Wearily they ___ home.",
"choices": ["trudge", "saunter", "stride", "amble"],
"correct_index": 0,
"explanation": "x",
"context_sentence": "Wearily they trudge home."}`), resp(validStageTwo)},
	}

	// Weights are 0.1 and 1.0; a draw of 0.5 lands past the first
	// pair's share, selecting the uncovered one. The same value keeps
	// the type pick on fill_blank.
	rf, ri := fixedRand(0.5)
	b := question.NewBuilder(st, p, nil, question.WithRand(rf, ri))

	q, err := b.GenerateOne(context.Background())
	if err != nil {
		t.Fatalf("GenerateOne: %v", err)
	}
	if q == nil {
		t.Fatal("expected a question")
	}
	if q.TargetWord != "trudge" {
		t.Errorf("target = %q, want the uncovered pair", q.TargetWord)
	}
}

func TestGenerateOneNoPairs(t *testing.T) {
	st := &storemock.Store{}
	p := &llmmock.Provider{}
	b := question.NewBuilder(st, p, nil)

	q, err := b.GenerateOne(context.Background())
	if err != nil {
		t.Fatalf("GenerateOne: %v", err)
	}
	if q != nil {
		t.Fatal("expected nil question with no eligible pairs")
	}
}
