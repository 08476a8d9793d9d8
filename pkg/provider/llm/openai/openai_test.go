package openai

import (
	"testing"

	"lexvoss/pkg/provider/llm"
)

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o-mini"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestBuildParams_SystemPrompt checks that the system prompt leads the messages.
func TestBuildParams_SystemPrompt(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a vocabulary tutor.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Explain saunter."},
		},
	})

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected leading system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected user message second")
	}
}

// TestBuildParams_Roles checks role mapping for history messages.
func TestBuildParams_Roles(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "u"},
			{Role: llm.RoleAssistant, Content: "a"},
		},
	})

	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected OfSystem")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected OfUser")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected OfAssistant")
	}
}

// TestBuildParams_TemperatureAndMaxTokens checks optional params are set only
// when requested.
func TestBuildParams_TemperatureAndMaxTokens(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("temperature = %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 256 {
		t.Errorf("max tokens = %+v", params.MaxCompletionTokens)
	}

	params = p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature.Valid() {
		t.Error("zero temperature must stay unset")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("zero max tokens must stay unset")
	}
}

// TestName checks the backend identifier.
func TestName(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("name = %q", p.Name())
	}
}
