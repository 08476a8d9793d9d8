package anyllm

import (
	"strings"
	"testing"

	"lexvoss/pkg/provider/llm"
)

// ── constructor validation ────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name is rejected.
func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "qwen3:8b"); err == nil {
		t.Error("expected error for empty provider name")
	}
}

// TestNew_EmptyModel checks that an empty model is rejected.
func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("ollama", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks the error message lists supported backends.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("bedrock", "some-model")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "ollama") {
		t.Errorf("error should list supported providers: %v", err)
	}
}

// TestNew_CaseInsensitive checks that provider names match case-insensitively.
func TestNew_CaseInsensitive(t *testing.T) {
	p, err := New("Ollama", "qwen3:8b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("name = %q, want normalized lowercase", p.Name())
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptLeads checks that the system prompt becomes the
// first message.
func TestBuildParams_SystemPromptLeads(t *testing.T) {
	p, err := New("ollama", "qwen3:8b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a vocabulary tutor.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "What does saunter mean?"},
			{Role: llm.RoleAssistant, Content: "To walk in a relaxed way."},
		},
	})

	if params.Model != "qwen3:8b" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" || params.Messages[2].Role != "assistant" {
		t.Errorf("history roles = %q, %q", params.Messages[1].Role, params.Messages[2].Role)
	}
}

// TestBuildParams_OptionalFields checks temperature and max tokens handling.
func TestBuildParams_OptionalFields(t *testing.T) {
	p, err := New("ollama", "qwen3:8b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}

	params = p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Error("zero temperature must stay unset")
	}
	if params.MaxTokens != nil {
		t.Error("zero max tokens must stay unset")
	}
}
