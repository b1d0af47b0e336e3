package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"relator-ai/internal/domain"
	"relator-ai/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.Default()
}

func TestAnthropicChat(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_01",
			"model": "claude-sonnet-4-20250514",
			"content": [
				{"type": "thinking", "thinking": "considerando as preliminares..."},
				{"type": "text", "text": "Resposta final."}
			],
			"usage": {"input_tokens": 120, "output_tokens": 40, "cache_read_input_tokens": 300, "cache_creation_input_tokens": 15}
		}`)
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "claude-sonnet-4-20250514",
	}, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages:       []domain.Message{{Role: domain.RoleUser, Content: "analise"}},
		System:         "assistente",
		MaxTokens:      4096,
		ThinkingBudget: 2048,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	// The text block is surfaced, the thinking block is not.
	if resp.Message.Content != "Resposta final." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Usage.CacheReadTokens != 300 || resp.Usage.CacheCreationTokens != 15 {
		t.Errorf("cache usage not mapped: %+v", resp.Usage)
	}

	var wire anthropicRequest
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatalf("unmarshal wire request: %v", err)
	}
	if wire.System != "assistente" {
		t.Errorf("system = %q", wire.System)
	}
	if wire.Thinking == nil || wire.Thinking.Type != "enabled" || wire.Thinking.BudgetTokens != 2048 {
		t.Errorf("thinking block = %+v", wire.Thinking)
	}
}

// A response with several text segments keeps all of them, in order.
func TestAnthropicChatJoinsTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_02",
			"content": [
				{"type": "text", "text": "Primeiro segmento."},
				{"type": "thinking", "thinking": "revisando..."},
				{"type": "text", "text": "Segundo segmento."}
			],
			"usage": {"input_tokens": 10, "output_tokens": 8}
		}`)
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "k",
		Model:   "m",
	}, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Primeiro segmento.\nSegundo segmento." {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestAnthropicChatHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"type": "rate_limit_error"}}`)
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "k",
		Model:   "m",
	}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "oi"}},
	})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if StatusCodeOf(err) != http.StatusTooManyRequests {
		t.Errorf("StatusCodeOf = %d", StatusCodeOf(err))
	}
	// The literal status numeral stays in the message for substring matching.
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error message lacks status numeral: %v", err)
	}
}

func TestToAnthropicRequest(t *testing.T) {
	temp := 0.2
	req := domain.ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 2000,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "instruções"},
			{Role: domain.RoleUser, Blocks: []domain.ContentBlock{
				{Type: domain.BlockDocument, Data: "cGRmLWJ5dGVz", MediaType: "application/pdf", CacheEligible: true},
				{Type: domain.BlockText, Text: "analise o documento"},
			}},
			{Role: domain.RoleAssistant, Content: "ok"},
		},
		Temperature: &temp,
	}

	wire := toAnthropicRequest(req)

	// A system message is lifted into the top-level field, not sent as a turn.
	if wire.System != "instruções" {
		t.Errorf("system = %q", wire.System)
	}
	if len(wire.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(wire.Messages))
	}

	doc := wire.Messages[0].Content[0]
	if doc.Type != "document" || doc.Source == nil || doc.Source.Type != "base64" {
		t.Errorf("document block = %+v", doc)
	}
	if doc.CacheControl == nil || doc.CacheControl.Type != "ephemeral" {
		t.Errorf("cache_control = %+v", doc.CacheControl)
	}
	if wire.Messages[0].Content[1].CacheControl != nil {
		t.Error("uneligible block should carry no cache_control")
	}
	if wire.Temp == nil || *wire.Temp != 0.2 {
		t.Errorf("temperature = %v", wire.Temp)
	}
	if wire.Thinking != nil {
		t.Error("thinking must be omitted when no budget is set")
	}
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{429, domain.ErrRateLimit},
		{401, domain.ErrAuthInvalid},
		{403, domain.ErrAuthInvalid},
		{413, domain.ErrContextOverflow},
		{529, domain.ErrOverloaded},
		{500, domain.ErrOverloaded},
		{503, domain.ErrOverloaded},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte("body"))
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want sentinel %v", tt.status, err, tt.want)
		}
		if StatusCodeOf(err) != tt.status {
			t.Errorf("status %d not preserved", tt.status)
		}
	}

	// An unmapped client error still carries its code for classification.
	err := mapHTTPError(400, []byte("bad request"))
	if StatusCodeOf(err) != 400 {
		t.Errorf("StatusCodeOf = %d", StatusCodeOf(err))
	}
}
