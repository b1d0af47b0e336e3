package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "anthropic", "openai").
	Name() string
	// Model returns the provider's configured default model id.
	Model() string
	// MaxOutputTokens returns the output ceiling of the configured model.
	MaxOutputTokens() int
}

// ChatStore is the external cache a conversation is persisted through,
// keyed by conversation identifier. All failures are swallowed by the
// consumer; implementations just report them.
type ChatStore interface {
	GetChat(ctx context.Context, key string) ([]ChatEntry, error)
	SaveChat(ctx context.Context, key string, entries []ChatEntry) error
	DeleteChat(ctx context.Context, key string) error
}
