package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText     = "text"
	BlockDocument = "document"
)

// ContentBlock is a single typed piece of message content. Document blocks
// carry base64 data and a media type; text blocks carry Text. CacheEligible
// marks the block so the provider may reuse its processed representation
// across calls.
type ContentBlock struct {
	Type          string `json:"type"`
	Text          string `json:"text,omitempty"`
	Data          string `json:"data,omitempty"`
	MediaType     string `json:"media_type,omitempty"`
	CacheEligible bool   `json:"cache_eligible,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// DocumentBlock builds an embedded document content block.
func DocumentBlock(data, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockDocument, Data: data, MediaType: mediaType}
}

// Message represents a single message in a conversation. Content holds the
// plain-text form; Blocks, when non-empty, takes precedence and carries the
// typed content (text and embedded documents).
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	Blocks    []ContentBlock `json:"blocks,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// UserMessage builds a plain-text user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a plain-text assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CallOptions configures a single orchestrated LLM call.
type CallOptions struct {
	// MaxTokens caps the model's output tokens. Zero means provider default.
	MaxTokens int
	// System is an optional system prompt.
	System string
	// Model overrides the provider's configured model when non-empty.
	Model string
	// DisableReasoning suppresses the extended thinking block even when the
	// provider has a thinking budget configured.
	DisableReasoning bool
	// ThinkingBudget requests extended thinking with the given token budget.
	// The request builder caps it against MaxTokens.
	ThinkingBudget int
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// Temperature and TopP are sampling parameters. Nil means provider default.
	Temperature *float64
	TopP        *float64
	// SkipMetrics disables token metric accumulation for this call.
	SkipMetrics bool
}

// ChatRequest is the provider-neutral payload sent to an LLM provider.
type ChatRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	System         string    `json:"system,omitempty"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
	TopP           *float64  `json:"top_p,omitempty"`
	ThinkingBudget int       `json:"thinking_budget,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption for one call, including prompt-cache
// accounting when the provider reports it.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
}

// Total returns the combined token count of the call.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens + o.InputTokens,
		OutputTokens:        u.OutputTokens + o.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens + o.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens + o.CacheCreationTokens,
	}
}

// ChatEntry is one turn of a persisted conversation. ContentForAPI is the
// payload actually sent to the provider for this turn; for the opening turn
// it embeds the full contextual material the UI never re-renders.
type ChatEntry struct {
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	ContentForAPI string    `json:"content_for_api,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Error         string    `json:"error,omitempty"`
}

// ProviderText returns the content to resend to the provider for this entry.
func (e ChatEntry) ProviderText() string {
	if e.ContentForAPI != "" {
		return e.ContentForAPI
	}
	return e.Content
}
