package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"relator-ai/internal/domain"
)

// DefaultMaxHistory caps a conversation's persisted length.
const DefaultMaxHistory = 20

// ContextBuilder expands the opening user message of a conversation into
// the full payload sent to the provider, typically embedding the case
// material. The expanded form is persisted per entry so later turns resend
// it without rebuilding.
type ContextBuilder func(ctx context.Context, userText string) (string, error)

// NewConversationID mints a sortable unique conversation key.
func NewConversationID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ChatManager owns one conversation: it bounds its length, guards against
// overlapping sends, and persists every mutation through the external
// store. Store failures are logged and swallowed; a conversation degrades
// to empty rather than blocking the user.
type ChatManager struct {
	id           string
	orchestrator *Orchestrator
	store        domain.ChatStore
	logger       *slog.Logger
	maxHistory   int

	// storagePolicy governs retries of store operations.
	storagePolicy RetryPolicy

	mu         sync.Mutex
	history    []domain.ChatEntry
	generating bool
}

func NewChatManager(id string, orchestrator *Orchestrator, store domain.ChatStore, maxHistory int, logger *slog.Logger) *ChatManager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &ChatManager{
		id:            id,
		orchestrator:  orchestrator,
		store:         store,
		logger:        logger,
		maxHistory:    maxHistory,
		storagePolicy: StorageRetryPolicy(),
	}
}

// ID returns the conversation key.
func (c *ChatManager) ID() string { return c.id }

// Open loads the persisted conversation. Called when the conversation is
// first shown and each time it is reopened.
func (c *ChatManager) Open(ctx context.Context) {
	if c.store == nil {
		return
	}
	entries, err := ExecuteWithRetry(ctx, c.storagePolicy, func(ctx context.Context) ([]domain.ChatEntry, error) {
		return c.store.GetChat(ctx, c.id)
	})
	if err != nil {
		c.logger.Warn("chat load failed, starting empty", "chat", c.id, "error", err)
		return
	}
	c.mu.Lock()
	c.history = entries
	c.mu.Unlock()
}

// History returns a copy of the current entries.
func (c *ChatManager) History() []domain.ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatEntry, len(c.history))
	copy(out, c.history)
	return out
}

// Generating reports whether a send is in flight.
func (c *ChatManager) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// Send runs one exchange. Until the conversation has a completed
// exchange, the user message is expanded through contextBuilder (may be
// nil) and the expanded payload is retained on the entry. Empty messages
// and overlapping sends are rejected before any network activity. On
// success the assistant's reply is returned and both turns are appended;
// on failure a single user entry carrying the error is appended.
func (c *ChatManager) Send(ctx context.Context, message string, contextBuilder ContextBuilder) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", domain.NewDomainError("chat", domain.ErrEmptyMessage, "")
	}
	if c.orchestrator == nil || c.orchestrator.provider == nil {
		return "", domain.NewDomainError("chat", domain.ErrAIUnavailable, "")
	}

	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return "", domain.NewDomainError("chat", domain.ErrGenerating, "send already in flight")
	}
	c.generating = true
	// The conversation counts as fresh until an exchange has completed.
	// Failed entries are never resent, so expanding only the literal
	// first send would lose the case material after a failed opening turn.
	fresh := true
	for _, entry := range c.history {
		if entry.Role == domain.RoleAssistant {
			fresh = false
			break
		}
	}
	prior := make([]domain.ChatEntry, len(c.history))
	copy(prior, c.history)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.generating = false
		c.mu.Unlock()
	}()

	contentForAPI := ""
	if fresh && contextBuilder != nil {
		expanded, err := contextBuilder(ctx, trimmed)
		if err != nil {
			c.recordFailure(ctx, trimmed, contentForAPI, err)
			return "", err
		}
		if expanded != trimmed {
			contentForAPI = expanded
		}
	}

	messages := make([]domain.Message, 0, len(prior)+1)
	for _, entry := range prior {
		if entry.Error != "" {
			continue
		}
		messages = append(messages, domain.Message{Role: entry.Role, Content: entry.ProviderText()})
	}
	current := trimmed
	if contentForAPI != "" {
		current = contentForAPI
	}
	messages = append(messages, domain.UserMessage(current))

	reply, err := c.orchestrator.CallAI(ctx, messages, domain.CallOptions{})
	if err != nil {
		c.recordFailure(ctx, trimmed, contentForAPI, err)
		return "", err
	}
	reply = strings.TrimSpace(reply)

	now := time.Now()
	c.mu.Lock()
	c.history = append(c.history,
		domain.ChatEntry{Role: domain.RoleUser, Content: trimmed, ContentForAPI: contentForAPI, Timestamp: now},
		domain.ChatEntry{Role: domain.RoleAssistant, Content: reply, Timestamp: now},
	)
	c.history = trimHistory(c.history, c.maxHistory)
	c.mu.Unlock()

	c.save(ctx)
	return reply, nil
}

// Clear drops the conversation locally and in the store.
func (c *ChatManager) Clear(ctx context.Context) {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	_, err := ExecuteWithRetry(ctx, c.storagePolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.DeleteChat(ctx, c.id)
	})
	if err != nil {
		c.logger.Warn("chat delete failed", "chat", c.id, "error", err)
	}
}

// UpdateLast rewrites the display content of the newest entry, for callers
// that let the user edit the assistant's draft in place.
func (c *ChatManager) UpdateLast(ctx context.Context, content string) {
	c.mu.Lock()
	if n := len(c.history); n > 0 {
		c.history[n-1].Content = content
	}
	c.mu.Unlock()
	c.save(ctx)
}

func (c *ChatManager) recordFailure(ctx context.Context, message, contentForAPI string, err error) {
	c.mu.Lock()
	c.history = append(c.history, domain.ChatEntry{
		Role:          domain.RoleUser,
		Content:       message,
		ContentForAPI: contentForAPI,
		Timestamp:     time.Now(),
		Error:         domain.UserMessageFor(err),
	})
	c.history = trimHistory(c.history, c.maxHistory)
	c.mu.Unlock()
	c.save(ctx)
}

func (c *ChatManager) save(ctx context.Context) {
	if c.store == nil {
		return
	}
	entries := c.History()
	_, err := ExecuteWithRetry(ctx, c.storagePolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.SaveChat(ctx, c.id, entries)
	})
	if err != nil {
		c.logger.Warn("chat save failed", "chat", c.id, "error", err)
	}
}

// trimHistory enforces the length cap, always keeping entry 0: the opening
// entry uniquely carries the expanded provider payload for the
// conversation. The oldest entries after it are dropped.
func trimHistory(history []domain.ChatEntry, max int) []domain.ChatEntry {
	if len(history) <= max {
		return history
	}
	out := make([]domain.ChatEntry, 0, max)
	out = append(out, history[0])
	out = append(out, history[len(history)-(max-1):]...)
	return out
}
