package usecase

import (
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"relator-ai/internal/domain"
)

// MetricsSnapshot is a point-in-time copy of the accumulated counters.
type MetricsSnapshot struct {
	InputTokens         int64     `json:"input_tokens"`
	OutputTokens        int64     `json:"output_tokens"`
	CacheReadTokens     int64     `json:"cache_read_tokens"`
	CacheCreationTokens int64     `json:"cache_creation_tokens"`
	Requests            int64     `json:"requests"`
	LastUpdated         time.Time `json:"last_updated"`
}

// TotalTokens returns the combined token count across all categories.
func (s MetricsSnapshot) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens + s.CacheReadTokens + s.CacheCreationTokens
}

// TokenMetrics accumulates token consumption for the life of the process.
// Counters only grow; Reset is the single way to zero them. Safe for
// concurrent use by independent operations.
type TokenMetrics struct {
	mu   sync.Mutex
	snap MetricsSnapshot
}

func NewTokenMetrics() *TokenMetrics {
	return &TokenMetrics{}
}

// Record adds one successful call's usage to the running totals.
func (m *TokenMetrics) Record(usage domain.Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.InputTokens += int64(usage.InputTokens)
	m.snap.OutputTokens += int64(usage.OutputTokens)
	m.snap.CacheReadTokens += int64(usage.CacheReadTokens)
	m.snap.CacheCreationTokens += int64(usage.CacheCreationTokens)
	m.snap.Requests++
	m.snap.LastUpdated = time.Now()
}

// Snapshot returns a copy of the current totals.
func (m *TokenMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Reset zeroes every counter. Only an explicit caller action gets here.
func (m *TokenMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = MetricsSnapshot{}
}

// tokenEncoding is the tokenizer used when a provider omits usage figures.
// cl100k_base tracks the Anthropic and OpenAI tokenizers closely enough
// for accounting purposes.
const tokenEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// EstimateTokens approximates the token count of text for providers that
// do not report usage. Falls back to a bytes/4 heuristic if the encoding
// cannot be loaded.
func EstimateTokens(text string) int {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding(tokenEncoding)
	})
	if encodingErr != nil || encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// EstimateUsage synthesizes a Usage record from request and response text
// when the provider returned none.
func EstimateUsage(req domain.ChatRequest, responseText string) domain.Usage {
	var sb []byte
	sb = append(sb, req.System...)
	for _, msg := range req.Messages {
		sb = append(sb, msg.Content...)
		for _, block := range msg.Blocks {
			sb = append(sb, block.Text...)
		}
	}
	return domain.Usage{
		InputTokens:  EstimateTokens(string(sb)),
		OutputTokens: EstimateTokens(responseText),
	}
}
