package usecase

import "relator-ai/internal/domain"

const (
	// thinkingHeadroom is reserved between the thinking budget and the
	// output-token cap so the visible answer is never starved.
	thinkingHeadroom = 2000
	// minThinkingBudget is the smallest budget the API accepts.
	minThinkingBudget = 1024

	// cacheMinChars is the size below which marking a block for prompt
	// caching costs more than it saves.
	cacheMinChars = 2000
	// maxCachedBlocks is the provider-imposed marker limit, minus the slot
	// the provider reserves for its own use.
	maxCachedBlocks = 3
)

// BuildChatRequest assembles the provider-neutral request for one call:
// model selection, output cap, extended-thinking budget, sampling
// parameters, and prompt-cache markers on the document blocks.
func BuildChatRequest(provider domain.LLMProvider, messages []domain.Message, opts domain.CallOptions) domain.ChatRequest {
	model := opts.Model
	if model == "" {
		model = provider.Model()
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = provider.MaxOutputTokens()
	}

	req := domain.ChatRequest{
		Model:       model,
		Messages:    markCacheEligible(messages),
		System:      opts.System,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}

	if !opts.DisableReasoning && opts.ThinkingBudget > 0 {
		req.ThinkingBudget = clampThinkingBudget(opts.ThinkingBudget, maxTokens)
	}

	return req
}

// clampThinkingBudget keeps the thinking budget below the output cap with
// headroom for the answer, never dropping under the API minimum.
func clampThinkingBudget(requested, maxTokens int) int {
	budget := requested
	if ceiling := maxTokens - thinkingHeadroom; budget > ceiling {
		budget = ceiling
	}
	if budget < minThinkingBudget {
		budget = minThinkingBudget
	}
	return budget
}

// markCacheEligible flags up to maxCachedBlocks content blocks for prompt
// caching. Only blocks above cacheMinChars qualify, and the final block of
// the final message is never marked: it changes every turn, so caching it
// would only churn the cache.
func markCacheEligible(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	copy(out, messages)

	lastMsg, lastBlock := finalBlockPosition(out)

	marked := 0
	for mi := range out {
		if len(out[mi].Blocks) == 0 {
			continue
		}
		blocks := make([]domain.ContentBlock, len(out[mi].Blocks))
		copy(blocks, out[mi].Blocks)
		for bi := range blocks {
			if marked >= maxCachedBlocks {
				break
			}
			if mi == lastMsg && bi == lastBlock {
				continue
			}
			if blockSize(blocks[bi]) <= cacheMinChars {
				continue
			}
			blocks[bi].CacheEligible = true
			marked++
		}
		out[mi].Blocks = blocks
	}
	return out
}

// finalBlockPosition locates the last block of the last block-bearing
// message. Returns (-1, -1) when no message carries blocks.
func finalBlockPosition(messages []domain.Message) (int, int) {
	for mi := len(messages) - 1; mi >= 0; mi-- {
		if n := len(messages[mi].Blocks); n > 0 {
			return mi, n - 1
		}
	}
	return -1, -1
}

func blockSize(b domain.ContentBlock) int {
	if b.Type == domain.BlockDocument {
		return len(b.Data)
	}
	return len(b.Text)
}
