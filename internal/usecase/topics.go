package usecase

import (
	"encoding/json"
	"strings"

	"relator-ai/internal/domain"
)

// orderResponse accepts both ordering shapes the models have produced over
// time: 1-based indices ("order") and the legacy title list ("orderedTitles").
type orderResponse struct {
	Order         []json.Number `json:"order"`
	OrderedTitles []string      `json:"orderedTitles"`
}

// ResolveTopicOrder reorders topics according to raw model text. The output
// is always a permutation of the input: out-of-range indices and unknown
// titles are skipped, topics the model never referenced are appended in
// their original order, and unusable model output yields the input
// unchanged. A wrong model answer may misorder topics but never lose one.
func ResolveTopicOrder(topics []domain.Topic, text string) []domain.Topic {
	if len(topics) == 0 {
		return topics
	}

	raw := ExtractJSON(text)
	if raw == "" {
		return topics
	}
	var resp orderResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return topics
	}

	switch {
	case len(resp.Order) > 0:
		return reorderByIndex(topics, resp.Order)
	case len(resp.OrderedTitles) > 0:
		return reorderByTitle(topics, resp.OrderedTitles)
	default:
		return topics
	}
}

func reorderByIndex(topics []domain.Topic, order []json.Number) []domain.Topic {
	used := make([]bool, len(topics))
	out := make([]domain.Topic, 0, len(topics))
	for _, n := range order {
		idx, err := n.Int64()
		if err != nil {
			continue
		}
		// Indices from the model are 1-based.
		i := int(idx) - 1
		if i < 0 || i >= len(topics) || used[i] {
			continue
		}
		out = append(out, topics[i])
		used[i] = true
	}
	return appendUnused(out, topics, used)
}

func reorderByTitle(topics []domain.Topic, titles []string) []domain.Topic {
	used := make([]bool, len(topics))
	out := make([]domain.Topic, 0, len(topics))
	for _, title := range titles {
		for i, topic := range topics {
			if used[i] {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(topic.Title), strings.TrimSpace(title)) {
				out = append(out, topic)
				used[i] = true
				break
			}
		}
	}
	return appendUnused(out, topics, used)
}

func appendUnused(out, topics []domain.Topic, used []bool) []domain.Topic {
	for i, topic := range topics {
		if !used[i] {
			out = append(out, topic)
		}
	}
	return out
}
