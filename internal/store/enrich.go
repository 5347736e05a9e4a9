package store

import (
	"strings"

	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/signature"
)

// enriched holds the fields derived from an event's transient PromptText
// before that text is discarded; the Event that reaches downstream state
// never carries raw prompt content (spec.md §1 Non-goals: "plaintext
// prompt storage").
type enriched struct {
	topic               event.Topic
	structuralHash      string
	embedding           []float32
	cotMatches          int
	compoundPreambleHit bool
}

// deriveFromPrompt computes topic/embedding/structural-hash/CoT-match
// count either from already-populated Event fields (an adapter may have
// precomputed them) or from the transient PromptText.
func deriveFromPrompt(ev event.Event, cot *signature.Matcher, topicCentroids [][]float32, lexicon [][2]string) enriched {
	e := enriched{
		topic:               ev.PromptTopic,
		structuralHash:      ev.PromptStructuralHash,
		embedding:           ev.PromptEmbedding,
		compoundPreambleHit: matchesCompoundPreamble(ev.SystemPromptText, lexicon),
	}
	if ev.PromptText == "" {
		return e
	}
	if e.structuralHash == "" {
		e.structuralHash = signature.StructuralHash(ev.PromptText)
	}
	if len(e.embedding) == 0 {
		e.embedding = signature.HashEmbed(ev.PromptText)
	}
	if e.topic == event.TopicUnknown && len(topicCentroids) > 0 {
		idx, _ := signature.NearestCentroid(e.embedding, topicCentroids)
		if idx >= 0 {
			e.topic = event.Topic(idx + 1) // +1: TopicUnknown occupies 0
		}
	}
	if cot != nil {
		e.cotMatches = cot.TotalMatches(ev.PromptText)
	}
	return e
}

// matchesCompoundPreamble reports whether the system prompt contains
// both phrases of any lexicon pair (spec.md §4.3 role_preamble).
func matchesCompoundPreamble(systemPrompt string, lexicon [][2]string) bool {
	if systemPrompt == "" {
		return false
	}
	lower := strings.ToLower(systemPrompt)
	for _, pair := range lexicon {
		if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
			return true
		}
	}
	return false
}
