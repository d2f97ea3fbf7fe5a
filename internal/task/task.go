// Package task defines the core vocabulary of the gateway: task kinds,
// request priorities, and user tiers. Every other package speaks in these
// types.
package task

import "fmt"

// Kind identifies what the caller wants done. Wire names are snake_case and
// stable.
type Kind string

const (
	TextGeneration  Kind = "text_generation"
	Summarization   Kind = "summarization"
	TopicExtraction Kind = "topic_extraction"
	Classification  Kind = "classification"
	Embedding       Kind = "embedding"
	Sensemaking     Kind = "sensemaking"
	Planning        Kind = "planning"
	MediaAnalysis   Kind = "media_analysis"
	Translation     Kind = "translation"
	Chat            Kind = "chat"
	System          Kind = "system"
)

// Kinds lists every recognized task kind in declaration order.
var Kinds = []Kind{
	TextGeneration, Summarization, TopicExtraction, Classification,
	Embedding, Sensemaking, Planning, MediaAnalysis, Translation, Chat,
	System,
}

// ParseKind validates a wire name and returns the corresponding Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// Valid reports whether k is a recognized task kind.
func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

// SystemPrompt returns the default system prompt for a task kind, or "" when
// the kind has none and the outbound request should omit it.
func (k Kind) SystemPrompt() string {
	return systemPrompts[k]
}

var systemPrompts = map[Kind]string{
	Summarization:   "You are an expert at creating concise, accurate summaries. Focus on the key points and main ideas while preserving important context.",
	TopicExtraction: "You are an expert at identifying and extracting key topics and themes from text. Provide clear, relevant topics.",
	Classification:  "You are an expert at text classification. Analyze the content and provide accurate classifications.",
	Sensemaking:     "You are an expert at analyzing complex information and making sense of patterns, relationships, and insights.",
	Planning:        "You are an expert at creating structured plans and organizing information logically.",
	Translation:     "You are an expert translator. Provide accurate, natural translations while preserving meaning and context.",
	MediaAnalysis:   "You are an expert at analyzing visual content. Describe what you see accurately and thoroughly.",
}

// Priority orders requests by urgency. Higher priorities favor models with
// higher intrinsic scores.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority validates a priority wire name. The empty string maps to
// medium.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Tier is the caller's subscription level. Tiers are totally ordered:
// free < lilbean < clawback < bigchonk < meowtrix.
type Tier string

const (
	TierFree     Tier = "free"
	TierLilbean  Tier = "lilbean"
	TierClawback Tier = "clawback"
	TierBigchonk Tier = "bigchonk"
	TierMeowtrix Tier = "meowtrix"
)

var tierRank = map[Tier]int{
	TierFree:     0,
	TierLilbean:  1,
	TierClawback: 2,
	TierBigchonk: 3,
	TierMeowtrix: 4,
}

// ParseTier validates a tier wire name. The empty string maps to free.
func ParseTier(s string) (Tier, error) {
	if s == "" {
		return TierFree, nil
	}
	if _, ok := tierRank[Tier(s)]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return Tier(s), nil
}

// AtLeast reports whether t ranks at or above other.
func (t Tier) AtLeast(other Tier) bool {
	return tierRank[t] >= tierRank[other]
}

// CostCeiling returns the maximum per-1k-token unit cost (higher of the
// prompt/completion rates) a tier may select.
func (t Tier) CostCeiling() float64 {
	switch t {
	case TierLilbean:
		return 0.005
	case TierClawback:
		return 0.020
	case TierBigchonk:
		return 0.100
	case TierMeowtrix:
		return 1.000
	default:
		return 0.001
	}
}

// UserKeysAllowed reports whether the tier may route through caller-supplied
// provider credentials.
func (t Tier) UserKeysAllowed() bool {
	return t.AtLeast(TierClawback)
}
