// Package providers defines the uniform capability surface over the vendor
// backends and the plumbing the concrete drivers share: canonical request
// and response types, the HTTP helper, the driver lifecycle, message
// shaping, and the failure taxonomy.
package providers

import (
	"context"

	"github.com/chatchonk/automodel/internal/task"
)

// Provider identifiers; the closed set of supported backends.
const (
	OpenAI      = "openai"
	Anthropic   = "anthropic"
	HuggingFace = "huggingface"
	Mistral     = "mistral"
	DeepSeek    = "deepseek"
	Qwen        = "qwen"
	OpenRouter  = "openrouter"
)

// AllProviders lists the closed set in a stable order.
var AllProviders = []string{OpenAI, Anthropic, HuggingFace, Mistral, DeepSeek, Qwen, OpenRouter}

// Model describes one routable model owned by a single provider.
type Model struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Provider         string        `json:"provider"`
	Description      string        `json:"description,omitempty"`
	MaxContextTokens int           `json:"max_context_tokens"`
	Streaming        bool          `json:"supports_streaming"`
	Functions        bool          `json:"supports_functions"`
	Vision           bool          `json:"supports_vision"`
	CostPromptPer1K  float64       `json:"cost_prompt_per_1k"`
	CostOutputPer1K  float64       `json:"cost_completion_per_1k"`
	Tasks            []task.Kind   `json:"supported_tasks"`
	PriorityScore    float64       `json:"priority_score"`
	Available        bool          `json:"is_available"`
}

// Supports reports whether the model advertises the task kind.
func (m Model) Supports(kind task.Kind) bool {
	for _, k := range m.Tasks {
		if k == kind {
			return true
		}
	}
	return false
}

// UnitCost is the higher of the prompt/completion per-1k rates; tier cost
// ceilings are checked against it.
func (m Model) UnitCost() float64 {
	if m.CostOutputPer1K > m.CostPromptPer1K {
		return m.CostOutputPer1K
	}
	return m.CostPromptPer1K
}

// Message is one role-tagged turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the canonical work order handed to a driver. Content is either
// Text or Messages, never both. Optional generation parameters are pointers:
// nil means "omit from the outbound request".
type Request struct {
	Task     task.Kind
	ModelID  string
	Text     string
	Messages []Message

	MaxTokens        int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string

	// CandidateLabels feeds zero-shot classification backends.
	CandidateLabels []string

	// SessionMessages are prior turns replayed before the current content.
	SessionMessages []Message
}

// Response is the canonical result of a driver call. Provider is filled in
// by the caller that selected the driver; it survives a round trip through
// the cache.
type Response struct {
	Content      string         `json:"content"`
	Vectors      [][]float64    `json:"vectors,omitempty"`
	ModelID      string         `json:"model_id"`
	Provider     string         `json:"provider_id,omitempty"`
	TokensUsed   int            `json:"tokens_used"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Driver is the uniform capability set one concrete implementation per
// vendor provides. Drivers do not retry; they classify failures and let the
// router decide.
type Driver interface {
	ID() string
	Name() string
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	ListModels() []Model
	SupportsTask(modelID string, kind task.Kind) bool
	Process(ctx context.Context, req Request) (*Response, error)
	HealthCheck(ctx context.Context) error
	State() State
}

// Float64 returns a pointer for an optional generation parameter.
func Float64(v float64) *float64 { return &v }
