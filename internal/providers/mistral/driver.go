// Package mistral implements the Mistral driver over the OpenAI-compatible
// chat completions endpoint.
package mistral

import (
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

const defaultBaseURL = "https://api.mistral.ai/v1"

func catalog() []providers.Model {
	return []providers.Model{
		{
			ID: "mistral-large-latest", Name: "Mistral Large", Provider: providers.Mistral,
			Description:      "Most capable Mistral model for complex reasoning",
			MaxContextTokens: 32768,
			Streaming:        true, Functions: true,
			CostPromptPer1K: 0.008, CostOutputPer1K: 0.008,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.TopicExtraction,
				task.Classification, task.Sensemaking, task.Planning,
				task.Translation, task.Chat,
			},
			PriorityScore: 8.5, Available: true,
		},
		{
			ID: "mistral-medium-latest", Name: "Mistral Medium", Provider: providers.Mistral,
			Description:      "Balanced model for most tasks",
			MaxContextTokens: 32768,
			Streaming:        true,
			CostPromptPer1K:  0.0027, CostOutputPer1K: 0.0027,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.TopicExtraction,
				task.Classification, task.Translation, task.Chat,
			},
			PriorityScore: 7.5, Available: true,
		},
		{
			ID: "mistral-small-latest", Name: "Mistral Small", Provider: providers.Mistral,
			Description:      "Fast and efficient model for simple tasks",
			MaxContextTokens: 32768,
			Streaming:        true,
			CostPromptPer1K:  0.002, CostOutputPer1K: 0.002,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.Classification,
				task.Translation, task.Chat,
			},
			PriorityScore: 6.5, Available: true,
		},
	}
}

// Driver is the Mistral chat driver.
type Driver struct {
	*providers.ChatCore
}

// New creates a Mistral driver. baseURL "" selects the public endpoint.
func New(apiKey, baseURL string, opts ...providers.CoreOption) *Driver {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Driver{
		ChatCore: providers.NewChatCore(providers.Mistral, "Mistral", apiKey, baseURL, catalog(), opts...),
	}
}
