// Package deepseek implements the DeepSeek driver over the OpenAI-compatible
// chat completions endpoint.
package deepseek

import (
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

const defaultBaseURL = "https://api.deepseek.com/v1"

func catalog() []providers.Model {
	return []providers.Model{
		{
			ID: "deepseek-chat", Name: "DeepSeek Chat", Provider: providers.DeepSeek,
			Description:      "General-purpose conversational model",
			MaxContextTokens: 65536,
			Streaming:        true, Functions: true,
			CostPromptPer1K: 0.0005, CostOutputPer1K: 0.0005,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.TopicExtraction,
				task.Classification, task.Translation, task.Chat,
			},
			PriorityScore: 7.5, Available: true,
		},
		{
			ID: "deepseek-reasoner", Name: "DeepSeek Reasoner", Provider: providers.DeepSeek,
			Description:      "Reasoning model for complex analysis and planning",
			MaxContextTokens: 65536,
			Streaming:        true,
			CostPromptPer1K:  0.0022, CostOutputPer1K: 0.0022,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.Sensemaking,
				task.Planning, task.Chat,
			},
			PriorityScore: 8.5, Available: true,
		},
	}
}

// Driver is the DeepSeek chat driver.
type Driver struct {
	*providers.ChatCore
}

// New creates a DeepSeek driver. baseURL "" selects the public endpoint.
func New(apiKey, baseURL string, opts ...providers.CoreOption) *Driver {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Driver{
		ChatCore: providers.NewChatCore(providers.DeepSeek, "DeepSeek", apiKey, baseURL, catalog(), opts...),
	}
}
