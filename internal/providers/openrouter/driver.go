// Package openrouter implements the OpenRouter driver. OpenRouter fronts
// many upstream vendors behind an OpenAI-compatible API and requires a
// referer and title header pair on every request.
package openrouter

import (
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

func catalog() []providers.Model {
	full := []task.Kind{
		task.TextGeneration, task.Summarization, task.TopicExtraction,
		task.Classification, task.Sensemaking, task.Planning,
		task.Translation, task.Chat,
	}
	return []providers.Model{
		{
			ID: "openai/gpt-4o", Name: "GPT-4o", Provider: providers.OpenRouter,
			Description:      "OpenAI's most advanced model",
			MaxContextTokens: 128000,
			Streaming:        true, Vision: true,
			CostPromptPer1K: 0.005, CostOutputPer1K: 0.005,
			Tasks:         append([]task.Kind{task.MediaAnalysis}, full...),
			PriorityScore: 10.0, Available: true,
		},
		{
			ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Provider: providers.OpenRouter,
			Description:      "Anthropic's most intelligent model",
			MaxContextTokens: 200000,
			Streaming:        true,
			CostPromptPer1K:  0.003, CostOutputPer1K: 0.003,
			Tasks:         full,
			PriorityScore: 9.5, Available: true,
		},
		{
			ID: "meta-llama/llama-3.1-70b-instruct", Name: "Llama 3.1 70B", Provider: providers.OpenRouter,
			Description:      "Meta's large language model",
			MaxContextTokens: 131072,
			Streaming:        true,
			CostPromptPer1K:  0.0009, CostOutputPer1K: 0.0009,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.TopicExtraction,
				task.Classification, task.Translation, task.Chat,
			},
			PriorityScore: 8.0, Available: true,
		},
	}
}

// Driver is the OpenRouter chat driver.
type Driver struct {
	*providers.ChatCore
}

// New creates an OpenRouter driver. referer and title identify the calling
// application to OpenRouter's usage dashboard.
func New(apiKey, baseURL, referer, title string, opts ...providers.CoreOption) *Driver {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if referer == "" {
		referer = "https://chatchonk.com"
	}
	if title == "" {
		title = "ChatChonk AutoModel"
	}
	opts = append([]providers.CoreOption{
		providers.WithHeader("HTTP-Referer", referer),
		providers.WithHeader("X-Title", title),
	}, opts...)
	return &Driver{
		ChatCore: providers.NewChatCore(providers.OpenRouter, "OpenRouter", apiKey, baseURL, catalog(), opts...),
	}
}
