// Package openai implements the OpenAI driver: chat completions for the
// generation tasks and the embeddings endpoint for vectors.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

const defaultBaseURL = "https://api.openai.com/v1"

var generationTasks = []task.Kind{
	task.TextGeneration, task.Summarization, task.TopicExtraction,
	task.Classification, task.Sensemaking, task.Planning,
	task.Translation, task.Chat,
}

func catalog() []providers.Model {
	return []providers.Model{
		{
			ID: "gpt-4o", Name: "GPT-4o", Provider: providers.OpenAI,
			Description:      "Most advanced GPT-4 model with vision capabilities",
			MaxContextTokens: 128000,
			Streaming:        true, Functions: true, Vision: true,
			CostPromptPer1K: 0.005, CostOutputPer1K: 0.005,
			Tasks:         append([]task.Kind{task.MediaAnalysis}, generationTasks...),
			PriorityScore: 10.0, Available: true,
		},
		{
			ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Provider: providers.OpenAI,
			Description:      "High-performance GPT-4 model with large context window",
			MaxContextTokens: 128000,
			Streaming:        true, Functions: true,
			CostPromptPer1K: 0.01, CostOutputPer1K: 0.01,
			Tasks:         generationTasks,
			PriorityScore: 9.0, Available: true,
		},
		{
			ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: providers.OpenAI,
			Description:      "Fast and efficient model for most tasks",
			MaxContextTokens: 16385,
			Streaming:        true, Functions: true,
			CostPromptPer1K: 0.0015, CostOutputPer1K: 0.0015,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.TopicExtraction,
				task.Classification, task.Translation, task.Chat,
			},
			PriorityScore: 7.0, Available: true,
		},
		{
			ID: "text-embedding-3-large", Name: "Text Embedding 3 Large", Provider: providers.OpenAI,
			Description:      "High-quality text embeddings",
			MaxContextTokens: 8191,
			CostPromptPer1K:  0.00013, CostOutputPer1K: 0.00013,
			Tasks:         []task.Kind{task.Embedding},
			PriorityScore: 9.0, Available: true,
		},
	}
}

// Driver routes generation tasks through chat completions and embedding
// tasks through /embeddings.
type Driver struct {
	*providers.ChatCore
}

// New creates an OpenAI driver. baseURL "" selects the public endpoint.
func New(apiKey, baseURL string, opts ...providers.CoreOption) *Driver {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Driver{
		ChatCore: providers.NewChatCore(providers.OpenAI, "OpenAI", apiKey, baseURL, catalog(), opts...),
	}
}

func (d *Driver) Process(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if req.Task == task.Embedding {
		return d.embed(ctx, req)
	}
	return d.ChatCore.Process(ctx, req)
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (d *Driver) embed(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if !d.Accepting() {
		return nil, providers.E(providers.KindProviderUnavailable, "openai: driver not initialized")
	}
	if !d.SupportsTask(req.ModelID, task.Embedding) {
		return nil, providers.E(providers.KindTaskNotSupported, "openai: model %s does not support embeddings", req.ModelID)
	}

	payload := map[string]any{
		"model":           req.ModelID,
		"input":           providers.PlainText(req),
		"encoding_format": "float",
	}
	body, err := d.MakeRequest(ctx, "/embeddings", payload)
	if err != nil {
		return nil, providers.ClassifyStatus(providers.OpenAI, err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embeddings response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}

	vectors := make([][]float64, len(parsed.Data))
	for i, row := range parsed.Data {
		vectors[i] = row.Embedding
	}
	return &providers.Response{
		Vectors:      vectors,
		ModelID:      req.ModelID,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: "completed",
		Metadata: map[string]any{
			"input_tokens":        parsed.Usage.PromptTokens,
			"output_tokens":       0,
			"embedding_dimension": len(vectors[0]),
		},
	}, nil
}
