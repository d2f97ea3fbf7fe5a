// Package qwen implements the Qwen (DashScope) driver. The generation
// endpoint takes a nested {input: {messages}, parameters: {}} envelope
// rather than the flat chat-completions shape.
package qwen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	generationPath = "/services/aigc/text-generation/generation"
)

func catalog() []providers.Model {
	advanced := []task.Kind{
		task.TextGeneration, task.Summarization, task.TopicExtraction,
		task.Classification, task.Sensemaking, task.Planning,
		task.Translation, task.Chat,
	}
	return []providers.Model{
		{
			ID: "qwen-turbo", Name: "Qwen Turbo", Provider: providers.Qwen,
			Description:      "Fast and efficient multilingual model",
			MaxContextTokens: 8192,
			Streaming:        true,
			CostPromptPer1K:  0.002, CostOutputPer1K: 0.002,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.TopicExtraction,
				task.Classification, task.Translation, task.Chat,
			},
			PriorityScore: 7.0, Available: true,
		},
		{
			ID: "qwen-plus", Name: "Qwen Plus", Provider: providers.Qwen,
			Description:      "Advanced multilingual model with better reasoning",
			MaxContextTokens: 32768,
			Streaming:        true,
			CostPromptPer1K:  0.004, CostOutputPer1K: 0.004,
			Tasks:         advanced,
			PriorityScore: 8.0, Available: true,
		},
		{
			ID: "qwen-max", Name: "Qwen Max", Provider: providers.Qwen,
			Description:      "Most capable Qwen model for complex tasks",
			MaxContextTokens: 32768,
			Streaming:        true,
			CostPromptPer1K:  0.02, CostOutputPer1K: 0.02,
			Tasks:         advanced,
			PriorityScore: 8.5, Available: true,
		},
	}
}

// Driver talks to the DashScope text-generation endpoint.
type Driver struct {
	providers.Lifecycle

	apiKey  string
	baseURL string
	client  *http.Client
	catalog []providers.Model
	models  map[string]providers.Model
}

// Option configures a Driver.
type Option func(*Driver)

// WithTimeout sets the per-call client timeout.
func WithTimeout(d time.Duration) Option {
	return func(dr *Driver) { dr.client.Timeout = d }
}

// WithMaxConns caps concurrent connections to the vendor.
func WithMaxConns(n int) Option {
	return func(dr *Driver) { dr.client.Transport = providers.Transport(n) }
}

// New creates a Qwen driver. baseURL "" selects the public endpoint.
func New(apiKey, baseURL string, opts ...Option) *Driver {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	d := &Driver{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  providers.NewHTTPClient(),
		catalog: catalog(),
		models:  make(map[string]providers.Model),
	}
	for _, m := range d.catalog {
		d.models[m.ID] = m
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Driver) ID() string   { return providers.Qwen }
func (d *Driver) Name() string { return "Qwen" }

func (d *Driver) Initialize(ctx context.Context) error {
	if !d.BeginInit() {
		return nil
	}
	if d.apiKey == "" {
		d.MarkTerminated()
		return providers.E(providers.KindAuthenticationFailed, "qwen: API key is required")
	}
	d.MarkReady()
	return nil
}

func (d *Driver) Shutdown(ctx context.Context) error {
	d.BeginShutdown()
	d.client.CloseIdleConnections()
	d.MarkTerminated()
	return nil
}

func (d *Driver) ListModels() []providers.Model {
	out := make([]providers.Model, len(d.catalog))
	copy(out, d.catalog)
	return out
}

func (d *Driver) SupportsTask(modelID string, kind task.Kind) bool {
	m, ok := d.models[modelID]
	return ok && m.Supports(kind)
}

type generationResponse struct {
	Output struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (d *Driver) Process(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if !d.Accepting() {
		return nil, providers.E(providers.KindProviderUnavailable, "qwen: driver not initialized")
	}
	m, ok := d.models[req.ModelID]
	if !ok {
		return nil, providers.E(providers.KindModelNotFound, "qwen: model %s not found", req.ModelID)
	}
	if !m.Supports(req.Task) {
		return nil, providers.E(providers.KindTaskNotSupported, "qwen: model %s does not support task %s", req.ModelID, req.Task)
	}

	parameters := map[string]any{}
	if req.Temperature != nil {
		parameters["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		parameters["top_p"] = *req.TopP
	}
	if req.MaxTokens > 0 {
		parameters["max_tokens"] = req.MaxTokens
	}
	if len(req.Stop) > 0 {
		parameters["stop"] = req.Stop
	}

	payload := map[string]any{
		"model":      req.ModelID,
		"input":      map[string]any{"messages": providers.BuildMessages(req)},
		"parameters": parameters,
	}

	key := d.apiKey
	if override := providers.UserKeyFor(ctx, providers.Qwen); override != "" {
		key = override
	}
	headers := map[string]string{"Authorization": "Bearer " + key}
	body, err := providers.DoRequest(ctx, d.client, d.baseURL+generationPath, payload, headers)
	if err != nil {
		return nil, providers.ClassifyStatus(providers.Qwen, err)
	}

	var parsed generationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	finish := parsed.Output.FinishReason
	if finish == "" {
		finish = "completed"
	}
	return &providers.Response{
		Content:      parsed.Output.Text,
		ModelID:      req.ModelID,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: finish,
		Metadata: map[string]any{
			"input_tokens":  parsed.Usage.InputTokens,
			"output_tokens": parsed.Usage.OutputTokens,
		},
	}, nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	_, err := d.Process(ctx, providers.Request{
		Task:      task.TextGeneration,
		ModelID:   "qwen-turbo",
		Text:      "Hello",
		MaxTokens: 1,
	})
	if err != nil {
		d.MarkDegraded()
		return err
	}
	d.MarkReady()
	return nil
}
