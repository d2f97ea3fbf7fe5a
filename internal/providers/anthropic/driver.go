// Package anthropic implements the Anthropic driver against the messages
// API. The system prompt travels as a top-level field and the conversation
// must alternate strictly between user and assistant turns.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
)

var fullTasks = []task.Kind{
	task.TextGeneration, task.Summarization, task.TopicExtraction,
	task.Classification, task.Sensemaking, task.Planning,
	task.Translation, task.Chat,
}

func catalog() []providers.Model {
	return []providers.Model{
		{
			ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Provider: providers.Anthropic,
			Description:      "Most intelligent model with vision capabilities",
			MaxContextTokens: 200000,
			Streaming:        true, Vision: true,
			CostPromptPer1K: 0.003, CostOutputPer1K: 0.003,
			Tasks:         append([]task.Kind{task.MediaAnalysis}, fullTasks...),
			PriorityScore: 10.0, Available: true,
		},
		{
			ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", Provider: providers.Anthropic,
			Description:      "Most powerful model for complex reasoning",
			MaxContextTokens: 200000,
			Streaming:        true,
			CostPromptPer1K:  0.015, CostOutputPer1K: 0.015,
			Tasks:         fullTasks,
			PriorityScore: 9.5, Available: true,
		},
		{
			ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet", Provider: providers.Anthropic,
			Description:      "Balanced model for most tasks",
			MaxContextTokens: 200000,
			Streaming:        true,
			CostPromptPer1K:  0.003, CostOutputPer1K: 0.003,
			Tasks:         fullTasks,
			PriorityScore: 8.5, Available: true,
		},
		{
			ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", Provider: providers.Anthropic,
			Description:      "Fast and efficient model for simple tasks",
			MaxContextTokens: 200000,
			Streaming:        true,
			CostPromptPer1K:  0.00025, CostOutputPer1K: 0.00025,
			Tasks: []task.Kind{
				task.TextGeneration, task.Summarization, task.TopicExtraction,
				task.Classification, task.Translation, task.Chat,
			},
			PriorityScore: 7.0, Available: true,
		},
	}
}

// Driver talks to the Anthropic messages API.
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

// New creates an Anthropic driver. baseURL "" selects the public endpoint.
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

func (d *Driver) ID() string   { return providers.Anthropic }
func (d *Driver) Name() string { return "Anthropic" }

func (d *Driver) Initialize(ctx context.Context) error {
	if !d.BeginInit() {
		return nil
	}
	if d.apiKey == "" {
		d.MarkTerminated()
		return providers.E(providers.KindAuthenticationFailed, "anthropic: API key is required")
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

func (d *Driver) authHeaders(ctx context.Context) map[string]string {
	key := d.apiKey
	if override := providers.UserKeyFor(ctx, providers.Anthropic); override != "" {
		key = override
	}
	return map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (d *Driver) Process(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if !d.Accepting() {
		return nil, providers.E(providers.KindProviderUnavailable, "anthropic: driver not initialized")
	}
	m, ok := d.models[req.ModelID]
	if !ok {
		return nil, providers.E(providers.KindModelNotFound, "anthropic: model %s not found", req.ModelID)
	}
	if !m.Supports(req.Task) {
		return nil, providers.E(providers.KindTaskNotSupported, "anthropic: model %s does not support task %s", req.ModelID, req.Task)
	}

	system, msgs := providers.SplitSystem(providers.BuildMessages(req))
	msgs = providers.EnsureUserFirst(providers.MergeConsecutive(msgs))

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	payload := map[string]any{
		"model":      req.ModelID,
		"messages":   msgs,
		"max_tokens": maxTokens,
	}
	if system != "" {
		payload["system"] = system
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		payload["stop_sequences"] = req.Stop
	}

	body, err := providers.DoRequest(ctx, d.client, d.baseURL+"/v1/messages", payload, d.authHeaders(ctx))
	if err != nil {
		return nil, d.classify(err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	var content string
	if len(parsed.Content) > 0 {
		content = parsed.Content[0].Text
	}
	finish := parsed.StopReason
	if finish == "" {
		finish = "completed"
	}
	return &providers.Response{
		Content:      content,
		ModelID:      req.ModelID,
		TokensUsed:   parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		FinishReason: finish,
		Metadata: map[string]any{
			"input_tokens":  parsed.Usage.InputTokens,
			"output_tokens": parsed.Usage.OutputTokens,
		},
	}, nil
}

// classify maps Anthropic status conventions: 529 is the overloaded signal
// and counts as rate limiting.
func (d *Driver) classify(err error) error {
	if se, ok := asStatus(err); ok {
		if se.StatusCode == 529 {
			ce := providers.Wrap(providers.KindRateLimited, err, "anthropic: overloaded")
			ce.RetryAfter = se.RetryAfterSecs
			return ce
		}
		if se.StatusCode == http.StatusBadRequest && strings.Contains(se.Body, "prompt is too long") {
			return providers.Wrap(providers.KindValidation, err, "anthropic: prompt is too long")
		}
	}
	return providers.ClassifyStatus(providers.Anthropic, err)
}

func asStatus(err error) (*providers.StatusError, bool) {
	se, ok := err.(*providers.StatusError)
	return se, ok
}

// HealthCheck issues a minimal one-token generation against the cheapest
// model in the catalog.
func (d *Driver) HealthCheck(ctx context.Context) error {
	_, err := d.Process(ctx, providers.Request{
		Task:      task.TextGeneration,
		ModelID:   "claude-3-haiku-20240307",
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
