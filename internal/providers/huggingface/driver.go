// Package huggingface implements the HuggingFace Inference API driver. Each
// task kind maps to its own {inputs, parameters} envelope POSTed to
// /models/{modelId}; the API reports no token counts.
package huggingface

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

const defaultBaseURL = "https://api-inference.huggingface.co"

// defaultLabels feed zero-shot classification when the caller supplies none.
var defaultLabels = []string{"positive", "negative", "neutral"}

func catalog() []providers.Model {
	free := func(id, name, desc string, maxTokens int, priority float64, tasks ...task.Kind) providers.Model {
		return providers.Model{
			ID: id, Name: name, Provider: providers.HuggingFace,
			Description:      desc,
			MaxContextTokens: maxTokens,
			Tasks:            tasks,
			PriorityScore:    priority,
			Available:        true,
		}
	}
	return []providers.Model{
		free("microsoft/DialoGPT-large", "DialoGPT Large", "Conversational AI model for chat applications", 1024, 6.0, task.TextGeneration, task.Chat),
		free("google/flan-t5-large", "FLAN-T5 Large", "Instruction-tuned model for various text tasks", 512, 7.0, task.TextGeneration, task.Summarization, task.Translation, task.Classification),
		free("sentence-transformers/all-MiniLM-L6-v2", "All-MiniLM-L6-v2", "High-quality sentence embeddings", 256, 8.0, task.Embedding),
		free("sentence-transformers/all-mpnet-base-v2", "All-MPNet-Base-v2", "High-performance sentence embeddings", 384, 8.5, task.Embedding),
		free("cardiffnlp/twitter-roberta-base-sentiment-latest", "Twitter RoBERTa Sentiment", "Sentiment analysis for social media text", 512, 7.5, task.Classification),
		free("facebook/bart-large-mnli", "BART Large MNLI", "Zero-shot text classification", 1024, 8.0, task.Classification, task.TopicExtraction),
		free("facebook/bart-large-cnn", "BART Large CNN", "News article summarization", 1024, 7.5, task.Summarization),
		free("google/pegasus-xsum", "Pegasus XSum", "Abstractive summarization", 512, 7.0, task.Summarization),
	}
}

// Driver talks to the HuggingFace Inference API.
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

// New creates a HuggingFace driver. baseURL "" selects the public endpoint.
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

func (d *Driver) ID() string   { return providers.HuggingFace }
func (d *Driver) Name() string { return "HuggingFace" }

func (d *Driver) Initialize(ctx context.Context) error {
	if !d.BeginInit() {
		return nil
	}
	if d.apiKey == "" {
		d.MarkTerminated()
		return providers.E(providers.KindAuthenticationFailed, "huggingface: API key is required")
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

func (d *Driver) post(ctx context.Context, modelID string, payload any) ([]byte, error) {
	key := d.apiKey
	if override := providers.UserKeyFor(ctx, providers.HuggingFace); override != "" {
		key = override
	}
	headers := map[string]string{"Authorization": "Bearer " + key}
	body, err := providers.DoRequest(ctx, d.client, d.baseURL+"/models/"+modelID, payload, headers)
	if err != nil {
		return nil, providers.ClassifyStatus(providers.HuggingFace, err)
	}
	return body, nil
}

func (d *Driver) Process(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if !d.Accepting() {
		return nil, providers.E(providers.KindProviderUnavailable, "huggingface: driver not initialized")
	}
	m, ok := d.models[req.ModelID]
	if !ok {
		return nil, providers.E(providers.KindModelNotFound, "huggingface: model %s not found", req.ModelID)
	}
	if !m.Supports(req.Task) {
		return nil, providers.E(providers.KindTaskNotSupported, "huggingface: model %s does not support task %s", req.ModelID, req.Task)
	}

	switch req.Task {
	case task.Embedding:
		return d.embed(ctx, req)
	case task.Classification, task.TopicExtraction:
		return d.classify(ctx, req)
	case task.Summarization:
		return d.summarize(ctx, req)
	default:
		return d.generate(ctx, req)
	}
}

func (d *Driver) embed(ctx context.Context, req providers.Request) (*providers.Response, error) {
	payload := map[string]any{"inputs": []string{providers.PlainText(req)}}
	body, err := d.post(ctx, req.ModelID, payload)
	if err != nil {
		return nil, err
	}

	var vectors [][]float64
	if err := json.Unmarshal(body, &vectors); err != nil {
		// Some models return a single flat vector.
		var flat []float64
		if err2 := json.Unmarshal(body, &flat); err2 != nil {
			return nil, fmt.Errorf("failed to parse embeddings response: %w", err)
		}
		vectors = [][]float64{flat}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embeddings response was empty")
	}
	return &providers.Response{
		Vectors:      vectors,
		ModelID:      req.ModelID,
		FinishReason: "completed",
		Metadata:     map[string]any{"embedding_dimension": len(vectors[0])},
	}, nil
}

func (d *Driver) classify(ctx context.Context, req providers.Request) (*providers.Response, error) {
	zeroShot := strings.Contains(strings.ToLower(req.ModelID), "mnli")
	var payload map[string]any
	if zeroShot {
		labels := req.CandidateLabels
		if len(labels) == 0 {
			labels = defaultLabels
		}
		payload = map[string]any{
			"inputs":     providers.PlainText(req),
			"parameters": map[string]any{"candidate_labels": labels},
		}
	} else {
		payload = map[string]any{"inputs": providers.PlainText(req)}
	}

	body, err := d.post(ctx, req.ModelID, payload)
	if err != nil {
		return nil, err
	}

	kind := "standard"
	if zeroShot {
		kind = "zero_shot"
	}
	return &providers.Response{
		Content:      string(body),
		ModelID:      req.ModelID,
		FinishReason: "completed",
		Metadata:     map[string]any{"classification_type": kind},
	}, nil
}

type summaryResult struct {
	SummaryText string `json:"summary_text"`
}

func (d *Driver) summarize(ctx context.Context, req providers.Request) (*providers.Response, error) {
	parameters := map[string]any{}
	if req.MaxTokens > 0 {
		parameters["max_length"] = req.MaxTokens
	}
	payload := map[string]any{
		"inputs":     providers.PlainText(req),
		"parameters": parameters,
	}
	body, err := d.post(ctx, req.ModelID, payload)
	if err != nil {
		return nil, err
	}

	var results []summaryResult
	content := string(body)
	if err := json.Unmarshal(body, &results); err == nil && len(results) > 0 {
		content = results[0].SummaryText
	}
	return &providers.Response{
		Content:      content,
		ModelID:      req.ModelID,
		FinishReason: "completed",
		Metadata:     map[string]any{"task": string(task.Summarization)},
	}, nil
}

type generationResult struct {
	GeneratedText string `json:"generated_text"`
}

func (d *Driver) generate(ctx context.Context, req providers.Request) (*providers.Response, error) {
	parameters := map[string]any{"return_full_text": false}
	if req.Temperature != nil {
		parameters["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		parameters["max_new_tokens"] = req.MaxTokens
	}
	payload := map[string]any{
		"inputs":     providers.PlainText(req),
		"parameters": parameters,
	}
	body, err := d.post(ctx, req.ModelID, payload)
	if err != nil {
		return nil, err
	}

	var results []generationResult
	content := string(body)
	if err := json.Unmarshal(body, &results); err == nil && len(results) > 0 {
		content = results[0].GeneratedText
	}
	return &providers.Response{
		Content:      content,
		ModelID:      req.ModelID,
		FinishReason: "completed",
		Metadata:     map[string]any{"task": string(req.Task)},
	}, nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	_, err := d.Process(ctx, providers.Request{
		Task:      task.TextGeneration,
		ModelID:   "google/flan-t5-large",
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
