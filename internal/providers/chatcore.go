package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatchonk/automodel/internal/task"
)

// ChatCore implements the generation path shared by the OpenAI-compatible
// vendors (OpenAI, Mistral, DeepSeek, OpenRouter): POST /chat/completions
// with the well-known request object. Vendor drivers embed it and supply
// their catalog, base URL, and any extra headers.
type ChatCore struct {
	Lifecycle

	id      string
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	headers map[string]string
	catalog []Model
	models  map[string]Model
}

// CoreOption configures a ChatCore.
type CoreOption func(*ChatCore)

// WithTimeout sets the per-call client timeout.
func WithTimeout(d time.Duration) CoreOption {
	return func(c *ChatCore) { c.client.Timeout = d }
}

// WithHeader adds a header to every outbound request.
func WithHeader(key, value string) CoreOption {
	return func(c *ChatCore) { c.headers[key] = value }
}

// WithMaxConns caps concurrent connections to the vendor.
func WithMaxConns(n int) CoreOption {
	return func(c *ChatCore) { c.client.Transport = Transport(n) }
}

// NewChatCore builds the shared core. catalog entries keep their declaration
// order for stable listing.
func NewChatCore(id, name, apiKey, baseURL string, catalog []Model, opts ...CoreOption) *ChatCore {
	c := &ChatCore{
		id:      id,
		name:    name,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  NewHTTPClient(),
		headers: map[string]string{},
		catalog: catalog,
		models:  make(map[string]Model, len(catalog)),
	}
	for _, m := range catalog {
		c.models[m.ID] = m
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *ChatCore) ID() string   { return c.id }
func (c *ChatCore) Name() string { return c.name }

// Initialize validates credentials are present and marks the driver ready.
func (c *ChatCore) Initialize(ctx context.Context) error {
	if !c.BeginInit() {
		return nil
	}
	if c.apiKey == "" {
		c.MarkTerminated()
		return E(KindAuthenticationFailed, "%s: API key is required", c.id)
	}
	c.MarkReady()
	return nil
}

// Shutdown closes idle connections and terminates the driver.
func (c *ChatCore) Shutdown(ctx context.Context) error {
	c.BeginShutdown()
	c.client.CloseIdleConnections()
	c.MarkTerminated()
	return nil
}

func (c *ChatCore) ListModels() []Model {
	out := make([]Model, len(c.catalog))
	copy(out, c.catalog)
	return out
}

func (c *ChatCore) SupportsTask(modelID string, kind task.Kind) bool {
	m, ok := c.models[modelID]
	return ok && m.Supports(kind)
}

// Lookup returns the catalog entry for a model id.
func (c *ChatCore) Lookup(modelID string) (Model, bool) {
	m, ok := c.models[modelID]
	return m, ok
}

// AuthHeaders returns the per-request header set: bearer auth plus any
// vendor extras. A caller-supplied credential on the context replaces the
// configured key for this call.
func (c *ChatCore) AuthHeaders(ctx context.Context) map[string]string {
	key := c.apiKey
	if override := UserKeyFor(ctx, c.id); override != "" {
		key = override
	}
	h := map[string]string{"Authorization": "Bearer " + key}
	for k, v := range c.headers {
		h[k] = v
	}
	return h
}

// MakeRequest POSTs a JSON payload to a path under the vendor base URL.
func (c *ChatCore) MakeRequest(ctx context.Context, path string, payload any) ([]byte, error) {
	return DoRequest(ctx, c.client, c.baseURL+path, payload, c.AuthHeaders(ctx))
}

// ChatPayload builds the chat-completions request object. Optional
// parameters the caller did not set are omitted.
func ChatPayload(req Request, msgs []Message) map[string]any {
	payload := map[string]any{
		"model":    req.ModelID,
		"messages": msgs,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		payload["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		payload["presence_penalty"] = *req.PresencePenalty
	}
	if len(req.Stop) > 0 {
		payload["stop"] = req.Stop
	}
	return payload
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseChatCompletion decodes a chat-completions response body into the
// canonical form.
func ParseChatCompletion(modelID string, body []byte) (*Response, error) {
	var parsed chatCompletion
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}
	choice := parsed.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		ModelID:      modelID,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: choice.FinishReason,
		Metadata: map[string]any{
			"input_tokens":  parsed.Usage.PromptTokens,
			"output_tokens": parsed.Usage.CompletionTokens,
		},
	}, nil
}

// Process runs a chat-completions call for any generation-style task.
func (c *ChatCore) Process(ctx context.Context, req Request) (*Response, error) {
	if !c.Accepting() {
		return nil, E(KindProviderUnavailable, "%s: driver not initialized", c.id)
	}
	m, ok := c.models[req.ModelID]
	if !ok {
		return nil, E(KindModelNotFound, "%s: model %s not found", c.id, req.ModelID)
	}
	if !m.Supports(req.Task) {
		return nil, E(KindTaskNotSupported, "%s: model %s does not support task %s", c.id, req.ModelID, req.Task)
	}

	msgs := BuildMessages(req)
	body, err := c.MakeRequest(ctx, "/chat/completions", ChatPayload(req, msgs))
	if err != nil {
		return nil, ClassifyStatus(c.id, err)
	}
	return ParseChatCompletion(req.ModelID, body)
}

// HealthCheck issues a minimal one-token generation against the first
// catalog model.
func (c *ChatCore) HealthCheck(ctx context.Context) error {
	if len(c.catalog) == 0 {
		return E(KindProviderUnavailable, "%s: no models configured", c.id)
	}
	req := Request{
		Task:      task.TextGeneration,
		ModelID:   c.catalog[0].ID,
		Text:      "Hello",
		MaxTokens: 1,
	}
	_, err := c.Process(ctx, req)
	if err != nil {
		c.MarkDegraded()
		return err
	}
	c.MarkReady()
	return nil
}
