package qwen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

func TestProcessEnvelope(t *testing.T) {
	var payload map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/aigc/text-generation/generation" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth = %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"text": "你好", "finish_reason": "stop"},
			"usage":  map[string]int{"input_tokens": 4, "output_tokens": 2, "total_tokens": 6},
		})
	}))
	defer ts.Close()

	d := New("test-key", ts.URL)
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	resp, err := d.Process(context.Background(), providers.Request{
		Task:        task.Translation,
		ModelID:     "qwen-plus",
		Text:        "hello",
		MaxTokens:   100,
		Temperature: providers.Float64(0.3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "你好" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.TokensUsed != 6 {
		t.Errorf("tokens = %d", resp.TokensUsed)
	}

	// The request travels in the nested DashScope envelope.
	input, ok := payload["input"].(map[string]any)
	if !ok {
		t.Fatalf("missing input envelope: %v", payload)
	}
	if _, ok := input["messages"]; !ok {
		t.Error("input.messages missing")
	}
	params, ok := payload["parameters"].(map[string]any)
	if !ok {
		t.Fatalf("missing parameters envelope")
	}
	if params["max_tokens"] != float64(100) {
		t.Errorf("parameters.max_tokens = %v", params["max_tokens"])
	}
	if params["temperature"] != 0.3 {
		t.Errorf("parameters.temperature = %v", params["temperature"])
	}
	if _, flat := payload["messages"]; flat {
		t.Error("messages must not appear at the top level")
	}
}

func TestProcessTaskNotSupported(t *testing.T) {
	d := New("k", "http://localhost:1")
	_ = d.Initialize(context.Background())
	_, err := d.Process(context.Background(), providers.Request{
		Task: task.Embedding, ModelID: "qwen-turbo", Text: "x",
	})
	if providers.KindOf(err) != providers.KindTaskNotSupported {
		t.Errorf("kind = %s", providers.KindOf(err))
	}
}

func TestTurboLacksPlanning(t *testing.T) {
	d := New("k", "")
	if d.SupportsTask("qwen-turbo", task.Planning) {
		t.Error("qwen-turbo does not support planning")
	}
	if !d.SupportsTask("qwen-plus", task.Planning) {
		t.Error("qwen-plus supports planning")
	}
}
