package mistral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

func TestProcess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth = %s", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "Bonjour"}, "finish_reason": "stop"}},
			"usage":   map[string]int{"total_tokens": 7},
		})
	}))
	defer ts.Close()

	d := New("test-key", ts.URL)
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	resp, err := d.Process(context.Background(), providers.Request{
		Task: task.Translation, ModelID: "mistral-large-latest", Text: "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Bonjour" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestSmallLacksSensemaking(t *testing.T) {
	d := New("k", "")
	if d.SupportsTask("mistral-small-latest", task.Sensemaking) {
		t.Error("mistral-small does not support sensemaking")
	}
	if !d.SupportsTask("mistral-large-latest", task.Sensemaking) {
		t.Error("mistral-large supports sensemaking")
	}
}
