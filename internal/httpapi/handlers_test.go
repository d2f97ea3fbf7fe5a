package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatchonk/automodel/internal/cache"
	"github.com/chatchonk/automodel/internal/costgate"
	"github.com/chatchonk/automodel/internal/facade"
	"github.com/chatchonk/automodel/internal/keyvault"
	"github.com/chatchonk/automodel/internal/ledger"
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/registry"
	"github.com/chatchonk/automodel/internal/router"
	"github.com/chatchonk/automodel/internal/session"
	"github.com/chatchonk/automodel/internal/store"
	"github.com/chatchonk/automodel/internal/task"
)

type fakeDriver struct {
	providers.Lifecycle
	id     string
	models []providers.Model
}

func (f *fakeDriver) ID() string   { return f.id }
func (f *fakeDriver) Name() string { return f.id }

func (f *fakeDriver) Initialize(ctx context.Context) error {
	f.BeginInit()
	f.MarkReady()
	return nil
}

func (f *fakeDriver) Shutdown(ctx context.Context) error {
	f.BeginShutdown()
	f.MarkTerminated()
	return nil
}

func (f *fakeDriver) ListModels() []providers.Model { return f.models }

func (f *fakeDriver) SupportsTask(modelID string, kind task.Kind) bool {
	for _, m := range f.models {
		if m.ID == modelID && m.Supports(kind) {
			return true
		}
	}
	return false
}

func (f *fakeDriver) Process(ctx context.Context, req providers.Request) (*providers.Response, error) {
	return &providers.Response{Content: "ok", ModelID: req.ModelID, TokensUsed: 42}, nil
}

func (f *fakeDriver) HealthCheck(ctx context.Context) error { return nil }

func testServer(t *testing.T) (*httptest.Server, Dependencies) {
	t.Helper()
	d := &fakeDriver{id: providers.OpenAI, models: []providers.Model{{
		ID: "gpt-4o-mini", Provider: providers.OpenAI, MaxContextTokens: 8192,
		CostPromptPer1K: 0.001, CostOutputPer1K: 0.001, Vision: true,
		Tasks:         []task.Kind{task.Chat, task.TextGeneration, task.Summarization, task.MediaAnalysis},
		PriorityScore: 9, Available: true,
	}}}
	reg := registry.New([]providers.Driver{d})
	require.NoError(t, reg.Initialize(context.Background()))

	led := ledger.New()
	rt := router.New(reg, led)
	gate := costgate.New()
	c := cache.New()
	sess := session.NewManager()
	gw := facade.New(reg, rt, gate, led, c, sess)

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	kv, err := keyvault.New()
	require.NoError(t, err)
	require.NoError(t, kv.Unlock([]byte("a-test-passphrase-long-enough")))

	deps := Dependencies{Gateway: gw, Registry: reg, Store: st, KeyVault: kv}
	r := chi.NewRouter()
	MountRoutes(r, deps)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, deps
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestProcessEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/process", map[string]any{
		"user_id": "u1", "tier": "bigchonk", "task": "text_generation",
		"text": "write a limerick",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out facade.ProcessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "gpt-4o-mini", out.ModelID)
	assert.Equal(t, "ok", out.Content)
	assert.NotEmpty(t, out.RequestID)
}

func TestProcessValidationEnvelope(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/process", map[string]any{
		"user_id": "u1", "tier": "free", "task": "text_generation",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var env errorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "validation", env.Kind)
	assert.NotEmpty(t, env.Message)
}

func TestProcessCostRefusalStatus(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/process", map[string]any{
		"user_id": "u1", "tier": "free", "task": "text_generation",
		"text": "x", "estimated_tokens": 100000,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var env errorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "cost_limit_exceeded", env.Kind)
}

func TestMalformedBody(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/v1/process", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessWithModelsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/process/models", map[string]any{
		"user_id": "u1", "tier": "bigchonk", "task": "text_generation",
		"text": "x", "no_cache": true, "models": []string{"gpt-4o-mini", "missing-model"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Results []facade.ModelResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 2)
	assert.NotNil(t, out.Results[0].Response)
	assert.Equal(t, "model_not_found", out.Results[1].ErrorKind)
}

func TestMediaEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/media", map[string]any{
		"user_id": "u1", "tier": "bigchonk",
		"media_base64": base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8}),
		"mime_type":    "image/jpeg",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Models []providers.Model `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Models, 1)
	assert.Equal(t, "gpt-4o-mini", out.Models[0].ID)
}

func TestPerformanceEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/v1/performance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPreferencesEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	raw, _ := json.Marshal(map[string]any{"providers": []string{"openai"}})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/preferences/summarization", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/v1/preferences/juggling", bytes.NewReader(raw))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/sessions", map[string]any{"user_id": "u1"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.SessionID)

	getResp, err := http.Get(srv.URL + "/v1/sessions/" + created.SessionID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/"+created.SessionID, nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	getResp, err = http.Get(srv.URL + "/v1/sessions/" + created.SessionID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestUserKeyEndpoints(t *testing.T) {
	srv, deps := testServer(t)

	raw, _ := json.Marshal(map[string]string{
		"user_id": "u1", "api_key": "sk_live_abcdefghijklmnop1234",
	})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/keys/openai", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, deps.KeyVault.HasUserKey("u1", "openai"))

	// Malformed keys are refused.
	raw, _ = json.Marshal(map[string]string{"user_id": "u1", "api_key": "short"})
	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/v1/keys/openai", bytes.NewReader(raw))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/keys/openai?user_id=u1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, deps.KeyVault.HasUserKey("u1", "openai"))
}

func TestUsageEndpoint(t *testing.T) {
	srv, deps := testServer(t)

	require.NoError(t, deps.Store.LogUsage(context.Background(), store.UsageLog{
		RequestID: "r1", ModelID: "gpt-4o-mini", ProviderID: "openai", Success: true,
	}))

	resp, err := http.Get(srv.URL + "/v1/usage?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Usage []store.UsageLog `json:"usage"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Usage, 1)
}

func TestHealthzEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
