package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newCaptureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	return slog.New(&RedactingHandler{base: base}), &buf
}

func TestRedactsSensitiveStringAttrs(t *testing.T) {
	tests := []struct {
		name   string
		attr   slog.Attr
		secret string
	}{
		{"authorization header", slog.String("authorization", "Bearer sk-secret"), "sk-secret"},
		{"x-api-key header", slog.String("x-api-key", "my-key-value"), "my-key-value"},
		{"api_key", slog.String("api_key", "sk-12345"), "sk-12345"},
		{"password", slog.String("db_password", "hunter2"), "hunter2"},
		{"secret", slog.String("client_secret", "cs-value"), "cs-value"},
		{"token", slog.String("access_token", "at-abc123"), "at-abc123"},
		{"cookie", slog.String("cookie", "session_id=abc123"), "abc123"},
		{"passphrase", slog.String("vault_passphrase", "correct horse"), "correct horse"},
		{"credential", slog.String("credential", "user:1:provider:openai"), "user:1:provider"},
		{"request body", slog.String("body", `{"text":"private prompt"}`), "private prompt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, buf := newCaptureLogger()
			logger.Info("test", tc.attr)
			out := buf.String()
			if strings.Contains(out, tc.secret) {
				t.Errorf("secret %q leaked into log output", tc.secret)
			}
			if !strings.Contains(out, "[REDACTED]") {
				t.Error("expected [REDACTED] placeholder")
			}
		})
	}
}

func TestNumericAttrsPassThrough(t *testing.T) {
	// Key substrings like "token" must not swallow counters and costs.
	logger, buf := newCaptureLogger()
	logger.Info("test",
		slog.Int("tokens_used", 1234),
		slog.Float64("cost_usd", 0.0375),
		slog.Duration("token_refill", 5*time.Second),
		slog.Bool("api_key_present", true),
	)

	out := buf.String()
	for _, want := range []string{"1234", "0.0375", "api_key_present"} {
		if !strings.Contains(out, want) {
			t.Errorf("numeric attribute %q missing from output: %s", want, out)
		}
	}
	if strings.Contains(out, "[REDACTED]") {
		t.Errorf("numeric attributes were redacted: %s", out)
	}
}

func TestNonSensitiveStringsPreserved(t *testing.T) {
	logger, buf := newCaptureLogger()
	logger.Info("test",
		slog.String("path", "/v1/process"),
		slog.String("provider", "openai"),
		slog.Int("status", 200),
	)

	out := buf.String()
	for _, want := range []string{"/v1/process", "openai", "200"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestRedactingHandlerEnabled(t *testing.T) {
	base := slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := &RedactingHandler{base: base}

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should not be enabled when level is warn")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be enabled")
	}
}

func TestWithAttrsRedacts(t *testing.T) {
	var buf bytes.Buffer
	handler := &RedactingHandler{base: slog.NewJSONHandler(&buf, nil)}

	child := handler.WithAttrs([]slog.Attr{
		slog.String("authorization", "Bearer leaked-token"),
		slog.String("method", "GET"),
	})
	slog.New(child).Info("request")

	out := buf.String()
	if strings.Contains(out, "leaked-token") {
		t.Error("authorization in WithAttrs should be redacted")
	}
	if !strings.Contains(out, "GET") {
		t.Error("non-sensitive WithAttrs value should be preserved")
	}
}

func TestWithGroupPreservesAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := &RedactingHandler{base: slog.NewJSONHandler(&buf, nil)}

	slog.New(handler.WithGroup("request")).Info("test", slog.String("path", "/v1/models"))

	out := buf.String()
	if !strings.Contains(out, "request") || !strings.Contains(out, "/v1/models") {
		t.Errorf("group or attribute missing: %s", out)
	}
}

func TestSetLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}
	for _, tc := range tests {
		SetLevel(tc.input)
		if globalLevel.Level() != tc.expected {
			t.Errorf("SetLevel(%q): got %v, want %v", tc.input, globalLevel.Level(), tc.expected)
		}
	}
	SetLevel("info")
}

func TestSetupReturnsLogger(t *testing.T) {
	if Setup("info") == nil {
		t.Error("expected non-nil logger")
	}
}

func TestRequestLoggerFields(t *testing.T) {
	logger, buf := newCaptureLogger()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	server := httptest.NewServer(RequestLogger(logger)(inner))
	defer server.Close()

	req, _ := http.NewRequest("POST", server.URL+"/v1/process", strings.NewReader(`{}`))
	req.Header.Set("X-Request-ID", "req-test-12345")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "POST" || entry["path"] != "/v1/process" {
		t.Errorf("method/path = %v/%v", entry["method"], entry["path"])
	}
	if status, _ := entry["status"].(float64); int(status) != 201 {
		t.Errorf("status = %v, want 201", entry["status"])
	}
	if entry["request_id"] != "req-test-12345" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if _, ok := entry["duration"]; !ok {
		t.Error("duration field missing")
	}
}
