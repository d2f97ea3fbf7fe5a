package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeoutSecs is the per-call deadline applied when a driver is built
// without an explicit timeout.
const DefaultTimeoutSecs = 60

// MaxOutboundPerProvider bounds concurrent connections to a single vendor
// when no explicit cap is configured.
const MaxOutboundPerProvider = 32

// Transport builds an outbound transport capped at maxConns concurrent
// connections per host. maxConns <= 0 selects the default cap.
func Transport(maxConns int) *http.Transport {
	if maxConns <= 0 {
		maxConns = MaxOutboundPerProvider
	}
	return &http.Transport{
		MaxConnsPerHost:     maxConns,
		MaxIdleConnsPerHost: maxConns,
	}
}

// NewHTTPClient builds the outbound client drivers share: per-provider
// connection cap, no global timeout (deadlines come from the context).
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: Transport(0)}
}

// DoRequest sends a POST request with a JSON payload and returns the response
// body bytes. It handles JSON marshaling, header setting (Content-Type plus
// any caller-supplied headers), request-ID forwarding, and error responses
// (StatusError with Retry-After parsing).
func DoRequest(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) ([]byte, error) {
	// Start a child span if the global tracer is active (OTel enabled).
	ctx, span := otel.Tracer("automodel.providers").Start(ctx, "provider.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer span.End()

	jsonData, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create request failed")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if reqID := GetRequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	// Propagate W3C trace context (traceparent/tracestate) to the provider.
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response failed")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		se.ParseRetryAfter(resp.Header.Get("Retry-After"))
		span.RecordError(se)
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		return nil, se
	}

	span.SetStatus(codes.Ok, "")
	return body, nil
}
