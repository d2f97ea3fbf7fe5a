package providers

import "context"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID attaches a request ID to the context for propagation to
// outbound provider calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

const keyLookupKey contextKey = "key_lookup"

// KeyLookup resolves a caller-supplied credential for a provider id. An
// empty return means no override; the driver falls back to its configured
// key. The resolved key must never be logged.
type KeyLookup func(providerID string) string

// WithKeyLookup attaches a per-call credential resolver to the context.
func WithKeyLookup(ctx context.Context, fn KeyLookup) context.Context {
	return context.WithValue(ctx, keyLookupKey, fn)
}

// UserKeyFor returns the caller-supplied credential for a provider, or "".
func UserKeyFor(ctx context.Context, providerID string) string {
	if fn, ok := ctx.Value(keyLookupKey).(KeyLookup); ok && fn != nil {
		return fn(providerID)
	}
	return ""
}
