package idempotency

import (
	"bytes"
	"net/http"
)

// Middleware replays a stored response when a request carries an
// Idempotency-Key header whose value has been seen before. Replays carry an
// Idempotency-Replay: true header. Only POST and PUT requests participate;
// anything without the header passes through unchanged. Server errors are
// never stored, so a retry after a 5xx reaches the backend again.
func Middleware(cache *Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}

			if e, ok := cache.Get(key); ok {
				for k, v := range e.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("Idempotency-Replay", "true")
				w.WriteHeader(e.StatusCode)
				_, _ = w.Write(e.Body)
				return
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				body:           &bytes.Buffer{},
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}
			hdrs := make(map[string]string)
			for k, v := range rec.Header() {
				if len(v) > 0 {
					hdrs[k] = v[0]
				}
			}
			cache.Set(key, rec.body.Bytes(), rec.statusCode, hdrs)
		})
	}
}

// responseRecorder captures the response body and status code while still
// writing to the original writer.
type responseRecorder struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	written    bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
