package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chatchonk/automodel/internal/facade"
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/session"
	"github.com/chatchonk/automodel/internal/task"
)

// maxBodyBytes caps request bodies; media payloads dominate the budget.
const maxBodyBytes = 32 * 1024 * 1024

// errorEnvelope is the uniform failure body.
type errorEnvelope struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps a failure kind to an HTTP status.
func statusFor(kind providers.ErrKind) int {
	switch kind {
	case providers.KindValidation, providers.KindTaskNotSupported:
		return http.StatusBadRequest
	case providers.KindTierForbidden:
		return http.StatusForbidden
	case providers.KindCostLimitExceeded:
		return http.StatusPaymentRequired
	case providers.KindRateLimited:
		return http.StatusTooManyRequests
	case providers.KindModelNotFound:
		return http.StatusNotFound
	case providers.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case providers.KindProviderUnavailable, providers.KindAuthenticationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := providers.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Kind:      string(kind),
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, providers.E(providers.KindValidation, "malformed JSON body"))
		return false
	}
	return true
}

// ProcessHandler runs one request through the gateway.
func ProcessHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req facade.ProcessRequest
		if !decode(w, r, &req) {
			return
		}
		resp, err := d.Gateway.Process(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type processModelsRequest struct {
	facade.ProcessRequest
	Models       []string `json:"models"`
	FirstSuccess bool     `json:"first_success,omitempty"`
}

// ProcessWithModelsHandler fans one request out to several named models.
func ProcessWithModelsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processModelsRequest
		if !decode(w, r, &req) {
			return
		}
		results, err := d.Gateway.ProcessWithModels(r.Context(), req.ProcessRequest, req.Models, req.FirstSuccess)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

type mediaRequest struct {
	facade.ProcessRequest
	MediaBase64 string `json:"media_base64"`
	MimeType    string `json:"mime_type"`
}

// MediaHandler analyzes a binary payload with a vision-capable model.
func MediaHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mediaRequest
		if !decode(w, r, &req) {
			return
		}
		media, err := base64.StdEncoding.DecodeString(req.MediaBase64)
		if err != nil {
			writeError(w, r, providers.E(providers.KindValidation, "media_base64 is not valid base64"))
			return
		}
		resp, err := d.Gateway.ProcessMedia(r.Context(), req.ProcessRequest, media, req.MimeType)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ModelsHandler lists the live catalog.
func ModelsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"models": d.Gateway.ListModels()})
	}
}

// PerformanceHandler returns the per-model ledger and cache counters.
func PerformanceHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Gateway.GetPerformanceMetrics())
	}
}

type preferencesRequest struct {
	Providers []string `json:"providers"`
}

// PreferencesHandler overrides the provider fallback order for one task.
func PreferencesHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := task.Kind(chi.URLParam(r, "task"))
		if !kind.Valid() {
			writeError(w, r, providers.E(providers.KindValidation, "unknown task kind %q", kind))
			return
		}
		var req preferencesRequest
		if !decode(w, r, &req) {
			return
		}
		if len(req.Providers) == 0 {
			writeError(w, r, providers.E(providers.KindValidation, "providers list required"))
			return
		}
		d.Gateway.SetTaskModelPreferences(kind, req.Providers)
		writeJSON(w, http.StatusOK, map[string]any{"task": kind, "providers": req.Providers})
	}
}

type sessionCreateRequest struct {
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SessionCreateHandler opens a conversation.
func SessionCreateHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionCreateRequest
		if !decode(w, r, &req) {
			return
		}
		if req.UserID == "" {
			writeError(w, r, providers.E(providers.KindValidation, "user_id required"))
			return
		}
		id := d.Gateway.CreateSession(r.Context(), req.UserID, req.Metadata)
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
	}
}

// SessionGetHandler returns a session's replayable state.
func SessionGetHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := d.Gateway.GetSessionContext(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				writeError(w, r, providers.E(providers.KindModelNotFound, "session not found"))
				return
			}
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// SessionDeleteHandler removes a conversation synchronously.
func SessionDeleteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Gateway.DeleteSession(r.Context(), chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

type userKeyRequest struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// UserKeyPutHandler stores a user-supplied provider credential encrypted.
// The key never appears in logs or responses.
func UserKeyPutHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "provider")
		var req userKeyRequest
		if !decode(w, r, &req) {
			return
		}
		if req.UserID == "" {
			writeError(w, r, providers.E(providers.KindValidation, "user_id required"))
			return
		}
		if err := d.KeyVault.StoreUserKey(req.UserID, providerID, req.APIKey); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"provider": providerID, "status": "stored"})
	}
}

// UserKeyDeleteHandler removes a stored credential.
func UserKeyDeleteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, r, providers.E(providers.KindValidation, "user_id query parameter required"))
			return
		}
		d.KeyVault.DeleteUserKey(userID, chi.URLParam(r, "provider"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// UsageHandler pages through the persisted usage log, newest first.
func UsageHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		logs, err := d.Store.ListUsage(r.Context(), limit, offset)
		if err != nil {
			writeError(w, r, providers.Wrap(providers.KindInternal, err, "listing usage"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"usage": logs})
	}
}
