// Package store persists catalog state, usage accounting, and performance
// history. The service runs fine against an empty database; everything here
// is written on the request path or during reconciliation, never required
// for startup.
package store

import (
	"context"
	"time"
)

// Store is the persistence interface.
type Store interface {
	// Catalog
	ListProviders(ctx context.Context) ([]ProviderRecord, error)
	UpsertProvider(ctx context.Context, p ProviderRecord) error
	ListModels(ctx context.Context) ([]ModelRecord, error)
	GetModel(ctx context.Context, id string) (*ModelRecord, error)
	UpsertModel(ctx context.Context, m ModelRecord) error
	DeleteModel(ctx context.Context, id string) error

	// Usage accounting
	LogUsage(ctx context.Context, entry UsageLog) error
	ListUsage(ctx context.Context, limit, offset int) ([]UsageLog, error)

	// Performance history
	UpsertTaskPerformance(ctx context.Context, rec TaskPerformance) error
	ListTaskPerformance(ctx context.Context) ([]TaskPerformance, error)

	// Encrypted credential blob
	SaveVaultBlob(ctx context.Context, salt []byte, data map[string]string) error
	LoadVaultBlob(ctx context.Context) (salt []byte, data map[string]string, err error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ProviderRecord is the persisted form of a provider registration.
type ProviderRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"`
}

// ModelRecord is the persisted form of a catalog model.
type ModelRecord struct {
	ID               string  `json:"id"`
	ProviderID       string  `json:"provider_id"`
	Name             string  `json:"name"`
	MaxContextTokens int     `json:"max_context_tokens"`
	CostPromptPer1K  float64 `json:"cost_prompt_per_1k"`
	CostOutputPer1K  float64 `json:"cost_completion_per_1k"`
	PriorityScore    float64 `json:"priority_score"`
	SupportsVision   bool    `json:"supports_vision"`
	Enabled          bool    `json:"enabled"`
}

// UsageLog captures one routed request for accounting and audit.
type UsageLog struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	UserID     string    `json:"user_id"`
	TaskKind   string    `json:"task_kind"`
	ModelID    string    `json:"model_id"`
	ProviderID string    `json:"provider_id"`
	Tier       string    `json:"tier"`
	TokensUsed int       `json:"tokens_used"`
	CostUSD    float64   `json:"cost_usd"`
	LatencyMs  int64     `json:"latency_ms"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Cached     bool      `json:"cached"`
}

// TaskPerformance is the persisted per-model, per-task statistics row.
type TaskPerformance struct {
	ModelID            string    `json:"model_id"`
	TaskKind           string    `json:"task_kind"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	AvgResponseTime    float64   `json:"average_response_time"`
	ErrorRate          float64   `json:"error_rate"`
	LastUsed           time.Time `json:"last_used"`
}
