package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite supports one writer at a time. Keep the pool small.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT 1,
			base_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			max_context_tokens INTEGER NOT NULL DEFAULT 4096,
			cost_prompt_per_1k REAL NOT NULL DEFAULT 0,
			cost_completion_per_1k REAL NOT NULL DEFAULT 0,
			priority_score REAL NOT NULL DEFAULT 0,
			supports_vision BOOLEAN NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS usage_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			request_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			task_kind TEXT NOT NULL DEFAULT '',
			model_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT '',
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT 1,
			error_kind TEXT NOT NULL DEFAULT '',
			cached BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_timestamp ON usage_logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_user ON usage_logs(user_id)`,
		`CREATE TABLE IF NOT EXISTS task_performance (
			model_id TEXT NOT NULL,
			task_kind TEXT NOT NULL,
			total_requests INTEGER NOT NULL DEFAULT 0,
			successful_requests INTEGER NOT NULL DEFAULT 0,
			failed_requests INTEGER NOT NULL DEFAULT 0,
			avg_response_time REAL NOT NULL DEFAULT 0,
			error_rate REAL NOT NULL DEFAULT 0,
			last_used TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (model_id, task_kind)
		)`,
		`CREATE TABLE IF NOT EXISTS vault_blob (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			salt BLOB NOT NULL,
			data TEXT NOT NULL DEFAULT '{}'
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListProviders(ctx context.Context) ([]ProviderRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, enabled, base_url FROM providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProviderRecord
	for rows.Next() {
		var p ProviderRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.Enabled, &p.BaseURL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertProvider(ctx context.Context, p ProviderRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (id, name, enabled, base_url) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, enabled=excluded.enabled, base_url=excluded.base_url`,
		p.ID, p.Name, p.Enabled, p.BaseURL)
	return err
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_id, name, max_context_tokens, cost_prompt_per_1k,
		       cost_completion_per_1k, priority_score, supports_vision, enabled
		FROM models ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModelRecord
	for rows.Next() {
		var m ModelRecord
		if err := rows.Scan(&m.ID, &m.ProviderID, &m.Name, &m.MaxContextTokens,
			&m.CostPromptPer1K, &m.CostOutputPer1K, &m.PriorityScore, &m.SupportsVision, &m.Enabled); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*ModelRecord, error) {
	var m ModelRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, name, max_context_tokens, cost_prompt_per_1k,
		       cost_completion_per_1k, priority_score, supports_vision, enabled
		FROM models WHERE id = ?`, id).
		Scan(&m.ID, &m.ProviderID, &m.Name, &m.MaxContextTokens,
			&m.CostPromptPer1K, &m.CostOutputPer1K, &m.PriorityScore, &m.SupportsVision, &m.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) UpsertModel(ctx context.Context, m ModelRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (id, provider_id, name, max_context_tokens, cost_prompt_per_1k,
		                    cost_completion_per_1k, priority_score, supports_vision, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_id=excluded.provider_id, name=excluded.name,
			max_context_tokens=excluded.max_context_tokens,
			cost_prompt_per_1k=excluded.cost_prompt_per_1k,
			cost_completion_per_1k=excluded.cost_completion_per_1k,
			priority_score=excluded.priority_score,
			supports_vision=excluded.supports_vision, enabled=excluded.enabled`,
		m.ID, m.ProviderID, m.Name, m.MaxContextTokens, m.CostPromptPer1K,
		m.CostOutputPer1K, m.PriorityScore, m.SupportsVision, m.Enabled)
	return err
}

func (s *SQLiteStore) DeleteModel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) LogUsage(ctx context.Context, entry UsageLog) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_logs (timestamp, request_id, user_id, task_kind, model_id,
		                        provider_id, tier, tokens_used, cost_usd, latency_ms,
		                        success, error_kind, cached)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339Nano), entry.RequestID, entry.UserID, entry.TaskKind,
		entry.ModelID, entry.ProviderID, entry.Tier, entry.TokensUsed, entry.CostUSD,
		entry.LatencyMs, entry.Success, entry.ErrorKind, entry.Cached)
	return err
}

func (s *SQLiteStore) ListUsage(ctx context.Context, limit, offset int) ([]UsageLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, request_id, user_id, task_kind, model_id, provider_id,
		       tier, tokens_used, cost_usd, latency_ms, success, error_kind, cached
		FROM usage_logs ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UsageLog
	for rows.Next() {
		var u UsageLog
		var ts string
		if err := rows.Scan(&u.ID, &ts, &u.RequestID, &u.UserID, &u.TaskKind, &u.ModelID,
			&u.ProviderID, &u.Tier, &u.TokensUsed, &u.CostUSD, &u.LatencyMs,
			&u.Success, &u.ErrorKind, &u.Cached); err != nil {
			return nil, err
		}
		u.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertTaskPerformance(ctx context.Context, rec TaskPerformance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_performance (model_id, task_kind, total_requests, successful_requests,
		                              failed_requests, avg_response_time, error_rate, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id, task_kind) DO UPDATE SET
			total_requests=excluded.total_requests,
			successful_requests=excluded.successful_requests,
			failed_requests=excluded.failed_requests,
			avg_response_time=excluded.avg_response_time,
			error_rate=excluded.error_rate,
			last_used=excluded.last_used`,
		rec.ModelID, rec.TaskKind, rec.TotalRequests, rec.SuccessfulRequests,
		rec.FailedRequests, rec.AvgResponseTime, rec.ErrorRate,
		rec.LastUsed.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) ListTaskPerformance(ctx context.Context) ([]TaskPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, task_kind, total_requests, successful_requests, failed_requests,
		       avg_response_time, error_rate, last_used
		FROM task_performance ORDER BY model_id, task_kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskPerformance
	for rows.Next() {
		var r TaskPerformance
		var lastUsed string
		if err := rows.Scan(&r.ModelID, &r.TaskKind, &r.TotalRequests, &r.SuccessfulRequests,
			&r.FailedRequests, &r.AvgResponseTime, &r.ErrorRate, &lastUsed); err != nil {
			return nil, err
		}
		r.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveVaultBlob(ctx context.Context, salt []byte, data map[string]string) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vault_blob (id, salt, data) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET salt=excluded.salt, data=excluded.data`,
		salt, string(encoded))
	return err
}

func (s *SQLiteStore) LoadVaultBlob(ctx context.Context) ([]byte, map[string]string, error) {
	var salt []byte
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT salt, data FROM vault_blob WHERE id = 1`).
		Scan(&salt, &raw)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	data := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, nil, err
	}
	return salt, data, nil
}
