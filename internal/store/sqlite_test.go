package store

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestModelsCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := ModelRecord{
		ID: "gpt-4o", ProviderID: "openai", Name: "GPT-4o",
		MaxContextTokens: 128000, CostPromptPer1K: 0.005, CostOutputPer1K: 0.005,
		PriorityScore: 10, SupportsVision: true, Enabled: true,
	}
	if err := s.UpsertModel(ctx, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetModel(ctx, "gpt-4o")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.PriorityScore != 10 || !got.SupportsVision {
		t.Errorf("got %+v", got)
	}

	m.PriorityScore = 9
	if err := s.UpsertModel(ctx, m); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetModel(ctx, "gpt-4o")
	if got.PriorityScore != 9 {
		t.Errorf("priority = %v after update", got.PriorityScore)
	}

	all, err := s.ListModels(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("list = %v, %v", all, err)
	}

	if err := s.DeleteModel(ctx, "gpt-4o"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.GetModel(ctx, "gpt-4o"); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestGetModelNotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetModel(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("missing model should read as nil, nil")
	}
}

func TestProvidersUpsertList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertProvider(ctx, ProviderRecord{ID: "openai", Name: "OpenAI", Enabled: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertProvider(ctx, ProviderRecord{ID: "openai", Name: "OpenAI", Enabled: false}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	all, err := s.ListProviders(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list = %v, %v", all, err)
	}
	if all[0].Enabled {
		t.Error("upsert should have disabled the provider")
	}
}

func TestUsageLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := UsageLog{
		RequestID: "req-1", UserID: "u1", TaskKind: "summarization",
		ModelID: "gpt-4o", ProviderID: "openai", Tier: "bigchonk",
		TokensUsed: 512, CostUSD: 0.0021, LatencyMs: 840, Success: true,
	}
	if err := s.LogUsage(ctx, entry); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := s.LogUsage(ctx, UsageLog{ModelID: "m2", ProviderID: "p", Success: false, ErrorKind: "rate_limited"}); err != nil {
		t.Fatalf("log 2: %v", err)
	}

	logs, err := s.ListUsage(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len = %d", len(logs))
	}
	// Newest first.
	if logs[0].ModelID != "m2" || logs[1].RequestID != "req-1" {
		t.Errorf("ordering: %+v", logs)
	}
	if logs[1].CostUSD != 0.0021 || logs[1].Tier != "bigchonk" {
		t.Errorf("fields lost: %+v", logs[1])
	}
}

func TestTaskPerformanceUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := TaskPerformance{
		ModelID: "gpt-4o", TaskKind: "chat",
		TotalRequests: 10, SuccessfulRequests: 9, FailedRequests: 1,
		AvgResponseTime: 1.2, ErrorRate: 0.1, LastUsed: time.Now().UTC(),
	}
	if err := s.UpsertTaskPerformance(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.TotalRequests = 11
	rec.SuccessfulRequests = 10
	if err := s.UpsertTaskPerformance(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := s.ListTaskPerformance(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list = %v, %v", all, err)
	}
	if all[0].TotalRequests != 11 {
		t.Errorf("total = %d, want 11", all[0].TotalRequests)
	}
}

func TestVaultBlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	salt := []byte("0123456789abcdef")
	data := map[string]string{"user:u1:provider:openai": "Y2lwaGVydGV4dA=="}
	if err := s.SaveVaultBlob(ctx, salt, data); err != nil {
		t.Fatalf("save: %v", err)
	}

	gotSalt, gotData, err := s.LoadVaultBlob(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(gotSalt) != string(salt) {
		t.Errorf("salt = %q", gotSalt)
	}
	if gotData["user:u1:provider:openai"] != data["user:u1:provider:openai"] {
		t.Errorf("data = %+v", gotData)
	}
}

func TestVaultBlobEmpty(t *testing.T) {
	s := newTestStore(t)
	salt, data, err := s.LoadVaultBlob(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if salt != nil || data != nil {
		t.Error("empty vault blob should read as nil, nil, nil")
	}
}
