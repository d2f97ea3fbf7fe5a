// Package facade is the single entry point callers use: it validates a
// request, consults the cache, routes it, enforces the cost gate, runs the
// fallback chain, and records the outcome everywhere it needs to land.
package facade

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chatchonk/automodel/internal/cache"
	"github.com/chatchonk/automodel/internal/costgate"
	"github.com/chatchonk/automodel/internal/events"
	"github.com/chatchonk/automodel/internal/ledger"
	"github.com/chatchonk/automodel/internal/metrics"
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/registry"
	"github.com/chatchonk/automodel/internal/router"
	"github.com/chatchonk/automodel/internal/session"
	"github.com/chatchonk/automodel/internal/store"
	"github.com/chatchonk/automodel/internal/task"
)

// DefaultDeadline bounds a request when the caller sets none.
const DefaultDeadline = 60 * time.Second

// maxTemperature is the upper bound of the accepted sampling range.
const maxTemperature = 2.0

// TemplateHook rewrites request text before routing. It receives the
// template id and the raw content and returns the content to send.
type TemplateHook func(templateID, content string) (string, error)

// KeyVault resolves stored user credentials for requests that run on the
// caller's own provider keys.
type KeyVault interface {
	UserKey(userID, providerID string) (string, error)
	HasUserKey(userID, providerID string) bool
}

// ProcessRequest is the caller-facing work order.
type ProcessRequest struct {
	RequestID string            `json:"request_id,omitempty"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	Tier      task.Tier         `json:"tier"`
	Task      task.Kind         `json:"task"`
	Priority  task.Priority     `json:"priority,omitempty"`

	Text     string              `json:"text,omitempty"`
	Messages []providers.Message `json:"messages,omitempty"`

	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	CandidateLabels  []string `json:"candidate_labels,omitempty"`
	TemplateID       string   `json:"template_id,omitempty"`

	PinProvider        string   `json:"pin_provider,omitempty"`
	PinModel           string   `json:"pin_model,omitempty"`
	PreferredProviders []string `json:"preferred_providers,omitempty"`
	ExcludedProviders  []string `json:"excluded_providers,omitempty"`
	MinContextLength   int      `json:"min_context_length,omitempty"`
	MaxCostPer1K       float64  `json:"max_cost_per_1k,omitempty"`
	UseUserKeys        bool     `json:"use_user_keys,omitempty"`
	NoCache            bool     `json:"no_cache,omitempty"`
	EstimatedTokens    int64    `json:"estimated_tokens,omitempty"`
	Deadline           time.Duration `json:"-"`
}

func (r ProcessRequest) pinned() bool {
	return r.PinModel != "" || r.PinProvider != ""
}

// ProcessResponse is the caller-facing result.
type ProcessResponse struct {
	RequestID      string         `json:"request_id"`
	Content        string         `json:"content,omitempty"`
	Vectors        [][]float64    `json:"vectors,omitempty"`
	ModelID        string         `json:"model_id"`
	ProviderID     string         `json:"provider_id"`
	TokensUsed     int            `json:"tokens_used"`
	CostUSD        float64        `json:"cost_usd"`
	LatencyMs      int64          `json:"latency_ms"`
	Cached         bool           `json:"cached"`
	Reasoning      string         `json:"reasoning,omitempty"`
	FallbackModels []string       `json:"fallback_models,omitempty"`
	FinishReason   string         `json:"finish_reason,omitempty"`
	SecurityLevel  string         `json:"security_level,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ModelResult is one branch of a ProcessWithModels fan-out, in caller order.
type ModelResult struct {
	ModelID   string           `json:"model_id"`
	Response  *ProcessResponse `json:"response,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
}

// AutoModel composes the routing subsystems behind one API.
type AutoModel struct {
	registry *registry.Registry
	router   *router.Router
	gate     *costgate.Gate
	ledger   *ledger.Ledger
	cache    *cache.Cache
	sessions *session.Manager
	store    store.Store
	metrics  *metrics.Registry
	bus      *events.Bus
	vault    KeyVault
	log      *slog.Logger
	template TemplateHook
	nowFunc  func() time.Time

	sessionMu    sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// Option configures the facade.
type Option func(*AutoModel)

// WithStore attaches usage persistence.
func WithStore(s store.Store) Option {
	return func(a *AutoModel) { a.store = s }
}

// WithMetrics attaches the Prometheus registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(a *AutoModel) { a.metrics = m }
}

// WithBus attaches the event bus.
func WithBus(b *events.Bus) Option {
	return func(a *AutoModel) { a.bus = b }
}

// WithLogger sets the facade logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *AutoModel) { a.log = l }
}

// WithTemplateHook installs the pre-routing content rewrite hook.
func WithTemplateHook(h TemplateHook) Option {
	return func(a *AutoModel) { a.template = h }
}

// WithKeyVault enables user-supplied provider credentials.
func WithKeyVault(v KeyVault) Option {
	return func(a *AutoModel) { a.vault = v }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(a *AutoModel) { a.nowFunc = f }
}

// New wires the facade over its subsystems.
func New(reg *registry.Registry, rt *router.Router, gate *costgate.Gate,
	led *ledger.Ledger, c *cache.Cache, sess *session.Manager, opts ...Option) *AutoModel {
	a := &AutoModel{
		registry:     reg,
		router:       rt,
		gate:         gate,
		ledger:       led,
		cache:        c,
		sessions:     sess,
		log:          slog.Default(),
		nowFunc:      time.Now,
		sessionLocks: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Process runs one request through the full pipeline. Calls sharing a
// session id are serialized so each turn sees the previous one's history.
func (a *AutoModel) Process(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	defer a.lockSession(req.SessionID)()
	return a.process(ctx, req, false)
}

// lockSession serializes calls on one session id and returns the unlock.
// Requests without a session share nothing and proceed unlocked.
func (a *AutoModel) lockSession(sessionID string) func() {
	if sessionID == "" {
		return func() {}
	}
	a.sessionMu.Lock()
	l, ok := a.sessionLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		a.sessionLocks[sessionID] = l
	}
	a.sessionMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (a *AutoModel) process(ctx context.Context, req ProcessRequest, unpinnedRetry bool) (*ProcessResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx = providers.WithRequestID(ctx, req.RequestID)

	if err := a.validate(&req); err != nil {
		a.refused(string(providers.KindValidation))
		return nil, err
	}

	deadline := req.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	security, err := costgate.ResolveSecurity(req.Tier, req.UseUserKeys)
	if err != nil {
		a.refused(string(providers.KindTierForbidden))
		return nil, err
	}

	if req.TemplateID != "" && a.template != nil {
		rewritten, err := a.template(req.TemplateID, req.Text)
		if err != nil {
			return nil, providers.E(providers.KindValidation,
				"template %s: %s", req.TemplateID, err.Error())
		}
		req.Text = rewritten
	}

	var history []providers.Message
	if req.SessionID != "" {
		history, err = a.sessions.History(ctx, req.SessionID)
		if err != nil {
			return nil, providers.E(providers.KindValidation,
				"session %s not found", req.SessionID)
		}
	}

	driverReq := providers.Request{
		Task:             req.Task,
		Text:             req.Text,
		Messages:         req.Messages,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		CandidateLabels:  req.CandidateLabels,
		SessionMessages:  history,
	}

	// Conversations are not cacheable; identical turns in different
	// sessions mean different things. The key carries the pinned provider
	// and model, not the routing outcome, so identical requests hit the
	// same entry no matter how the candidate ranking has drifted.
	cacheable := !req.NoCache && req.SessionID == "" && req.Task != task.Chat
	cacheKey := ""
	if cacheable {
		cacheKey = cache.Fingerprint(req.Task, driverReq, req.PinProvider, req.PinModel, req.TemplateID)
		if cached, src := a.cache.Get(ctx, cacheKey); src != cache.SourceNone {
			a.cacheLookup(src)
			a.publish(events.Event{
				Type:      events.EventCacheHit,
				RequestID: req.RequestID,
				TaskKind:  string(req.Task),
				ModelID:   cached.ModelID,
			})
			return a.fromCached(req, cached), nil
		}
		a.cacheLookup(cache.SourceNone)
	}

	candidates, err := a.router.Route(req.Task, req.Priority, req.Tier, router.Constraints{
		PreferredProviders: req.PreferredProviders,
		ExcludedProviders:  req.ExcludedProviders,
		PinProvider:        req.PinProvider,
		PinModel:           req.PinModel,
		MinContextLength:   req.MinContextLength,
		MaxCostPer1K:       req.MaxCostPer1K,
		EstimatedTokens:    req.EstimatedTokens,
	})
	if err != nil {
		// A pinned model that cannot be resolved gets the same single
		// unpinned pass as one that fails at execution.
		if req.pinned() && !unpinnedRetry && providers.Retryable(providers.KindOf(err)) {
			retry := req
			retry.PinModel = ""
			retry.PinProvider = ""
			a.log.Info("pinned candidate did not resolve, retrying unpinned",
				"request_id", req.RequestID,
				"pin_model", req.PinModel, "pin_provider", req.PinProvider)
			return a.process(ctx, retry, true)
		}
		return nil, err
	}

	if security == costgate.SecurityUser {
		candidates, err = a.userKeyCandidates(req, candidates)
		if err != nil {
			a.refused(string(providers.KindAuthenticationFailed))
			return nil, err
		}
		userID := req.UserID
		ctx = providers.WithKeyLookup(ctx, func(providerID string) string {
			key, err := a.vault.UserKey(userID, providerID)
			if err != nil {
				return ""
			}
			return key
		})
	}
	best := candidates[0]

	if err := a.gate.Admit(req.UserID, req.Tier, best.Estimate); err != nil {
		a.refused(string(providers.KindCostLimitExceeded))
		a.publish(events.Event{
			Type:      events.EventCostRefusal,
			RequestID: req.RequestID,
			TaskKind:  string(req.Task),
			ModelID:   best.Model.ID,
			ErrorKind: string(providers.KindOf(err)),
		})
		return nil, err
	}

	start := a.nowFunc()
	resp, winner, err := a.router.Execute(ctx, candidates, driverReq)
	latency := a.nowFunc().Sub(start)

	if err != nil {
		// A pinned candidate that failed retryably gets one pass through
		// the open field before the caller sees the failure.
		if req.pinned() && !unpinnedRetry && providers.Retryable(providers.KindOf(err)) {
			retry := req
			retry.PinModel = ""
			retry.PinProvider = ""
			a.log.Info("pinned candidate failed, retrying unpinned",
				"request_id", req.RequestID,
				"pin_model", req.PinModel, "pin_provider", req.PinProvider)
			return a.process(ctx, retry, true)
		}
		a.recordFailure(ctx, req, winner, latency, err)
		return nil, err
	}

	actualCost := costgate.EstimateCost(winner.Model, int64(resp.TokensUsed)).TotalCost
	a.gate.RecordSpend(req.UserID, actualCost, int64(resp.TokensUsed))
	resp.Provider = winner.Model.Provider

	out := &ProcessResponse{
		RequestID:      req.RequestID,
		Content:        resp.Content,
		Vectors:        resp.Vectors,
		ModelID:        winner.Model.ID,
		ProviderID:     winner.Model.Provider,
		TokensUsed:     resp.TokensUsed,
		CostUSD:        actualCost,
		LatencyMs:      latency.Milliseconds(),
		Reasoning:      winner.Reasoning,
		FallbackModels: fallbackIDs(candidates, winner.Model.ID),
		FinishReason:   resp.FinishReason,
		SecurityLevel:  string(security),
		Metadata:       resp.Metadata,
	}

	if cacheable {
		a.cache.Set(ctx, cacheKey, resp)
	}
	if req.SessionID != "" {
		if err := a.sessions.AppendTurn(ctx, req.SessionID, providers.PlainText(driverReq), resp.Content); err != nil {
			a.log.Warn("session update failed", "session_id", req.SessionID, "error", err)
		}
	}
	a.persistOutcome(ctx, req, out, true, "")
	a.observe(req, out.ModelID, out.ProviderID, "success", latency, actualCost, resp.TokensUsed)
	return out, nil
}

// ProcessWithFallback is Process with pinning stripped, for callers that
// want the open routing decision explicitly.
func (a *AutoModel) ProcessWithFallback(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	req.PinModel = ""
	req.PinProvider = ""
	defer a.lockSession(req.SessionID)()
	return a.process(ctx, req, true)
}

// ProcessWithModels runs the same request against several named models in
// parallel and returns results in caller order, one per model. Individual
// failures do not cancel the other branches. With firstSuccess set, the
// first branch to succeed cancels the rest, and an all-failed fan-out
// returns a composite error carrying every branch's failure.
func (a *AutoModel) ProcessWithModels(ctx context.Context, req ProcessRequest, modelIDs []string, firstSuccess bool) ([]ModelResult, error) {
	if len(modelIDs) == 0 {
		return nil, providers.E(providers.KindValidation, "no models named")
	}
	results := make([]ModelResult, len(modelIDs))
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(fanCtx)
	for i, id := range modelIDs {
		g.Go(func() error {
			branch := req
			branch.RequestID = ""
			branch.PinModel = id
			branch.PinProvider = ""
			defer a.lockSession(branch.SessionID)()
			resp, err := a.process(gctx, branch, true)
			if err != nil {
				results[i] = ModelResult{ModelID: id, Error: err.Error(), ErrorKind: string(providers.KindOf(err))}
				return nil
			}
			results[i] = ModelResult{ModelID: id, Response: resp}
			if firstSuccess {
				cancel()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if firstSuccess {
		for _, r := range results {
			if r.Response != nil {
				return results, nil
			}
		}
		attempts := make([]router.AttemptError, len(results))
		for i, r := range results {
			attempts[i] = router.AttemptError{
				ModelID: r.ModelID,
				Kind:    providers.ErrKind(r.ErrorKind),
				Message: r.Error,
			}
		}
		return results, &router.ExhaustedError{Attempts: attempts}
	}
	return results, nil
}

// ProcessMedia analyzes binary media with a vision-capable model. The bytes
// ride along hex encoded; drivers that take image URLs or base64 transcode
// from the canonical form.
func (a *AutoModel) ProcessMedia(ctx context.Context, req ProcessRequest, media []byte, mimeType string) (*ProcessResponse, error) {
	if len(media) == 0 {
		return nil, providers.E(providers.KindValidation, "no media payload")
	}
	req.Task = task.MediaAnalysis
	req.Priority = task.PriorityHigh
	if req.Text == "" {
		req.Text = "Describe and analyze this media."
	}
	req.Text = fmt.Sprintf("%s\n\n[media mime=%s hex=%s]", req.Text, mimeType, hex.EncodeToString(media))

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if err := a.validate(&req); err != nil {
		return nil, err
	}
	candidates, err := a.router.Route(req.Task, req.Priority, req.Tier, router.Constraints{
		PreferredProviders: req.PreferredProviders,
		ExcludedProviders:  req.ExcludedProviders,
		PinModel:           req.PinModel,
		RequireVision:      true,
		EstimatedTokens:    req.EstimatedTokens,
	})
	if err != nil {
		return nil, err
	}
	req.PinModel = candidates[0].Model.ID
	req.NoCache = true
	defer a.lockSession(req.SessionID)()
	return a.process(ctx, req, false)
}

// CreateSession opens a conversation and returns its id.
func (a *AutoModel) CreateSession(ctx context.Context, userID string, metadata map[string]string) string {
	return a.sessions.Create(ctx, userID, metadata).ID
}

// GetSessionContext returns the session's replayable state.
func (a *AutoModel) GetSessionContext(ctx context.Context, sessionID string) (*session.Session, error) {
	return a.sessions.Get(ctx, sessionID)
}

// DeleteSession removes the conversation synchronously.
func (a *AutoModel) DeleteSession(ctx context.Context, sessionID string) {
	a.sessions.Delete(ctx, sessionID)
	a.sessionMu.Lock()
	delete(a.sessionLocks, sessionID)
	a.sessionMu.Unlock()
}

// SetTaskModelPreferences overrides the provider fallback order for a task.
func (a *AutoModel) SetTaskModelPreferences(kind task.Kind, providerOrder []string) {
	a.router.SetPreferences(kind, providerOrder)
}

// ListModels returns the live catalog in registration order.
func (a *AutoModel) ListModels() []providers.Model {
	return a.registry.Models()
}

// PerformanceReport is the observable state of the arbitration loop.
type PerformanceReport struct {
	Models []ledger.Record `json:"models"`
	Cache  cache.Stats     `json:"cache"`
}

// GetPerformanceMetrics returns per-model ledger records and cache counters.
func (a *AutoModel) GetPerformanceMetrics() PerformanceReport {
	return PerformanceReport{
		Models: a.ledger.All(),
		Cache:  a.cache.Stats(),
	}
}

func (a *AutoModel) validate(req *ProcessRequest) error {
	if !req.Task.Valid() {
		return providers.E(providers.KindValidation, "unknown task kind %q", req.Task)
	}
	if req.Text == "" && len(req.Messages) == 0 {
		return providers.E(providers.KindValidation, "request needs text or messages")
	}
	if req.Text != "" && len(req.Messages) > 0 {
		return providers.E(providers.KindValidation, "text and messages are mutually exclusive")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > maxTemperature) {
		return providers.E(providers.KindValidation,
			"temperature %.2f outside [0, %.1f]", *req.Temperature, maxTemperature)
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return providers.E(providers.KindValidation, "top_p %.2f outside [0, 1]", *req.TopP)
	}
	if req.MaxTokens < 0 {
		return providers.E(providers.KindValidation, "max_tokens must be non-negative")
	}
	if req.Priority == "" {
		req.Priority = task.PriorityMedium
	}
	if req.Tier == "" {
		req.Tier = task.TierFree
	}
	if req.EstimatedTokens <= 0 {
		req.EstimatedTokens = estimateTokens(req)
	}
	return nil
}

// estimateTokens is the rough chars/4 heuristic plus the completion budget.
func estimateTokens(req *ProcessRequest) int64 {
	chars := len(req.Text)
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	est := int64(chars)/4 + int64(req.MaxTokens)
	if est <= 0 {
		est = 500
	}
	return est
}

func (a *AutoModel) fromCached(req ProcessRequest, resp *providers.Response) *ProcessResponse {
	return &ProcessResponse{
		RequestID:    req.RequestID,
		Content:      resp.Content,
		Vectors:      resp.Vectors,
		ModelID:      resp.ModelID,
		ProviderID:   resp.Provider,
		TokensUsed:   resp.TokensUsed,
		FinishReason: resp.FinishReason,
		Metadata:     resp.Metadata,
		Cached:       true,
	}
}

// userKeyCandidates narrows the chain to providers the user has a stored
// credential for.
func (a *AutoModel) userKeyCandidates(req ProcessRequest, candidates []router.Candidate) ([]router.Candidate, error) {
	if a.vault == nil {
		return nil, providers.E(providers.KindAuthenticationFailed,
			"user-supplied keys are not enabled on this deployment")
	}
	var out []router.Candidate
	for _, c := range candidates {
		if a.vault.HasUserKey(req.UserID, c.Model.Provider) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, providers.E(providers.KindAuthenticationFailed,
			"no stored credential for any candidate provider")
	}
	return out, nil
}

func fallbackIDs(candidates []router.Candidate, winnerID string) []string {
	var out []string
	for _, c := range candidates {
		if c.Model.ID != winnerID {
			out = append(out, c.Model.ID)
		}
	}
	return out
}

func (a *AutoModel) recordFailure(ctx context.Context, req ProcessRequest, winner router.Candidate, latency time.Duration, err error) {
	kind := string(providers.KindOf(err))
	modelID := winner.Model.ID
	providerID := winner.Model.Provider
	a.persistOutcome(ctx, req, &ProcessResponse{
		RequestID: req.RequestID, ModelID: modelID, ProviderID: providerID,
		LatencyMs: latency.Milliseconds(),
	}, false, kind)
	a.observe(req, modelID, providerID, kind, latency, 0, 0)
}

func (a *AutoModel) persistOutcome(ctx context.Context, req ProcessRequest, resp *ProcessResponse, success bool, errKind string) {
	if a.store == nil {
		return
	}
	entry := store.UsageLog{
		Timestamp:  a.nowFunc().UTC(),
		RequestID:  resp.RequestID,
		UserID:     req.UserID,
		TaskKind:   string(req.Task),
		ModelID:    resp.ModelID,
		ProviderID: resp.ProviderID,
		Tier:       string(req.Tier),
		TokensUsed: resp.TokensUsed,
		CostUSD:    resp.CostUSD,
		LatencyMs:  resp.LatencyMs,
		Success:    success,
		ErrorKind:  errKind,
		Cached:     resp.Cached,
	}
	if err := a.store.LogUsage(ctx, entry); err != nil {
		a.log.Warn("usage log write failed", "error", err)
	}
	if resp.ModelID != "" {
		rec := a.ledger.Snapshot(resp.ModelID)
		perf := store.TaskPerformance{
			ModelID:            rec.ModelID,
			TaskKind:           string(req.Task),
			TotalRequests:      rec.TotalRequests,
			SuccessfulRequests: rec.SuccessfulRequests,
			FailedRequests:     rec.FailedRequests,
			AvgResponseTime:    rec.AvgResponseTime,
			ErrorRate:          rec.ErrorRate,
			LastUsed:           rec.LastUsed,
		}
		if err := a.store.UpsertTaskPerformance(ctx, perf); err != nil {
			a.log.Warn("task performance write failed", "error", err)
		}
	}
}

func (a *AutoModel) observe(req ProcessRequest, modelID, providerID, status string, latency time.Duration, cost float64, tokens int) {
	if a.metrics == nil {
		return
	}
	a.metrics.RequestsTotal.WithLabelValues(string(req.Task), modelID, providerID, status).Inc()
	a.metrics.RequestLatency.WithLabelValues(string(req.Task), modelID, providerID).
		Observe(float64(latency.Milliseconds()))
	if cost > 0 {
		a.metrics.CostUSD.WithLabelValues(modelID, providerID).Add(cost)
	}
	if tokens > 0 {
		a.metrics.TokensTotal.WithLabelValues(modelID, providerID).Add(float64(tokens))
	}
}

func (a *AutoModel) cacheLookup(src cache.Source) {
	if a.metrics == nil {
		return
	}
	switch src {
	case cache.SourceLocal:
		a.metrics.CacheLookups.WithLabelValues("local_hit").Inc()
	case cache.SourceRemote:
		a.metrics.CacheLookups.WithLabelValues("remote_hit").Inc()
	default:
		a.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (a *AutoModel) refused(reason string) {
	if a.metrics != nil {
		a.metrics.Refusals.WithLabelValues(reason).Inc()
	}
}

func (a *AutoModel) publish(e events.Event) {
	if a.bus != nil {
		a.bus.Publish(e)
	}
}
