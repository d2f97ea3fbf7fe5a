// Package app wires the gateway together: config, storage, vault, cache,
// providers, routing, and the HTTP surface.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatchonk/automodel/internal/cache"
	"github.com/chatchonk/automodel/internal/costgate"
	"github.com/chatchonk/automodel/internal/events"
	"github.com/chatchonk/automodel/internal/facade"
	"github.com/chatchonk/automodel/internal/httpapi"
	"github.com/chatchonk/automodel/internal/idempotency"
	"github.com/chatchonk/automodel/internal/keyvault"
	"github.com/chatchonk/automodel/internal/ledger"
	"github.com/chatchonk/automodel/internal/logging"
	"github.com/chatchonk/automodel/internal/metrics"
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/providers/anthropic"
	"github.com/chatchonk/automodel/internal/providers/deepseek"
	"github.com/chatchonk/automodel/internal/providers/huggingface"
	"github.com/chatchonk/automodel/internal/providers/mistral"
	"github.com/chatchonk/automodel/internal/providers/openai"
	"github.com/chatchonk/automodel/internal/providers/openrouter"
	"github.com/chatchonk/automodel/internal/providers/qwen"
	"github.com/chatchonk/automodel/internal/ratelimit"
	"github.com/chatchonk/automodel/internal/registry"
	"github.com/chatchonk/automodel/internal/router"
	"github.com/chatchonk/automodel/internal/session"
	"github.com/chatchonk/automodel/internal/store"
	"github.com/chatchonk/automodel/internal/tracing"
)

type Server struct {
	cfg Config

	r   *chi.Mux
	log *slog.Logger

	store    store.Store
	vault    *keyvault.Vault
	registry *registry.Registry
	cache    *cache.Cache
	sessions *session.Manager
	gateway  *facade.AutoModel
	limiter  *ratelimit.Limiter
	idem     *idempotency.Cache
	redis    *cache.RedisKV

	stopBridge    func()
	traceShutdown func(context.Context) error
}

func NewServer(cfg Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	traceShutdown, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "automodel",
	})
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLite(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database initialized", slog.String("dsn", cfg.DBDSN))

	bus := events.NewBus()
	m := metrics.New()
	stopBridge := startMetricsBridge(bus, m)

	kv, err := openVault(cfg, db, logger)
	if err != nil {
		stopBridge()
		db.Close()
		return nil, err
	}

	var rkv *cache.RedisKV
	if cfg.RedisAddr != "" {
		rkv = cache.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rkv.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, remote tier will run degraded",
				slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		}
		cancel()
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithTTL(time.Duration(cfg.CacheTTLSecs) * time.Second),
	}
	sessOpts := []session.Option{session.WithLogger(logger)}
	if rkv != nil {
		cacheOpts = append(cacheOpts, cache.WithRemote(rkv))
		sessOpts = append(sessOpts, session.WithRemote(rkv))
	}
	c := cache.New(cacheOpts...)
	c.Start()
	sessions := session.NewManager(sessOpts...)

	reg := registry.New(buildDrivers(cfg, logger),
		registry.WithBus(bus), registry.WithLogger(logger),
		registry.WithHealthInterval(time.Duration(cfg.HealthCheckIntervalSecs)*time.Second))
	if err := reg.Initialize(context.Background()); err != nil {
		stopBridge()
		c.Close()
		db.Close()
		return nil, err
	}
	reg.Start()

	led := ledger.New(ledger.WithMaxEvents(cfg.MaxPerformanceEvents))
	rt := router.New(reg, led, router.WithBus(bus), router.WithLogger(logger))
	if cfg.DefaultProvider != "" {
		rt.SetDefaultProvider(cfg.DefaultProvider)
	}
	gate := costgate.New(costgate.WithEmergencyCeilings(
		cfg.EmergencyCostCeiling, int64(cfg.EmergencyHourlyRequests)))

	gwOpts := []facade.Option{
		facade.WithStore(db),
		facade.WithMetrics(m),
		facade.WithBus(bus),
		facade.WithLogger(logger),
	}
	if kv != nil {
		gwOpts = append(gwOpts, facade.WithKeyVault(kv))
	}
	gw := facade.New(reg, rt, gate, led, c, sessions, gwOpts...)

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Minute)

	idem := idempotency.New()
	idem.Start()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware())
	r.Use(limiter.Middleware)
	r.Use(idempotency.Middleware(idem))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{
		cfg:           cfg,
		r:             r,
		log:           logger,
		store:         db,
		vault:         kv,
		registry:      reg,
		cache:         c,
		sessions:      sessions,
		gateway:       gw,
		limiter:       limiter,
		idem:          idem,
		redis:         rkv,
		stopBridge:    stopBridge,
		traceShutdown: traceShutdown,
	}

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Gateway:  gw,
		Registry: reg,
		Metrics:  m,
		Store:    db,
		EventBus: bus,
		KeyVault: kv,
	})

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

// Reload applies the settings that can change without a restart. Listener,
// storage, and provider changes still need a full restart.
func (s *Server) Reload(cfg Config) {
	if cfg.LogLevel != s.cfg.LogLevel {
		logging.SetLevel(cfg.LogLevel)
		s.log.Info("log level changed", slog.String("level", cfg.LogLevel))
	}
	s.cfg = cfg
}

// Close shuts the subsystems down in reverse dependency order. The vault
// contents are persisted before the store closes.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.idem != nil {
		s.idem.Stop()
	}
	if s.registry != nil {
		if err := s.registry.Close(ctx); err != nil {
			s.log.Warn("provider shutdown", slog.Any("error", err))
		}
	}
	if s.stopBridge != nil {
		s.stopBridge()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.vault != nil && !s.vault.Locked() {
		if err := s.store.SaveVaultBlob(ctx, s.vault.Salt(), s.vault.Export()); err != nil {
			s.log.Warn("vault persist failed", slog.Any("error", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn("redis close", slog.Any("error", err))
		}
	}
	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.log.Warn("tracing shutdown", slog.Any("error", err))
		}
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// openVault restores the encrypted user-key vault from the store. A missing
// passphrase disables the vault; the /v1/keys routes are then not mounted.
func openVault(cfg Config, db store.Store, logger *slog.Logger) (*keyvault.Vault, error) {
	if cfg.VaultPassphrase == "" {
		logger.Info("key vault disabled, no passphrase configured")
		return nil, nil
	}

	salt, data, err := db.LoadVaultBlob(context.Background())
	if err != nil {
		return nil, err
	}

	var kv *keyvault.Vault
	if salt != nil {
		kv, err = keyvault.NewWithSalt(salt)
	} else {
		kv, err = keyvault.New()
	}
	if err != nil {
		return nil, err
	}
	if err := kv.Unlock([]byte(cfg.VaultPassphrase)); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := kv.Import(data); err != nil {
			return nil, err
		}
	}
	logger.Info("key vault unlocked", slog.Int("credentials", len(data)))
	return kv, nil
}

// buildDrivers registers an adapter for every provider that has a key.
func buildDrivers(cfg Config, logger *slog.Logger) []providers.Driver {
	timeout := time.Duration(cfg.ProviderTimeoutSecs) * time.Second
	conns := cfg.OutboundPerProvider

	var drivers []providers.Driver
	add := func(id string, d providers.Driver) {
		drivers = append(drivers, d)
		logger.Info("registered provider", slog.String("provider", id))
	}

	if cfg.OpenAIKey != "" {
		opts := []providers.CoreOption{providers.WithTimeout(timeout), providers.WithMaxConns(conns)}
		if cfg.OpenAIOrg != "" {
			opts = append(opts, providers.WithHeader("OpenAI-Organization", cfg.OpenAIOrg))
		}
		add(providers.OpenAI, openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, opts...))
	}
	if cfg.AnthropicKey != "" {
		add(providers.Anthropic, anthropic.New(cfg.AnthropicKey, cfg.AnthropicBaseURL,
			anthropic.WithTimeout(timeout), anthropic.WithMaxConns(conns)))
	}
	if cfg.HuggingFaceKey != "" {
		add(providers.HuggingFace, huggingface.New(cfg.HuggingFaceKey, cfg.HuggingFaceBaseURL,
			huggingface.WithTimeout(timeout), huggingface.WithMaxConns(conns)))
	}
	if cfg.MistralKey != "" {
		add(providers.Mistral, mistral.New(cfg.MistralKey, cfg.MistralBaseURL,
			providers.WithTimeout(timeout), providers.WithMaxConns(conns)))
	}
	if cfg.DeepSeekKey != "" {
		add(providers.DeepSeek, deepseek.New(cfg.DeepSeekKey, cfg.DeepSeekBaseURL,
			providers.WithTimeout(timeout), providers.WithMaxConns(conns)))
	}
	if cfg.QwenKey != "" {
		add(providers.Qwen, qwen.New(cfg.QwenKey, cfg.QwenBaseURL,
			qwen.WithTimeout(timeout), qwen.WithMaxConns(conns)))
	}
	if cfg.OpenRouterKey != "" {
		add(providers.OpenRouter, openrouter.New(cfg.OpenRouterKey, cfg.OpenRouterBaseURL,
			cfg.OpenRouterReferer, cfg.OpenRouterTitle,
			providers.WithTimeout(timeout), providers.WithMaxConns(conns)))
	}
	return drivers
}
