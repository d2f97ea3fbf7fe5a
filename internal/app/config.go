package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable the gateway reads from the environment.
type Config struct {
	ListenAddr string
	LogLevel   string

	DBDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// VaultPassphrase unlocks the encrypted user-key vault. Empty disables
	// the /v1/keys endpoints entirely.
	VaultPassphrase string

	CORSOrigins    []string // allowed CORS origins; empty = ["*"]
	RateLimitRPS   int      // requests per second per IP
	RateLimitBurst int      // burst capacity per IP

	ProviderTimeoutSecs int

	// OutboundPerProvider caps concurrent connections to any single vendor.
	OutboundPerProvider int

	// DefaultProvider leads every task's fallback chain when set.
	DefaultProvider string

	CacheTTLSecs            int
	HealthCheckIntervalSecs int
	EmergencyCostCeiling    float64
	EmergencyHourlyRequests int
	MaxPerformanceEvents    int

	OTelEnabled  bool
	OTelEndpoint string

	// Provider credentials. A provider with no key is not registered.
	OpenAIKey      string
	OpenAIOrg      string
	AnthropicKey   string
	HuggingFaceKey string
	MistralKey     string
	DeepSeekKey    string
	QwenKey        string
	OpenRouterKey  string

	// Per-provider base URL overrides; empty selects the public endpoint.
	OpenAIBaseURL      string
	AnthropicBaseURL   string
	HuggingFaceBaseURL string
	MistralBaseURL     string
	DeepSeekBaseURL    string
	QwenBaseURL        string
	OpenRouterBaseURL  string

	OpenRouterReferer string
	OpenRouterTitle   string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("AUTOMODEL_LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("AUTOMODEL_LOG_LEVEL", "info"),
		DBDSN:      getEnv("AUTOMODEL_DB_DSN", "file:automodel.sqlite"),

		RedisAddr:     getEnv("AUTOMODEL_REDIS_ADDR", ""),
		RedisPassword: getEnv("AUTOMODEL_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("AUTOMODEL_REDIS_DB", 0),

		VaultPassphrase: getEnv("AUTOMODEL_VAULT_PASSPHRASE", ""),

		CORSOrigins:    getEnvStringSlice("AUTOMODEL_CORS_ORIGINS", nil),
		RateLimitRPS:   getEnvInt("AUTOMODEL_RATE_LIMIT_RPS", 60),
		RateLimitBurst: getEnvInt("AUTOMODEL_RATE_LIMIT_BURST", 120),

		ProviderTimeoutSecs: getEnvInt("AUTOMODEL_PROVIDER_TIMEOUT_SECS", 30),
		OutboundPerProvider: getEnvInt("AUTOMODEL_OUTBOUND_PER_PROVIDER", 32),

		DefaultProvider: getEnv("AUTOMODEL_DEFAULT_PROVIDER", ""),

		CacheTTLSecs:            getEnvInt("AUTOMODEL_CACHE_TTL_SECONDS", 3600),
		HealthCheckIntervalSecs: getEnvInt("AUTOMODEL_HEALTH_CHECK_INTERVAL_SECONDS", 300),
		EmergencyCostCeiling:    getEnvFloat("AUTOMODEL_EMERGENCY_COST_CEILING", 50),
		EmergencyHourlyRequests: getEnvInt("AUTOMODEL_EMERGENCY_HOURLY_REQUESTS", 10000),
		MaxPerformanceEvents:    getEnvInt("AUTOMODEL_MAX_PERFORMANCE_EVENTS", 1000),

		OTelEnabled:  getEnvBool("AUTOMODEL_OTEL_ENABLED", false),
		OTelEndpoint: getEnv("AUTOMODEL_OTEL_ENDPOINT", "localhost:4318"),

		OpenAIKey:      getEnv("AUTOMODEL_OPENAI_API_KEY", ""),
		OpenAIOrg:      getEnv("AUTOMODEL_OPENAI_ORG", ""),
		AnthropicKey:   getEnv("AUTOMODEL_ANTHROPIC_API_KEY", ""),
		HuggingFaceKey: getEnv("AUTOMODEL_HUGGINGFACE_API_KEY", ""),
		MistralKey:     getEnv("AUTOMODEL_MISTRAL_API_KEY", ""),
		DeepSeekKey:    getEnv("AUTOMODEL_DEEPSEEK_API_KEY", ""),
		QwenKey:        getEnv("AUTOMODEL_QWEN_API_KEY", ""),
		OpenRouterKey:  getEnv("AUTOMODEL_OPENROUTER_API_KEY", ""),

		OpenAIBaseURL:      getEnv("AUTOMODEL_OPENAI_BASE_URL", ""),
		AnthropicBaseURL:   getEnv("AUTOMODEL_ANTHROPIC_BASE_URL", ""),
		HuggingFaceBaseURL: getEnv("AUTOMODEL_HUGGINGFACE_BASE_URL", ""),
		MistralBaseURL:     getEnv("AUTOMODEL_MISTRAL_BASE_URL", ""),
		DeepSeekBaseURL:    getEnv("AUTOMODEL_DEEPSEEK_BASE_URL", ""),
		QwenBaseURL:        getEnv("AUTOMODEL_QWEN_BASE_URL", ""),
		OpenRouterBaseURL:  getEnv("AUTOMODEL_OPENROUTER_BASE_URL", ""),

		OpenRouterReferer: getEnv("AUTOMODEL_OPENROUTER_REFERER", ""),
		OpenRouterTitle:   getEnv("AUTOMODEL_OPENROUTER_TITLE", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("AUTOMODEL_RATE_LIMIT_RPS must be > 0, got %d", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("AUTOMODEL_RATE_LIMIT_BURST must be > 0, got %d", c.RateLimitBurst)
	}
	if c.ProviderTimeoutSecs <= 0 {
		return fmt.Errorf("AUTOMODEL_PROVIDER_TIMEOUT_SECS must be > 0, got %d", c.ProviderTimeoutSecs)
	}
	if c.OutboundPerProvider <= 0 {
		return fmt.Errorf("AUTOMODEL_OUTBOUND_PER_PROVIDER must be > 0, got %d", c.OutboundPerProvider)
	}
	if c.CacheTTLSecs <= 0 {
		return fmt.Errorf("AUTOMODEL_CACHE_TTL_SECONDS must be > 0, got %d", c.CacheTTLSecs)
	}
	if c.HealthCheckIntervalSecs <= 0 {
		return fmt.Errorf("AUTOMODEL_HEALTH_CHECK_INTERVAL_SECONDS must be > 0, got %d", c.HealthCheckIntervalSecs)
	}
	if c.EmergencyCostCeiling <= 0 {
		return fmt.Errorf("AUTOMODEL_EMERGENCY_COST_CEILING must be > 0, got %v", c.EmergencyCostCeiling)
	}
	if c.EmergencyHourlyRequests <= 0 {
		return fmt.Errorf("AUTOMODEL_EMERGENCY_HOURLY_REQUESTS must be > 0, got %d", c.EmergencyHourlyRequests)
	}
	if c.MaxPerformanceEvents <= 0 {
		return fmt.Errorf("AUTOMODEL_MAX_PERFORMANCE_EVENTS must be > 0, got %d", c.MaxPerformanceEvents)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("AUTOMODEL_REDIS_DB must be >= 0, got %d", c.RedisDB)
	}
	if p := c.VaultPassphrase; p != "" && len(p) < 8 {
		return fmt.Errorf("AUTOMODEL_VAULT_PASSPHRASE must be at least 8 characters")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
