package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Identity       IdentityConfig       `yaml:"identity"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Parser         ParserConfig         `yaml:"parser"`
	Resolver       ResolverConfig       `yaml:"resolver"`
	Disambiguation DisambiguationConfig `yaml:"disambiguation"`
	Actions        ActionsConfig        `yaml:"actions"`
	Executor       ExecutorConfig       `yaml:"executor"`
	Audit          AuditConfig          `yaml:"audit"`
	Events         EventsConfig         `yaml:"events"`
	Routing        RoutingConfig        `yaml:"routing"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	GRPCHealthPort   int           `yaml:"grpc_health_port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable&pool_max_conns=" + strconv.Itoa(d.MaxOpenConns),
	}
	return u.String()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	MetricsPort     int     `yaml:"metrics_port"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// IdentityConfig selects the identity provider once, at construction.
type IdentityConfig struct {
	Mode         string `yaml:"mode"` // "keystore" or "static"
	StaticTenant string `yaml:"static_tenant"`
	StaticUser   string `yaml:"static_user"`
}

type RateLimitConfig struct {
	Window              time.Duration `yaml:"window"`
	Limit               int64         `yaml:"limit"`
	TenantDailyLLMCalls int64         `yaml:"tenant_daily_llm_calls"`
}

type ParserConfig struct {
	// Providers are tried in order; entries name keys of providers.yaml.
	Providers        []string      `yaml:"providers"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	ConfidenceFloor  float64       `yaml:"confidence_floor"`
	HeuristicCeiling float64       `yaml:"heuristic_ceiling"`
	MaxTokens        int           `yaml:"max_tokens"`
}

type ResolverConfig struct {
	TopK           int           `yaml:"top_k"`
	Timeout        time.Duration `yaml:"timeout"`
	EmbedProvider  string        `yaml:"embed_provider"`
	EmbedModel     string        `yaml:"embed_model"`
	EmbedCacheTTL  time.Duration `yaml:"embed_cache_ttl"`
	RecencyWindow  time.Duration `yaml:"recency_window"`
	Boosts         BoostConfig   `yaml:"boosts"`
	MinSimilarity  float64       `yaml:"min_similarity"`
	MaxDescriptors int           `yaml:"max_descriptors"`
}

type BoostConfig struct {
	Mention    float64 `yaml:"mention"`
	Assignment float64 `yaml:"assignment"`
	Linkage    float64 `yaml:"linkage"`
	Recency    float64 `yaml:"recency"`
	// State is added to items in the state an action requires (the active
	// sprint for close_sprint) when nothing was named directly.
	State float64 `yaml:"state"`
}

type DisambiguationConfig struct {
	MinConfidence         float64 `yaml:"min_confidence"`
	MinMargin             float64 `yaml:"min_margin"`
	FallbackMinConfidence float64 `yaml:"fallback_min_confidence"`
	FallbackMinMargin     float64 `yaml:"fallback_min_margin"`
}

type ActionsConfig struct {
	ConfirmMedium bool          `yaml:"confirm_medium"`
	AutoExecute   bool          `yaml:"auto_execute"`
	DraftTTL      time.Duration `yaml:"draft_ttl"`
	Policy        PolicyConfig  `yaml:"policy"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type ExecutorConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxRPS         float64       `yaml:"max_rps"`
}

type AuditConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type EventsConfig struct {
	RedisRelay       bool `yaml:"redis_relay"`
	SubscriberBuffer int  `yaml:"subscriber_buffer"`
}

type RoutingConfig struct {
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker"`
	HealthCheckInterval time.Duration        `yaml:"health_check_interval"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			GRPCHealthPort:   8081,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "intentd",
			User:            "intentd",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "json",
			MetricsPort:     9090,
			TraceSampleRate: 0.1,
		},
		Identity: IdentityConfig{
			Mode: "keystore",
		},
		RateLimit: RateLimitConfig{
			Window:              time.Minute,
			Limit:               30,
			TenantDailyLLMCalls: 5000,
		},
		Parser: ParserConfig{
			Providers:        []string{"openai"},
			Model:            "gpt-4o-mini",
			Timeout:          2 * time.Second,
			ConfidenceFloor:  0.6,
			HeuristicCeiling: 0.55,
			MaxTokens:        512,
		},
		Resolver: ResolverConfig{
			TopK:          5,
			Timeout:       1500 * time.Millisecond,
			EmbedProvider: "ollama",
			EmbedModel:    "nomic-embed-text",
			EmbedCacheTTL: 24 * time.Hour,
			RecencyWindow: 72 * time.Hour,
			Boosts: BoostConfig{
				Mention:    0.25,
				Assignment: 0.15,
				Linkage:    0.08,
				Recency:    0.05,
				State:      0.5,
			},
			MinSimilarity:  0.2,
			MaxDescriptors: 4,
		},
		Disambiguation: DisambiguationConfig{
			MinConfidence:         0.80,
			MinMargin:             0.15,
			FallbackMinConfidence: 0.85,
			FallbackMinMargin:     0.25,
		},
		Actions: ActionsConfig{
			ConfirmMedium: false,
			AutoExecute:   true,
			DraftTTL:      15 * time.Minute,
			Policy: PolicyConfig{
				Enabled:           false,
				BundlePath:        "/etc/intentd/policies",
				EvaluationTimeout: 100 * time.Millisecond,
			},
		},
		Executor: ExecutorConfig{
			BaseURL:        "http://workitems:8080",
			Timeout:        5 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			MaxRPS:         20,
		},
		Audit: AuditConfig{
			BufferSize:   1024,
			WriteTimeout: 2 * time.Second,
		},
		Events: EventsConfig{
			SubscriberBuffer: 32,
		},
		Routing: RoutingConfig{
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
			HealthCheckInterval: 10 * time.Second,
		},
	}
}

// Validate checks cross-field constraints that YAML types cannot express.
func (c *Config) Validate() error {
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be positive, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Parser.Timeout <= 0 {
		return fmt.Errorf("parser.timeout must be positive, got %s", c.Parser.Timeout)
	}
	// A heuristic result must never outrank an accepted language-model result.
	if c.Parser.HeuristicCeiling > c.Parser.ConfidenceFloor {
		return fmt.Errorf("parser.heuristic_ceiling (%.2f) must not exceed parser.confidence_floor (%.2f)",
			c.Parser.HeuristicCeiling, c.Parser.ConfidenceFloor)
	}
	if c.Resolver.TopK <= 0 {
		return fmt.Errorf("resolver.top_k must be positive, got %d", c.Resolver.TopK)
	}
	d := c.Disambiguation
	for name, v := range map[string]float64{
		"min_confidence":          d.MinConfidence,
		"min_margin":              d.MinMargin,
		"fallback_min_confidence": d.FallbackMinConfidence,
		"fallback_min_margin":     d.FallbackMinMargin,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("disambiguation.%s must be in [0,1], got %.2f", name, v)
		}
	}
	switch c.Identity.Mode {
	case "keystore":
	case "static":
		if c.Identity.StaticTenant == "" || c.Identity.StaticUser == "" {
			return fmt.Errorf("identity.mode static requires static_tenant and static_user")
		}
	default:
		return fmt.Errorf("identity.mode must be keystore or static, got %q", c.Identity.Mode)
	}
	return nil
}
