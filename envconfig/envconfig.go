// Package envconfig builds a runnable provider configuration from
// environment variables. It is the deployment-facing companion of the
// library Config: the library stays environment-agnostic, binaries call
// Load and hand the result to oauthsp.NewServer.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/oauthsp/oauthsp"
	"github.com/oauthsp/oauthsp/instrumentation"
	"github.com/oauthsp/oauthsp/storage"
	"github.com/oauthsp/oauthsp/storage/memory"
	"github.com/oauthsp/oauthsp/storage/valkey"
)

// Settings is the environment-variable surface of a provider deployment.
type Settings struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `env:"OAUTHSP_LISTEN_ADDR" envDefault:":8080"`

	// TokenDuration is the default token lifetime in seconds.
	TokenDuration int64 `env:"OAUTHSP_TOKEN_DURATION" envDefault:"3600"`

	// StorageBackend selects the storage implementation: "memory" or
	// "valkey".
	StorageBackend string `env:"OAUTHSP_STORAGE" envDefault:"memory"`

	// Valkey connection settings, used when StorageBackend is "valkey".
	ValkeyAddress  string `env:"OAUTHSP_VALKEY_ADDR" envDefault:"localhost:6379"`
	ValkeyPassword string `env:"OAUTHSP_VALKEY_PASSWORD"`
	ValkeyDB       int    `env:"OAUTHSP_VALKEY_DB" envDefault:"0"`
	ValkeyPrefix   string `env:"OAUTHSP_VALKEY_PREFIX"`

	// Rate limiting on the token endpoints, per client IP.
	RateLimitEnabled bool `env:"OAUTHSP_RATE_LIMIT_ENABLED" envDefault:"false"`
	RateLimitRPS     int  `env:"OAUTHSP_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst   int  `env:"OAUTHSP_RATE_LIMIT_BURST" envDefault:"20"`

	// Proxy trust for client IP extraction.
	TrustProxy        bool `env:"OAUTHSP_TRUST_PROXY" envDefault:"false"`
	TrustedProxyCount int  `env:"OAUTHSP_TRUSTED_PROXY_COUNT" envDefault:"1"`

	// AuditLogging emits structured security audit events.
	AuditLogging bool `env:"OAUTHSP_AUDIT_LOGGING" envDefault:"true"`

	// Telemetry enables OpenTelemetry metrics and traces.
	Telemetry      bool   `env:"OAUTHSP_TELEMETRY" envDefault:"false"`
	ServiceName    string `env:"OAUTHSP_SERVICE_NAME" envDefault:"oauthsp"`
	ServiceVersion string `env:"OAUTHSP_SERVICE_VERSION" envDefault:"dev"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"OAUTHSP_LOG_LEVEL" envDefault:"info"`
}

// Parse reads Settings from the process environment.
func Parse() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch s.StorageBackend {
	case "memory", "valkey":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", s.StorageBackend)
	}
	return &s, nil
}

// Stores holds the storage implementations built from Settings. Close
// stops whichever backend was selected.
type Stores struct {
	Consumers storage.ConsumerStore
	Tokens    storage.TokenStore
	Nonces    storage.NonceStore

	// Memory is non-nil when the memory backend is selected; deployments
	// seed consumers through it.
	Memory *memory.Store

	closer func()
}

// Close releases the storage backend.
func (s *Stores) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// Logger builds the slog logger the settings describe.
func (s *Settings) Logger() *slog.Logger {
	var level slog.Level
	switch s.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// BuildStores creates the configured storage backend.
func (s *Settings) BuildStores(logger *slog.Logger) (*Stores, error) {
	if s.StorageBackend == "valkey" {
		store, err := valkey.New(valkey.Config{
			Address:   s.ValkeyAddress,
			Password:  s.ValkeyPassword,
			DB:        s.ValkeyDB,
			KeyPrefix: s.ValkeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to valkey: %w", err)
		}
		return &Stores{
			Consumers: store,
			Tokens:    store,
			Nonces:    store,
			closer:    store.Close,
		}, nil
	}

	store := memory.New()
	store.SetLogger(logger)
	return &Stores{
		Consumers: store,
		Tokens:    store,
		Nonces:    store,
		Memory:    store,
		closer:    store.Stop,
	}, nil
}

// BuildConfig assembles the library configuration, creating telemetry when
// enabled.
func (s *Settings) BuildConfig(logger *slog.Logger) (*oauthsp.Config, error) {
	cfg := &oauthsp.Config{
		TokenDuration: s.TokenDuration,
		RateLimit: oauthsp.RateLimitConfig{
			Enabled:           s.RateLimitEnabled,
			RequestsPerSecond: s.RateLimitRPS,
			Burst:             s.RateLimitBurst,
		},
		Security: oauthsp.SecurityConfig{
			TrustProxy:         s.TrustProxy,
			TrustedProxyCount:  s.TrustedProxyCount,
			EnableAuditLogging: s.AuditLogging,
		},
		Logger: logger,
	}

	if s.Telemetry {
		inst, err := instrumentation.New(instrumentation.Config{
			ServiceName:    s.ServiceName,
			ServiceVersion: s.ServiceVersion,
			Enabled:        true,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing instrumentation: %w", err)
		}
		cfg.Instrumentation = inst
	}

	return cfg, nil
}
