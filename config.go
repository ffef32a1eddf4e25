package oauthsp

import (
	"log/slog"

	"github.com/oauthsp/oauthsp/attrs"
	"github.com/oauthsp/oauthsp/instrumentation"
	"github.com/oauthsp/oauthsp/signature"
)

// Default configuration values.
const (
	// DefaultTokenDuration is the lifetime of issued tokens in seconds
	// when neither the consumer nor the authorizing user overrides it.
	DefaultTokenDuration int64 = 3600

	// DefaultRateLimitRequestsPerSecond limits token endpoint traffic per
	// client IP when rate limiting is enabled.
	DefaultRateLimitRequestsPerSecond = 10

	// DefaultRateLimitBurst is the per-IP burst allowance.
	DefaultRateLimitBurst = 20
)

// AttributesCodec is the pluggable token-attribute collaborator. The core
// calls it when issuing and authorizing tokens and treats failures as
// non-fatal: a value that does not validate is simply left unset.
//
// The attrs package provides a Schema implementation over a closed set of
// field casters, and attrs.Empty for deployments without attributes.
type AttributesCodec interface {
	// ValidateAndCast converts raw field values to their typed form,
	// dropping values that fail their cast.
	ValidateAndCast(raw map[string]string) (map[string]any, error)

	// Serialize renders a typed blob to the wire string stored on the
	// token and echoed in oauth_token_attributes.
	Serialize(blob map[string]any) string

	// Deserialize splits a wire string back into raw field values.
	Deserialize(raw string) map[string]string
}

// RateLimitConfig controls per-IP rate limiting on the token endpoints.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool

	// RequestsPerSecond is the sustained per-IP rate (default 10).
	RequestsPerSecond int

	// Burst is the per-IP burst allowance (default 20).
	Burst int
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP parsing. Only enable
	// behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is how many proxies to trust from the right of
	// the X-Forwarded-For list (0 is treated as 1).
	TrustedProxyCount int

	// EnableAuditLogging emits structured security audit events for token
	// lifecycle operations and validation failures.
	EnableAuditLogging bool
}

// Config configures a Server.
type Config struct {
	// TokenDuration is the default token lifetime in seconds.
	TokenDuration int64

	// SignatureMethods is the registry of accepted signature methods
	// (default: HMAC-SHA1 and PLAINTEXT).
	SignatureMethods *signature.Registry

	// Attributes is the token-attribute collaborator (default: none).
	Attributes AttributesCodec

	// RateLimit controls per-IP rate limiting on the HTTP handler.
	RateLimit RateLimitConfig

	// Security holds proxy-trust and audit settings.
	Security SecurityConfig

	// Logger is the structured logger (default slog.Default()).
	Logger *slog.Logger

	// Instrumentation is optional OpenTelemetry instrumentation.
	Instrumentation *instrumentation.Instrumentation
}

// applyDefaults fills the zero values in. Called by NewServer.
func (c *Config) applyDefaults() {
	if c.TokenDuration <= 0 {
		c.TokenDuration = DefaultTokenDuration
	}
	if c.SignatureMethods == nil {
		c.SignatureMethods = signature.DefaultRegistry()
	}
	if c.Attributes == nil {
		c.Attributes = attrs.Empty{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			c.RateLimit.RequestsPerSecond = DefaultRateLimitRequestsPerSecond
		}
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = DefaultRateLimitBurst
		}
	} else {
		c.Logger.Warn("Rate limiting is disabled; enable RateLimit for production deployments")
	}
}
