package oauthsp

import (
	"io"
	"log/slog"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	cfg.applyDefaults()

	if cfg.TokenDuration != DefaultTokenDuration {
		t.Errorf("TokenDuration = %d, want %d", cfg.TokenDuration, DefaultTokenDuration)
	}
	if cfg.SignatureMethods == nil {
		t.Error("SignatureMethods not defaulted")
	}
	if cfg.Attributes == nil {
		t.Error("Attributes not defaulted")
	}

	names := cfg.SignatureMethods.Names()
	if len(names) != 2 {
		t.Errorf("default registry has %d methods, want 2", len(names))
	}
}

func TestApplyDefaultsRateLimit(t *testing.T) {
	cfg := &Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		RateLimit: RateLimitConfig{Enabled: true},
	}
	cfg.applyDefaults()

	if cfg.RateLimit.RequestsPerSecond != DefaultRateLimitRequestsPerSecond {
		t.Errorf("RequestsPerSecond = %d, want %d", cfg.RateLimit.RequestsPerSecond, DefaultRateLimitRequestsPerSecond)
	}
	if cfg.RateLimit.Burst != DefaultRateLimitBurst {
		t.Errorf("Burst = %d, want %d", cfg.RateLimit.Burst, DefaultRateLimitBurst)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		TokenDuration: 120,
	}
	cfg.applyDefaults()

	if cfg.TokenDuration != 120 {
		t.Errorf("TokenDuration = %d, want 120", cfg.TokenDuration)
	}
}
