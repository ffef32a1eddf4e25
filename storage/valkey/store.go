package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/oauthsp/oauthsp/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys.
	DefaultKeyPrefix = "oauthsp:"

	// scanBatchSize is the number of keys to fetch per SCAN iteration.
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for the initial PING.
	connectionVerifyTimeout = 5 * time.Second

	// nonceRetention is the TTL on nonce markers. Nonces only need to
	// outlive the timestamp acceptance window.
	nonceRetention = 10 * time.Minute

	// nonceSeparator joins the parts of a nonce triple into one key. NUL
	// cannot appear in percent-decoded parameter values, so composite keys
	// cannot collide across part boundaries.
	nonceSeparator = "\x00"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g. "localhost:6379".
	Address string

	// Password is the optional password for authentication.
	Password string

	// DB is the optional database number (default 0).
	DB int

	// KeyPrefix is the prefix for all keys (default "oauthsp:").
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections.
	TLS *tls.Config

	// Logger is the optional structured logger (default slog.Default()).
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of ConsumerStore, TokenStore and
// NonceStore.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var (
	_ storage.ConsumerStore = (*Store)(nil)
	_ storage.TokenStore    = (*Store)(nil)
	_ storage.NonceStore    = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance. It returns an error if
// the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// ============================================================
// Key Helpers
// ============================================================

// consumerKey returns the key for a consumer: {prefix}consumer:{key}
func (s *Store) consumerKey(key string) string {
	return fmt.Sprintf("%sconsumer:%s", s.prefix, key)
}

// tokenKey returns the key for a token: {prefix}token:{key}
func (s *Store) tokenKey(key string) string {
	return fmt.Sprintf("%stoken:%s", s.prefix, key)
}

// nonceKey returns the key for a nonce triple: {prefix}nonce:{triple}
func (s *Store) nonceKey(consumerKey, tokenKey, value string) string {
	return s.prefix + "nonce:" + consumerKey + nonceSeparator + tokenKey + nonceSeparator + value
}

// isNilError checks if the error indicates a nil/not-found result from
// Valkey. This is how Valkey signals a missing key on GET operations.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// infraError wraps a command failure as ErrUnavailable so the core maps it
// to a service failure instead of a protocol problem.
func infraError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", storage.ErrUnavailable, op, err)
}
