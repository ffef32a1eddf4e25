package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauthsp/oauthsp/instrumentation"
	"github.com/oauthsp/oauthsp/storage"
)

const (
	// defaultCleanupInterval is how often expired records are pruned.
	defaultCleanupInterval = time.Minute

	// nonceRetention is how long nonce triples are kept. Nonces only need
	// to outlive the timestamp acceptance window; anything older belongs
	// to a request that would already be rejected as timestamp_refused.
	nonceRetention = 10 * time.Minute

	// nonceSeparator joins the parts of a nonce triple into one map key.
	// NUL cannot appear in percent-decoded parameter values, so composite
	// keys cannot collide across part boundaries.
	nonceSeparator = "\x00"
)

// Store is an in-memory implementation of ConsumerStore, TokenStore and
// NonceStore.
type Store struct {
	mu sync.RWMutex

	consumers map[string]*storage.Consumer
	tokens    map[string]*storage.Token
	nonces    map[string]time.Time

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during collection)
	tokensCountAtomic    atomic.Int64
	consumersCountAtomic atomic.Int64
	noncesCountAtomic    atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var (
	_ storage.ConsumerStore = (*Store)(nil)
	_ storage.TokenStore    = (*Store)(nil)
	_ storage.NonceStore    = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval of
// one minute.
func New() *Store {
	return NewWithInterval(defaultCleanupInterval)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. If cleanupInterval is zero or negative the default of one
// minute is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	s := &Store{
		consumers:       make(map[string]*storage.Consumer),
		tokens:          make(map[string]*storage.Token),
		nonces:          make(map[string]time.Time),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation attaches OpenTelemetry instrumentation to the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	s.consumersCountAtomic.Store(int64(len(s.consumers)))
	s.noncesCountAtomic.Store(int64(len(s.nonces)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.tokensCountAtomic.Load() },
			func() int64 { return s.consumersCountAtomic.Load() },
			func() int64 { return s.noncesCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ============================================================
// ConsumerStore Implementation
// ============================================================

// SaveConsumer registers or replaces a consumer. Consumer registration is
// owned by the deployment; this is the seeding hook.
func (s *Store) SaveConsumer(ctx context.Context, consumer *storage.Consumer) error {
	_, span := s.startStorageSpan(ctx, "save_consumer")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_consumer", err, startTime)
	}()

	if consumer == nil || consumer.Key == "" {
		err = fmt.Errorf("consumer key cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *consumer
	if _, existed := s.consumers[c.Key]; !existed {
		s.consumersCountAtomic.Add(1)
	}
	s.consumers[c.Key] = &c

	s.logger.Debug("Saved consumer", "consumer_key", c.Key)
	return nil
}

// FindConsumer returns the consumer with the given key, or ErrNotFound.
func (s *Store) FindConsumer(ctx context.Context, key string) (*storage.Consumer, error) {
	_, span := s.startStorageSpan(ctx, "find_consumer")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "find_consumer", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	consumer, ok := s.consumers[key]
	if !ok {
		err = storage.ErrNotFound
		return nil, err
	}

	c := *consumer
	return &c, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// FindToken returns the token with the given key belonging to the given
// consumer, or ErrNotFound. Tokens of other consumers are invisible.
func (s *Store) FindToken(ctx context.Context, consumerKey, key string) (*storage.Token, error) {
	_, span := s.startStorageSpan(ctx, "find_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "find_token", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[key]
	if !ok || token.ConsumerKey != consumerKey {
		err = storage.ErrNotFound
		return nil, err
	}

	return token.Clone(), nil
}

// FindRequestedToken returns the Requested-type token with the given key,
// or ErrNotFound.
func (s *Store) FindRequestedToken(ctx context.Context, key string) (*storage.Token, error) {
	_, span := s.startStorageSpan(ctx, "find_requested_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "find_requested_token", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[key]
	if !ok || token.Type != storage.TokenRequested {
		err = storage.ErrNotFound
		return nil, err
	}

	return token.Clone(), nil
}

// CreateToken stores a new token. ErrConflict is returned if a token with
// the same key already exists.
func (s *Store) CreateToken(ctx context.Context, token *storage.Token) error {
	_, span := s.startStorageSpan(ctx, "create_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "create_token", err, startTime)
	}()

	if token == nil || token.Key == "" {
		err = fmt.Errorf("token key cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Key]; exists {
		err = storage.ErrConflict
		return err
	}

	s.tokens[token.Key] = token.Clone()
	s.tokensCountAtomic.Add(1)

	s.logger.Debug("Created token",
		"token_type", token.Type,
		"consumer_key", token.ConsumerKey)
	return nil
}

// UpdateToken replaces the record stored under prevKey with token, whose
// key may differ. The replacement is conditional: if prevKey no longer
// holds a record, a concurrent transition won and ErrConflict is returned
// with nothing written.
func (s *Store) UpdateToken(ctx context.Context, prevKey string, token *storage.Token) error {
	_, span := s.startStorageSpan(ctx, "update_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "update_token", err, startTime)
	}()

	if token == nil || token.Key == "" {
		err = fmt.Errorf("token key cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[prevKey]; !exists {
		err = storage.ErrConflict
		return err
	}
	if prevKey != token.Key {
		if _, exists := s.tokens[token.Key]; exists {
			err = storage.ErrConflict
			return err
		}
		delete(s.tokens, prevKey)
	}

	s.tokens[token.Key] = token.Clone()

	s.logger.Debug("Updated token",
		"token_type", token.Type,
		"consumer_key", token.ConsumerKey)
	return nil
}

// DeleteToken removes a token. Revocation is modeled as deletion.
func (s *Store) DeleteToken(ctx context.Context, key string) error {
	_, span := s.startStorageSpan(ctx, "delete_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[key]; !exists {
		err = storage.ErrNotFound
		return err
	}

	delete(s.tokens, key)
	s.tokensCountAtomic.Add(-1)
	return nil
}

// ListAccessTokens returns the Access-type tokens held by a user.
func (s *Store) ListAccessTokens(ctx context.Context, userID string) ([]*storage.Token, error) {
	_, span := s.startStorageSpan(ctx, "list_access_tokens")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "list_access_tokens", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*storage.Token
	for _, token := range s.tokens {
		if token.Type == storage.TokenAccess && token.UserID == userID {
			tokens = append(tokens, token.Clone())
		}
	}

	return tokens, nil
}

// ============================================================
// NonceStore Implementation
// ============================================================

// InsertNonce atomically records the (consumerKey, tokenKey, value) triple.
// It returns true when the triple was newly inserted and false when it was
// already present.
func (s *Store) InsertNonce(ctx context.Context, consumerKey, tokenKey, value string) (bool, error) {
	_, span := s.startStorageSpan(ctx, "insert_nonce")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "insert_nonce", err, startTime)
	}()

	key := consumerKey + nonceSeparator + tokenKey + nonceSeparator + value

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nonces[key]; exists {
		return false, nil
	}

	s.nonces[key] = time.Now()
	s.noncesCountAtomic.Add(1)
	return true, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup prunes nonce triples past the retention window. Tokens are kept:
// an expired access token must stay resolvable so renewal can answer
// token_expired instead of token_rejected.
func (s *Store) cleanup() {
	cutoff := time.Now().Add(-nonceRetention)

	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for key, insertedAt := range s.nonces {
		if insertedAt.Before(cutoff) {
			delete(s.nonces, key)
			pruned++
		}
	}

	if pruned > 0 {
		s.noncesCountAtomic.Add(-pruned)
		s.logger.Debug("Pruned expired nonces",
			"pruned", pruned,
			"remaining", len(s.nonces))
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
