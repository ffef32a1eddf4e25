package oauthsp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/oauthsp/oauthsp/instrumentation"
	"github.com/oauthsp/oauthsp/security"
	"github.com/oauthsp/oauthsp/storage"
)

// Server orchestrates the token lifecycle over the storage contracts. It is
// the embeddable core of a service provider: the HTTP handler drives it for
// the protocol endpoints, and a deployment's UI layer drives AuthorizeToken
// and RevokeToken directly.
type Server struct {
	config    *Config
	consumers storage.ConsumerStore
	tokens    storage.TokenStore
	nonces    storage.NonceStore

	auditor *security.Auditor
	inst    *instrumentation.Instrumentation
	tracer  trace.Tracer
}

// NewServer creates a Server over the given stores. All three stores are
// required; cfg may be nil for defaults.
func NewServer(consumers storage.ConsumerStore, tokens storage.TokenStore, nonces storage.NonceStore, cfg *Config) (*Server, error) {
	if consumers == nil {
		return nil, fmt.Errorf("consumer store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if nonces == nil {
		return nil, fmt.Errorf("nonce store is required")
	}

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	s := &Server{
		config:    cfg,
		consumers: consumers,
		tokens:    tokens,
		nonces:    nonces,
		auditor:   security.NewAuditor(cfg.Logger, cfg.Security.EnableAuditLogging),
	}
	if cfg.Instrumentation != nil {
		s.inst = cfg.Instrumentation
		s.tracer = cfg.Instrumentation.Tracer("server")
	}

	return s, nil
}

// Config returns the server's effective configuration.
func (s *Server) Config() *Config { return s.config }

// IssueRequestToken validates a consumer-only signed request and creates a
// fresh Requested token. An integral oauth_token_duration overrides the
// default lifetime; oauth_token_attributes passes through the attributes
// collaborator, failures leaving the attributes unset.
func (s *Server) IssueRequestToken(ctx context.Context, r *Request) (*storage.Token, error) {
	ctx, span := s.startSpan(ctx, "server.issue_request_token")
	defer span.End()

	if err := s.Validate(ctx, r); err != nil {
		s.recordValidationFailure(ctx, r, err)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	token := s.newToken(r.consumer)
	if raw, ok := r.OAuthParameter("token_duration"); ok {
		if duration, err := strconv.ParseInt(raw, 10, 64); err == nil {
			token.Duration = duration
			token.ResetExpiration()
		}
	}
	if raw, ok := r.OAuthParameter("token_attributes"); ok {
		token.Attributes = s.castAttributes(raw)
	}

	if err := s.tokens.CreateToken(ctx, token); err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	s.auditor.LogTokenIssued(r.consumer.Key, r.RemoteIP(), keyPrefix(token.Key))
	if s.inst != nil {
		s.inst.Metrics().RecordTokenIssued(ctx, r.consumer.Key)
	}
	s.config.Logger.Info("Issued request token",
		"consumer_key", r.consumer.Key,
		"duration", token.Duration)

	instrumentation.SetSpanSuccess(span)
	return token, nil
}

// AuthorizeOptions carries the user's choices from the authorization
// screen. They only take effect when the consumer allows editable
// attributes.
type AuthorizeOptions struct {
	// Duration overrides the token lifetime in seconds when positive.
	Duration int64

	// CanRenew sets the renewability flag. When nil the default policy
	// applies: desktop and mobile consumers get renewable tokens.
	CanRenew *bool

	// Attributes are the raw attribute fields from the authorization
	// form, passed through the attributes collaborator.
	Attributes map[string]string
}

// AuthorizeToken transitions a Requested token to Authorized on behalf of
// an authenticated end user. Credentials are not regenerated; the consumer
// learns nothing until it exchanges the token.
func (s *Server) AuthorizeToken(ctx context.Context, tokenKey, userID string, opts *AuthorizeOptions) (*storage.Token, error) {
	ctx, span := s.startSpan(ctx, "server.authorize_token")
	defer span.End()

	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	token, err := s.tokens.FindRequestedToken(ctx, tokenKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken("Invalid token")
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}

	consumer, err := s.consumers.FindConsumer(ctx, token.ConsumerKey)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	// Desktop and mobile clients can renew tokens by default.
	token.CanRenew = consumer.Type == storage.ConsumerDesktop || consumer.Type == storage.ConsumerMobile

	if consumer.EditableAttributes && opts != nil {
		if opts.Duration > 0 {
			token.Duration = opts.Duration
		}
		if opts.CanRenew != nil {
			token.CanRenew = *opts.CanRenew
		}
		if opts.Attributes != nil {
			if blob, err := s.config.Attributes.ValidateAndCast(opts.Attributes); err == nil {
				token.Attributes = s.config.Attributes.Serialize(blob)
			}
		}
	}

	token.Type = storage.TokenAuthorized
	token.UserID = userID
	token.ResetExpiration()

	if err := s.tokens.UpdateToken(ctx, token.Key, token); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrInvalidToken("Invalid token")
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}

	s.auditor.LogTokenAuthorized(token.ConsumerKey, userID, keyPrefix(token.Key))
	if s.inst != nil {
		s.inst.Metrics().RecordTokenAuthorized(ctx, token.ConsumerKey)
	}
	s.config.Logger.Info("Authorized request token",
		"consumer_key", token.ConsumerKey)

	instrumentation.SetSpanSuccess(span)
	return token, nil
}

// CallbackURL appends oauth_token to a consumer-supplied callback URL,
// choosing "?" or "&" by whether the URL already carries a query string.
func CallbackURL(callback, tokenKey string) string {
	sep := "?"
	if strings.Contains(callback, "?") {
		sep = "&"
	}
	return callback + sep + "oauth_token=" + tokenKey
}

// AccessToken handles the access-token endpoint after validation: an
// Authorized token is exchanged, an Access token is renewed under its
// session handle. The request must resolve a token.
func (s *Server) AccessToken(ctx context.Context, r *Request) (*storage.Token, error) {
	ctx, span := s.startSpan(ctx, "server.access_token")
	defer span.End()

	if err := s.Validate(ctx, r); err != nil {
		s.recordValidationFailure(ctx, r, err)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if r.token == nil {
		return nil, ErrMissingParameter("A token is required")
	}

	if r.token.Type == storage.TokenAccess {
		if err := s.validateSession(r); err != nil {
			s.recordValidationFailure(ctx, r, err)
			instrumentation.RecordError(span, err)
			return nil, err
		}
		return s.renewToken(ctx, r)
	}
	return s.exchangeToken(ctx, r)
}

// exchangeToken transitions an Authorized token to Access. Fresh key and
// secret are generated, the creation date resets, and the session handle
// is preserved so the consumer can renew later.
func (s *Server) exchangeToken(ctx context.Context, r *Request) (*storage.Token, error) {
	token := r.token
	if token.Type != storage.TokenAuthorized {
		return nil, ErrInvalidToken("This token is not exchangeable for an access token")
	}

	prevKey := token.Key
	token.Type = storage.TokenAccess
	token.Key = security.RandomCredential()
	token.Secret = security.RandomCredential()
	token.CreationDate = time.Now()
	token.ResetExpiration()

	if err := s.tokens.UpdateToken(ctx, prevKey, token); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// A concurrent exchange won; this token is spent.
			return nil, ErrInvalidToken("This token is not exchangeable for an access token")
		}
		return nil, err
	}

	s.auditor.LogTokenExchanged(token.ConsumerKey, token.UserID, r.RemoteIP())
	if s.inst != nil {
		s.inst.Metrics().RecordTokenExchanged(ctx, token.ConsumerKey)
	}
	s.config.Logger.Info("Exchanged token for access token",
		"consumer_key", token.ConsumerKey)

	return token, nil
}

// renewToken renews an Access token within its renewal policy: can_renew
// set and still inside twice the duration past creation. Key, secret and
// session handle all regenerate.
func (s *Server) renewToken(ctx context.Context, r *Request) (*storage.Token, error) {
	token := r.token
	if !token.Renewable(time.Now()) {
		return nil, ErrTokenNotRenewable("This token cannot be renewed")
	}

	prevKey := token.Key
	token.Key = security.RandomCredential()
	token.Secret = security.RandomCredential()
	token.SessionHandle = security.RandomCredential()
	token.CreationDate = time.Now()
	token.ResetExpiration()

	if err := s.tokens.UpdateToken(ctx, prevKey, token); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// A concurrent renewal won; the presented credentials are stale.
			return nil, ErrInvalidToken("Invalid token")
		}
		return nil, err
	}

	s.auditor.LogTokenRenewed(token.ConsumerKey, token.UserID, r.RemoteIP())
	if s.inst != nil {
		s.inst.Metrics().RecordTokenRenewed(ctx, token.ConsumerKey)
	}
	s.config.Logger.Info("Renewed access token",
		"consumer_key", token.ConsumerKey)

	return token, nil
}

// RevokeToken deletes one of the user's access tokens. Ownership is
// enforced: a key belonging to another user reads as not found.
func (s *Server) RevokeToken(ctx context.Context, userID, tokenKey string) error {
	ctx, span := s.startSpan(ctx, "server.revoke_token")
	defer span.End()

	tokens, err := s.tokens.ListAccessTokens(ctx, userID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return err
	}

	for _, token := range tokens {
		if token.Key != tokenKey {
			continue
		}
		if err := s.tokens.DeleteToken(ctx, tokenKey); err != nil {
			instrumentation.RecordError(span, err)
			return err
		}

		s.auditor.LogTokenRevoked(token.ConsumerKey, userID)
		if s.inst != nil {
			s.inst.Metrics().RecordTokenRevoked(ctx, token.ConsumerKey)
		}
		instrumentation.SetSpanSuccess(span)
		return nil
	}

	return storage.ErrNotFound
}

// ListAccessTokens returns the user's access tokens, for building a
// revocation screen.
func (s *Server) ListAccessTokens(ctx context.Context, userID string) ([]*storage.Token, error) {
	return s.tokens.ListAccessTokens(ctx, userID)
}

// newToken builds a fresh Requested token for a consumer.
func (s *Server) newToken(consumer *storage.Consumer) *storage.Token {
	token := &storage.Token{
		Key:           security.RandomCredential(),
		Secret:        security.RandomCredential(),
		SessionHandle: security.RandomCredential(),
		Type:          storage.TokenRequested,
		ConsumerKey:   consumer.Key,
		CreationDate:  time.Now(),
		Duration:      s.config.TokenDuration,
	}
	token.ResetExpiration()
	return token
}

// keyPrefix shortens a token key for logging.
func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

// castAttributes runs a raw wire string through the collaborator. Any
// failure yields the empty string: attributes are best-effort.
func (s *Server) castAttributes(raw string) string {
	fields := s.config.Attributes.Deserialize(raw)
	blob, err := s.config.Attributes.ValidateAndCast(fields)
	if err != nil {
		return ""
	}
	return s.config.Attributes.Serialize(blob)
}

// recordValidationFailure feeds audit logging and metrics with a rejected
// request's problem code. Infrastructure errors are not protocol failures
// and are skipped.
func (s *Server) recordValidationFailure(ctx context.Context, r *Request, err error) {
	var problem *ProblemError
	if !errors.As(err, &problem) {
		return
	}

	var consumerKey string
	if r.consumer != nil {
		consumerKey = r.consumer.Key
	}

	s.auditor.LogValidationFailure(consumerKey, r.RemoteIP(), problem.Problem)
	if s.inst != nil {
		s.inst.Metrics().RecordValidationFailure(ctx, problem.Problem)
	}
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}
