package oauthsp

import (
	"context"
	"crypto/hmac"
	"errors"
	"strconv"
	"time"

	"github.com/oauthsp/oauthsp/internal/util"
	"github.com/oauthsp/oauthsp/signature"
	"github.com/oauthsp/oauthsp/storage"
)

const (
	// protocolVersion is the only accepted oauth_version value.
	protocolVersion = "1.0"

	// timestampWindow is the fixed acceptance window around the server
	// clock. The bounds are exclusive: a timestamp exactly 150 seconds off
	// is refused.
	timestampWindow = 150 * time.Second

	// maxNonceLength is the number of bytes of the nonce value recorded by
	// the nonce guard. Longer values are truncated before the insert.
	maxNonceLength = 64
)

// Validate runs the full validation pipeline over a signed request, in
// fixed order: version, timestamp, consumer, token, nonce, signature. The
// first failing step rejects the request with its problem code. On success
// the consumer, and the token when one was named, are resolved onto the
// request.
//
// Order matters twice over: cheap checks run before storage lookups, and
// the nonce is consumed before the signature is checked, so a replayed
// request fails with nonce_used no matter how it is signed.
func (s *Server) Validate(ctx context.Context, r *Request) error {
	if err := s.validateVersion(r); err != nil {
		return err
	}
	if err := s.validateTimestamp(r); err != nil {
		return err
	}
	if err := s.validateConsumer(ctx, r); err != nil {
		return err
	}
	if err := s.validateToken(ctx, r); err != nil {
		return err
	}
	if err := s.validateNonce(ctx, r); err != nil {
		return err
	}
	return s.validateSignature(r)
}

// ValidateAccess runs the full pipeline and additionally requires a
// resolved Access-type token that has not expired. Protected resources use
// this entry point.
func (s *Server) ValidateAccess(ctx context.Context, r *Request) error {
	if err := s.Validate(ctx, r); err != nil {
		return err
	}
	if r.token == nil || r.token.Type != storage.TokenAccess {
		return ErrInvalidToken("An access token is required")
	}
	if r.token.Expired(time.Now()) {
		return ErrTokenExpired("This token has expired")
	}
	return nil
}

// validateVersion accepts a missing oauth_version; a present one must be
// exactly "1.0".
func (s *Server) validateVersion(r *Request) error {
	version, ok := r.OAuthParameter("version")
	if ok && version != protocolVersion {
		return ErrUnsupportedVersion("Version \"" + version + "\" is not supported")
	}
	return nil
}

// validateTimestamp requires an integral oauth_timestamp strictly within
// the window around the server clock.
func (s *Server) validateTimestamp(r *Request) error {
	raw, ok := r.OAuthParameter("timestamp")
	if !ok {
		return ErrInvalidTimestamp("A timestamp is required")
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp("Invalid timestamp")
	}

	delta := time.Since(time.Unix(ts, 0))
	if delta <= -timestampWindow || delta >= timestampWindow {
		return ErrInvalidTimestamp("Timestamp out of acceptable window")
	}
	return nil
}

// validateConsumer resolves oauth_consumer_key. A missing parameter and an
// unknown key fail identically, leaking nothing about which it was.
func (s *Server) validateConsumer(ctx context.Context, r *Request) error {
	key, ok := r.OAuthParameter("consumer_key")
	if !ok {
		return ErrInvalidConsumer("Invalid consumer key")
	}

	consumer, err := s.consumers.FindConsumer(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidConsumer("Invalid consumer key")
		}
		return err
	}

	r.consumer = consumer
	return nil
}

// validateToken resolves oauth_token scoped to the consumer. Absence of the
// parameter is not an error at this step; request-token issuance is a
// consumer-only request.
func (s *Server) validateToken(ctx context.Context, r *Request) error {
	key, ok := r.OAuthParameter("token")
	if !ok || key == "" {
		return nil
	}

	token, err := s.tokens.FindToken(ctx, r.consumer.Key, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidToken("Invalid token")
		}
		return err
	}

	r.token = token
	return nil
}

// validateNonce consumes the (consumer, token, nonce) triple. The insert is
// atomic at the storage layer; a duplicate means a replay. A rejected
// request still consumes its nonce when a later step fails, which is the
// accepted trade-off for checking cheap-to-forge parameters first.
func (s *Server) validateNonce(ctx context.Context, r *Request) error {
	value, ok := r.OAuthParameter("nonce")
	if !ok {
		return ErrNonceUsed("A nonce is required")
	}

	var tokenKey string
	if r.token != nil {
		tokenKey = r.token.Key
	}

	inserted, err := s.nonces.InsertNonce(ctx, r.consumer.Key, tokenKey, util.SafeTruncate(value, maxNonceLength))
	if err != nil {
		return err
	}
	if !inserted {
		return ErrNonceUsed("This nonce has been already used")
	}
	return nil
}

// validateSignature resolves the named method and verifies the signature.
func (s *Server) validateSignature(r *Request) error {
	name, _ := r.OAuthParameter("signature_method")
	method, err := s.config.SignatureMethods.Lookup(name)
	if err != nil {
		return ErrUnsupportedSignatureMethod("\"" + name + "\" is not a valid signature method")
	}

	if !signature.Validate(method, r) {
		return ErrInvalidSignature("Request signature is invalid")
	}
	return nil
}

// validateSession requires the caller-supplied oauth_session_handle to
// match the token's stored value. Used only by renewal.
func (s *Server) validateSession(r *Request) error {
	handle, ok := r.OAuthParameter("session_handle")
	if !ok {
		return ErrMissingParameter("A session handle is required")
	}
	if r.token != nil && !hmac.Equal([]byte(r.token.SessionHandle), []byte(handle)) {
		return ErrInvalidToken("Invalid session handle")
	}
	return nil
}
