// Package signature implements the pluggable signing strategies used to
// verify OAuth 1.0 requests.
//
// A Method knows how to derive the string that gets signed and how to sign
// it; the shared key derivation and the base64/constant-time comparison
// plumbing are common to all methods. Methods are registered in an explicit
// Registry built at process start and passed to the validation pipeline, so
// there is no global mutable registration state.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/oauthsp/oauthsp/percent"
)

// ErrUnknownMethod is returned by Registry.Lookup for unregistered names.
var ErrUnknownMethod = errors.New("unknown signature method")

// Request is the view of an inbound request a signature method needs.
// It is implemented by the protocol request canonicalizer; the indirection
// keeps this package free of HTTP and storage concerns.
type Request interface {
	// SignatureBaseString returns the canonical METHOD&uri&params string.
	SignatureBaseString() string

	// ConsumerSecret returns the shared secret of the resolved consumer.
	ConsumerSecret() string

	// TokenSecret returns the secret of the resolved token, or the empty
	// string when the request carries no token.
	TokenSecret() string

	// OAuthParameter returns the oauth_ parameter with the given name
	// (prefix stripped), reporting whether it was present.
	OAuthParameter(name string) (string, bool)
}

// Method is a single signing algorithm.
type Method interface {
	// Name is the stable algorithm name clients send in
	// oauth_signature_method, e.g. "HMAC-SHA1".
	Name() string

	// BaseString returns the string this method signs for the request.
	BaseString(req Request) string

	// Sign signs baseString with the derived signing key and returns the
	// raw digest bytes.
	Sign(key, baseString string) []byte
}

// SigningKey derives the shared signing key for a request:
// Encode(consumer secret) & Encode(token secret or empty).
func SigningKey(req Request) string {
	return percent.Encode(req.ConsumerSecret()) + "&" + percent.Encode(req.TokenSecret())
}

// Compute returns the base64-encoded signature the server expects for req.
func Compute(m Method, req Request) string {
	return base64.StdEncoding.EncodeToString(m.Sign(SigningKey(req), m.BaseString(req)))
}

// Validate compares the expected signature against the one the caller
// supplied. A missing oauth_signature parameter yields false rather than an
// error. The comparison is constant-time to avoid timing side-channels.
func Validate(m Method, req Request) bool {
	supplied, ok := req.OAuthParameter("signature")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(Compute(m, req)), []byte(supplied))
}

// HMACSHA1 signs the signature base string with HMAC-SHA1.
type HMACSHA1 struct{}

func (HMACSHA1) Name() string { return "HMAC-SHA1" }

func (HMACSHA1) BaseString(req Request) string { return req.SignatureBaseString() }

func (HMACSHA1) Sign(key, baseString string) []byte {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(baseString))
	return mac.Sum(nil)
}

// Plaintext performs no hashing: the signature is the signing key itself,
// base64-encoded for uniformity with the other methods. Only acceptable
// over a secure channel.
type Plaintext struct{}

func (Plaintext) Name() string { return "PLAINTEXT" }

func (Plaintext) BaseString(Request) string { return "" }

func (Plaintext) Sign(key, _ string) []byte { return []byte(key) }

// Registry maps algorithm names to methods.
type Registry struct {
	methods map[string]Method
}

// NewRegistry builds a registry from the given methods.
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{methods: make(map[string]Method, len(methods))}
	for _, m := range methods {
		r.methods[m.Name()] = m
	}
	return r
}

// DefaultRegistry returns a registry with the two standard methods,
// HMAC-SHA1 and PLAINTEXT.
func DefaultRegistry() *Registry {
	return NewRegistry(HMACSHA1{}, Plaintext{})
}

// Lookup resolves a method by its stable name.
func (r *Registry) Lookup(name string) (Method, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownMethod)
	}
	return m, nil
}

// Names returns the registered method names, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}
