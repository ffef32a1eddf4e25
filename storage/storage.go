// Package storage defines the entities and persistence contracts the OAuth
// service-provider core depends on.
//
// The core treats persistence as an external collaborator: it only ever
// talks to the three interfaces defined here. Implementations are provided
// in subpackages:
//   - storage/memory: in-memory storage for development and testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. Protocol-level error
// mapping happens in the core; stores only ever report these.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a conditional write lost a race: the record was
	// created, exchanged, or renewed concurrently by another request.
	ErrConflict = errors.New("concurrent modification")

	// ErrUnavailable indicates an infrastructure failure (timeout, lost
	// connection). It is always fatal to the request and is never mapped to
	// a protocol problem code.
	ErrUnavailable = errors.New("storage unavailable")
)

// ConsumerType classifies a registered consumer application. Desktop and
// mobile consumers get renewable tokens by default at authorization time.
type ConsumerType string

const (
	ConsumerDesktop ConsumerType = "desktop"
	ConsumerMobile  ConsumerType = "mobile"
	ConsumerWeb     ConsumerType = "web"
)

// Consumer is a registered third-party application. The protocol core reads
// consumers but never creates or mutates them; registration is owned by the
// deployment.
type Consumer struct {
	// Key identifies the consumer on the wire (oauth_consumer_key).
	// Globally unique and immutable after creation.
	Key string

	// Secret is the shared signing secret. It must stay recoverable, not
	// hashed: HMAC and PLAINTEXT signing both derive the signing key from
	// the plaintext secret.
	Secret string

	Name           string
	Type           ConsumerType
	DeveloperEmail string
	URI            string
	Description    string

	// Private hides the consumer from public listings.
	Private bool

	// EditableAttributes lets the authorizing user adjust duration,
	// renewability and token attributes at authorization time.
	EditableAttributes bool

	RegistrationDate time.Time
}

// ConsumerStore resolves registered consumers.
type ConsumerStore interface {
	// FindConsumer returns the consumer with the given key, or ErrNotFound.
	FindConsumer(ctx context.Context, key string) (*Consumer, error)
}

// TokenStore persists tokens through their lifecycle.
type TokenStore interface {
	// FindToken returns the token with the given key belonging to the given
	// consumer, or ErrNotFound. Tokens of other consumers are invisible.
	FindToken(ctx context.Context, consumerKey, key string) (*Token, error)

	// FindRequestedToken returns the Requested-type token with the given
	// key, or ErrNotFound. Used by the authorization step, which runs
	// outside a signed request.
	FindRequestedToken(ctx context.Context, key string) (*Token, error)

	// CreateToken stores a new token. The token key must be unique;
	// ErrConflict is returned on collision.
	CreateToken(ctx context.Context, token *Token) error

	// UpdateToken replaces the record currently stored under prevKey with
	// token, whose key may differ (exchange and renew regenerate it). The
	// replacement is conditional: if no record is stored under prevKey any
	// more, because a concurrent transition won, ErrConflict is returned
	// and nothing is written. This is what makes exchange and renew
	// race-safe.
	UpdateToken(ctx context.Context, prevKey string, token *Token) error

	// DeleteToken removes a token. Revocation is modeled as deletion.
	DeleteToken(ctx context.Context, key string) error

	// ListAccessTokens returns the Access-type tokens held by a user, so a
	// deployment can build its revocation screen.
	ListAccessTokens(ctx context.Context, userID string) ([]*Token, error)
}

// NonceStore records one-time nonce values scoped to (consumer, token).
type NonceStore interface {
	// InsertNonce atomically records the (consumerKey, tokenKey, value)
	// triple. It returns true when the triple was newly inserted and false
	// when it already existed. The check-and-insert MUST be a single atomic
	// operation: two requests racing on the same triple must not both
	// observe "inserted". tokenKey is empty for consumer-only requests.
	InsertNonce(ctx context.Context, consumerKey, tokenKey, value string) (bool, error)
}
