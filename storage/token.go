package storage

import "time"

// TokenType is the lifecycle state of a token. States only ever move
// forward: Requested -> Authorized -> Access.
type TokenType string

const (
	// TokenRequested is a freshly issued request token, not yet approved
	// by any user.
	TokenRequested TokenType = "requested"

	// TokenAuthorized is a request token a user has approved. It can be
	// exchanged exactly once for an access token.
	TokenAuthorized TokenType = "authorized"

	// TokenAccess is a full access credential. The only transition out of
	// this state is renewal back into it.
	TokenAccess TokenType = "access"
)

// Token is a temporary credential issued to a consumer. Key, Secret and
// SessionHandle are opaque random strings regenerated on every transition
// that produces a "new" token.
type Token struct {
	Key    string
	Secret string

	// SessionHandle authenticates renewal requests for access tokens.
	SessionHandle string

	Type        TokenType
	ConsumerKey string

	// UserID is set once a user authorizes the token; empty before that.
	UserID string

	CreationDate time.Time

	// Duration is the token lifetime in seconds.
	Duration int64

	// ExpirationDate is always CreationDate + Duration. Callers that touch
	// CreationDate or Duration must call ResetExpiration.
	ExpirationDate time.Time

	CanRenew bool

	// Attributes is the serialized application-defined attribute blob,
	// produced by the deployment's attribute collaborator. Empty when no
	// attributes are attached.
	Attributes string
}

// ResetExpiration recomputes ExpirationDate from CreationDate and Duration.
func (t *Token) ResetExpiration() {
	t.ExpirationDate = t.CreationDate.Add(time.Duration(t.Duration) * time.Second)
}

// Expired reports whether the token has passed its expiration date.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpirationDate)
}

// Renewable reports whether the token may still be renewed: renewal must be
// permitted and requested within twice the token lifetime of its creation.
func (t *Token) Renewable(now time.Time) bool {
	if !t.CanRenew {
		return false
	}
	return t.CreationDate.Add(2 * time.Duration(t.Duration) * time.Second).After(now)
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// tokens freely before committing them with UpdateToken.
func (t *Token) Clone() *Token {
	c := *t
	return &c
}
