package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/oauthsp/oauthsp/storage"
)

// minTokenTTL is the floor for a stored token's TTL, so records for tokens
// already past their renewal window still linger long enough for in-flight
// requests to resolve them.
const minTokenTTL = time.Minute

// luaUpdateToken atomically replaces the record under the previous key with
// a new record, whose key may differ. Exchange and renewal depend on this
// being a single atomic step: two requests racing on the same token must
// not both succeed.
//
// KEYS[1] = previous token key
// KEYS[2] = new token key
// ARGV[1] = new record JSON
// ARGV[2] = TTL in seconds
//
// Returns:
//   - "OK" on success
//   - "NOT_FOUND" if KEYS[1] holds no record (a concurrent transition won)
//   - "CONFLICT" if KEYS[2] differs from KEYS[1] and is already taken
const luaUpdateToken = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'NOT_FOUND'
end
if KEYS[1] ~= KEYS[2] and redis.call('EXISTS', KEYS[2]) == 1 then
    return 'CONFLICT'
end
redis.call('DEL', KEYS[1])
redis.call('SET', KEYS[2], ARGV[1], 'EX', ARGV[2])
return 'OK'
`

// tokenJSON is the JSON representation of a token record.
type tokenJSON struct {
	Key            string `json:"key"`
	Secret         string `json:"secret"`
	SessionHandle  string `json:"session_handle,omitempty"`
	Type           string `json:"type"`
	ConsumerKey    string `json:"consumer_key"`
	UserID         string `json:"user_id,omitempty"`
	CreationDate   int64  `json:"creation_date"`
	Duration       int64  `json:"duration"`
	ExpirationDate int64  `json:"expiration_date"`
	CanRenew       bool   `json:"can_renew,omitempty"`
	Attributes     string `json:"attributes,omitempty"`
}

func toTokenJSON(t *storage.Token) *tokenJSON {
	return &tokenJSON{
		Key:            t.Key,
		Secret:         t.Secret,
		SessionHandle:  t.SessionHandle,
		Type:           string(t.Type),
		ConsumerKey:    t.ConsumerKey,
		UserID:         t.UserID,
		CreationDate:   t.CreationDate.Unix(),
		Duration:       t.Duration,
		ExpirationDate: t.ExpirationDate.Unix(),
		CanRenew:       t.CanRenew,
		Attributes:     t.Attributes,
	}
}

func fromTokenJSON(j *tokenJSON) *storage.Token {
	if j == nil {
		return nil
	}
	return &storage.Token{
		Key:            j.Key,
		Secret:         j.Secret,
		SessionHandle:  j.SessionHandle,
		Type:           storage.TokenType(j.Type),
		ConsumerKey:    j.ConsumerKey,
		UserID:         j.UserID,
		CreationDate:   time.Unix(j.CreationDate, 0),
		Duration:       j.Duration,
		ExpirationDate: time.Unix(j.ExpirationDate, 0),
		CanRenew:       j.CanRenew,
		Attributes:     j.Attributes,
	}
}

// tokenTTL returns how long a token record should be kept: until the end of
// its renewal window (twice the duration past creation), never less than
// the floor.
func tokenTTL(t *storage.Token) time.Duration {
	deadline := t.CreationDate.Add(2 * time.Duration(t.Duration) * time.Second)
	ttl := time.Until(deadline)
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}
	return ttl
}

// FindToken returns the token with the given key belonging to the given
// consumer, or ErrNotFound. Tokens of other consumers are invisible.
func (s *Store) FindToken(ctx context.Context, consumerKey, key string) (*storage.Token, error) {
	token, err := s.getToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if token.ConsumerKey != consumerKey {
		return nil, storage.ErrNotFound
	}
	return token, nil
}

// FindRequestedToken returns the Requested-type token with the given key,
// or ErrNotFound.
func (s *Store) FindRequestedToken(ctx context.Context, key string) (*storage.Token, error) {
	token, err := s.getToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if token.Type != storage.TokenRequested {
		return nil, storage.ErrNotFound
	}
	return token, nil
}

func (s *Store) getToken(ctx context.Context, key string) (*storage.Token, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.tokenKey(key)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, infraError("get token", err)
	}

	var j tokenJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return fromTokenJSON(&j), nil
}

// CreateToken stores a new token. ErrConflict is returned if a token with
// the same key already exists.
func (s *Store) CreateToken(ctx context.Context, token *storage.Token) error {
	if token == nil || token.Key == "" {
		return fmt.Errorf("token key cannot be empty")
	}

	data, err := json.Marshal(toTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	// SET NX reports an existing key as a nil response.
	err = s.client.Do(ctx,
		s.client.B().Set().Key(s.tokenKey(token.Key)).Value(string(data)).Nx().Ex(tokenTTL(token)).Build(),
	).Error()
	if err != nil {
		if isNilError(err) {
			return storage.ErrConflict
		}
		return infraError("create token", err)
	}

	s.logger.Debug("Created token",
		"token_type", token.Type,
		"consumer_key", token.ConsumerKey)
	return nil
}

// UpdateToken replaces the record stored under prevKey with token, whose
// key may differ. The replacement runs as a Lua script so it is atomic: if
// prevKey no longer holds a record, a concurrent transition won and
// ErrConflict is returned with nothing written.
func (s *Store) UpdateToken(ctx context.Context, prevKey string, token *storage.Token) error {
	if token == nil || token.Key == "" {
		return fmt.Errorf("token key cannot be empty")
	}

	data, err := json.Marshal(toTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ttlSeconds := int64(tokenTTL(token) / time.Second)
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaUpdateToken).
			Numkeys(2).
			Key(s.tokenKey(prevKey), s.tokenKey(token.Key)).
			Arg(string(data)).
			Arg(strconv.FormatInt(ttlSeconds, 10)).
			Build(),
	).ToString()
	if err != nil {
		return infraError("update token", err)
	}

	switch result {
	case "OK":
		s.logger.Debug("Updated token",
			"token_type", token.Type,
			"consumer_key", token.ConsumerKey)
		return nil
	case "NOT_FOUND", "CONFLICT":
		return storage.ErrConflict
	default:
		return fmt.Errorf("unexpected update token result %q", result)
	}
}

// DeleteToken removes a token. Revocation is modeled as deletion.
func (s *Store) DeleteToken(ctx context.Context, key string) error {
	deleted, err := s.client.Do(ctx, s.client.B().Del().Key(s.tokenKey(key)).Build()).AsInt64()
	if err != nil {
		return infraError("delete token", err)
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAccessTokens returns the Access-type tokens held by a user. It scans
// the token keyspace, which is acceptable for revocation screens but not
// for hot paths.
func (s *Store) ListAccessTokens(ctx context.Context, userID string) ([]*storage.Token, error) {
	pattern := s.tokenKey("*")

	// SCAN can return duplicates across iterations; deduplicate by key.
	seen := make(map[string]bool)
	var tokens []*storage.Token

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, infraError("scan tokens", err)
		}

		for _, key := range result.Elements {
			if seen[key] {
				continue
			}
			seen[key] = true

			data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
			if err != nil {
				if isNilError(err) {
					// Key expired between SCAN and GET.
					continue
				}
				return nil, infraError("get token", err)
			}

			var j tokenJSON
			if err := json.Unmarshal([]byte(data), &j); err != nil {
				s.logger.Warn("Failed to unmarshal token, skipping",
					"key", key,
					"error", err)
				continue
			}

			token := fromTokenJSON(&j)
			if token.Type == storage.TokenAccess && token.UserID == userID {
				tokens = append(tokens, token)
			}
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	return tokens, nil
}
