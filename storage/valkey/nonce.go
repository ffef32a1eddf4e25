package valkey

import (
	"context"
)

// InsertNonce atomically records the (consumerKey, tokenKey, value) triple
// as a SET NX marker with a TTL. It returns true when the triple was newly
// inserted and false when it already existed.
func (s *Store) InsertNonce(ctx context.Context, consumerKey, tokenKey, value string) (bool, error) {
	key := s.nonceKey(consumerKey, tokenKey, value)

	// SET NX reports an existing key as a nil response.
	err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value("1").Nx().Ex(nonceRetention).Build(),
	).Error()
	if err != nil {
		if isNilError(err) {
			return false, nil
		}
		return false, infraError("insert nonce", err)
	}

	return true, nil
}
