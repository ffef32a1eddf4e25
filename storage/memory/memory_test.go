package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oauthsp/oauthsp/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func testToken(key string, tokenType storage.TokenType) *storage.Token {
	tok := &storage.Token{
		Key:          key,
		Secret:       "secret-" + key,
		Type:         tokenType,
		ConsumerKey:  "consumer1",
		UserID:       "user1",
		CreationDate: time.Now(),
		Duration:     3600,
	}
	tok.ResetExpiration()
	return tok
}

func TestConsumerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	consumer := &storage.Consumer{
		Key:    "consumer1",
		Secret: "cs",
		Name:   "Test App",
		Type:   storage.ConsumerWeb,
	}
	if err := s.SaveConsumer(ctx, consumer); err != nil {
		t.Fatalf("SaveConsumer: %v", err)
	}

	got, err := s.FindConsumer(ctx, "consumer1")
	if err != nil {
		t.Fatalf("FindConsumer: %v", err)
	}
	if got.Secret != "cs" || got.Name != "Test App" {
		t.Errorf("FindConsumer returned %+v", got)
	}

	// Returned copy must not alias the stored record.
	got.Secret = "mutated"
	again, err := s.FindConsumer(ctx, "consumer1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Secret != "cs" {
		t.Error("mutating a returned consumer changed the stored record")
	}

	if _, err := s.FindConsumer(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindConsumer(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCreateAndFindToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := testToken("tk1", storage.TokenAccess)
	if err := s.CreateToken(ctx, tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	got, err := s.FindToken(ctx, "consumer1", "tk1")
	if err != nil {
		t.Fatalf("FindToken: %v", err)
	}
	if got.Secret != tok.Secret || got.Type != storage.TokenAccess {
		t.Errorf("FindToken returned %+v", got)
	}

	// Tokens are invisible to other consumers.
	if _, err := s.FindToken(ctx, "consumer2", "tk1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindToken for wrong consumer error = %v, want ErrNotFound", err)
	}

	if err := s.CreateToken(ctx, testToken("tk1", storage.TokenRequested)); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("CreateToken with duplicate key error = %v, want ErrConflict", err)
	}
}

func TestFindRequestedToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateToken(ctx, testToken("req1", storage.TokenRequested)); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateToken(ctx, testToken("acc1", storage.TokenAccess)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.FindRequestedToken(ctx, "req1"); err != nil {
		t.Errorf("FindRequestedToken(req1): %v", err)
	}
	// Only Requested-type tokens are visible here.
	if _, err := s.FindRequestedToken(ctx, "acc1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindRequestedToken(acc1) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateTokenReplacesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateToken(ctx, testToken("old", storage.TokenAuthorized)); err != nil {
		t.Fatal(err)
	}

	next := testToken("new", storage.TokenAccess)
	if err := s.UpdateToken(ctx, "old", next); err != nil {
		t.Fatalf("UpdateToken: %v", err)
	}

	if _, err := s.FindToken(ctx, "consumer1", "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("old key still resolves after update")
	}
	got, err := s.FindToken(ctx, "consumer1", "new")
	if err != nil {
		t.Fatalf("FindToken(new): %v", err)
	}
	if got.Type != storage.TokenAccess {
		t.Errorf("updated token type = %v, want access", got.Type)
	}
}

func TestUpdateTokenConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// prevKey no longer present: a concurrent transition won.
	err := s.UpdateToken(ctx, "gone", testToken("new", storage.TokenAccess))
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("UpdateToken with missing prevKey error = %v, want ErrConflict", err)
	}
}

func TestUpdateTokenRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateToken(ctx, testToken("auth", storage.TokenAuthorized)); err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.UpdateToken(ctx, "auth", testToken("acc", storage.TokenAccess))
		}()
	}
	wg.Wait()

	var winners int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, storage.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestDeleteToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateToken(ctx, testToken("tk1", storage.TokenAccess)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteToken(ctx, "tk1"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if _, err := s.FindToken(ctx, "consumer1", "tk1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("token still resolves after deletion")
	}
	if err := s.DeleteToken(ctx, "tk1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeleteToken error = %v, want ErrNotFound", err)
	}
}

func TestListAccessTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, tok := range []*storage.Token{
		testToken("acc1", storage.TokenAccess),
		testToken("acc2", storage.TokenAccess),
		testToken("req1", storage.TokenRequested),
	} {
		if err := s.CreateToken(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}
	other := testToken("acc3", storage.TokenAccess)
	other.UserID = "user2"
	if err := s.CreateToken(ctx, other); err != nil {
		t.Fatal(err)
	}

	tokens, err := s.ListAccessTokens(ctx, "user1")
	if err != nil {
		t.Fatalf("ListAccessTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("len(tokens) = %d, want 2", len(tokens))
	}
	for _, tok := range tokens {
		if tok.Type != storage.TokenAccess || tok.UserID != "user1" {
			t.Errorf("unexpected token in listing: %+v", tok)
		}
	}
}

func TestInsertNonce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertNonce(ctx, "consumer1", "tk1", "nonce1")
	if err != nil {
		t.Fatalf("InsertNonce: %v", err)
	}
	if !inserted {
		t.Error("first insert reported as duplicate")
	}

	inserted, err = s.InsertNonce(ctx, "consumer1", "tk1", "nonce1")
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate triple reported as newly inserted")
	}

	// Same value under a different scope is a different triple.
	for _, scope := range [][2]string{
		{"consumer2", "tk1"},
		{"consumer1", "tk2"},
		{"consumer1", ""},
	} {
		inserted, err := s.InsertNonce(ctx, scope[0], scope[1], "nonce1")
		if err != nil {
			t.Fatal(err)
		}
		if !inserted {
			t.Errorf("triple (%q, %q) collided with a different scope", scope[0], scope[1])
		}
	}
}

func TestInsertNonceRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const racers = 32
	var wg sync.WaitGroup
	results := make([]bool, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.InsertNonce(ctx, "consumer1", "tk1", "racing-nonce")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = inserted
		}()
	}
	wg.Wait()

	var winners int
	for _, inserted := range results {
		if inserted {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("inserted winners = %d, want exactly 1", winners)
	}
}

func TestNonceCleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertNonce(ctx, "consumer1", "", "old"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertNonce(ctx, "consumer1", "", "fresh"); err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	key := "consumer1" + nonceSeparator + nonceSeparator + "old"
	s.nonces[key] = time.Now().Add(-2 * nonceRetention)
	s.mu.Unlock()

	s.cleanup()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, exists := s.nonces[key]; exists {
		t.Error("expired nonce survived cleanup")
	}
	if len(s.nonces) != 1 {
		t.Errorf("len(nonces) = %d, want 1", len(s.nonces))
	}
}
