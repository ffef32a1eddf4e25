package oauthsp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/oauthsp/oauthsp/security"
	"github.com/oauthsp/oauthsp/signature"
	"github.com/oauthsp/oauthsp/storage"
	"github.com/oauthsp/oauthsp/storage/memory"
)

func newTestServer(t *testing.T, consumers ...*storage.Consumer) (*Server, *memory.Store) {
	t.Helper()

	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(store.Stop)

	for _, c := range consumers {
		if err := store.SaveConsumer(context.Background(), c); err != nil {
			t.Fatalf("SaveConsumer: %v", err)
		}
	}

	srv, err := NewServer(store, store, store, &Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, store
}

func testConsumer() *storage.Consumer {
	return &storage.Consumer{
		Key:    "dpf43f3p2l4k3l03",
		Secret: "kd94hf93k423kf44",
		Name:   "Example Printer",
		Type:   storage.ConsumerWeb,
	}
}

// signedQuery builds the query parameters of an HMAC-SHA1 signed request
// for the given URL. Overrides apply before signing; an empty override
// value deletes the parameter, and an explicit oauth_signature override
// suppresses signing.
func signedQuery(t *testing.T, rawURL string, consumer *storage.Consumer, token *storage.Token, overrides map[string]string) url.Values {
	t.Helper()

	q := url.Values{}
	q.Set("oauth_consumer_key", consumer.Key)
	q.Set("oauth_signature_method", "HMAC-SHA1")
	q.Set("oauth_timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	q.Set("oauth_nonce", security.RandomCredential())
	if token != nil {
		q.Set("oauth_token", token.Key)
	}

	presigned := false
	for k, v := range overrides {
		if v == "" {
			q.Del(k)
			continue
		}
		q.Set(k, v)
		if k == "oauth_signature" {
			presigned = true
		}
	}

	if !presigned {
		base, err := NewRequest("GET", rawURL, "", q, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		base.consumer = consumer
		base.token = token
		q.Set("oauth_signature", signature.Compute(signature.HMACSHA1{}, base))
	}
	return q
}

// signedRequest builds a query-carried signed request.
func signedRequest(t *testing.T, consumer *storage.Consumer, token *storage.Token, overrides map[string]string) *Request {
	t.Helper()

	const rawURL = "http://sp.example.net/token"
	q := signedQuery(t, rawURL, consumer, token, overrides)
	r, err := NewRequest("GET", rawURL, "", q, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return r
}

func assertProblem(t *testing.T, err error, problem string) {
	t.Helper()
	var pe *ProblemError
	if !errors.As(err, &pe) {
		t.Fatalf("got error %v, want problem %q", err, problem)
	}
	if pe.Problem != problem {
		t.Errorf("problem = %q, want %q", pe.Problem, problem)
	}
}

func TestValidateConsumerOnly(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	r := signedRequest(t, consumer, nil, nil)
	if err := srv.Validate(t.Context(), r); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.Consumer() == nil || r.Consumer().Key != consumer.Key {
		t.Error("consumer not resolved onto the request")
	}
	if r.Token() != nil {
		t.Error("token resolved on a consumer-only request")
	}
}

func TestValidateVersion(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	r := signedRequest(t, consumer, nil, map[string]string{"oauth_version": "1.0"})
	if err := srv.Validate(t.Context(), r); err != nil {
		t.Fatalf("Validate with version 1.0: %v", err)
	}

	r = signedRequest(t, consumer, nil, map[string]string{"oauth_version": "2.0"})
	assertProblem(t, srv.Validate(t.Context(), r), ProblemVersionRejected)
}

func TestValidateTimestamp(t *testing.T) {
	consumer := testConsumer()
	now := time.Now().Unix()

	tests := []struct {
		name      string
		timestamp string
		problem   string
	}{
		{"missing", "", ProblemTimestampRefused},
		{"not a number", "yesterday", ProblemTimestampRefused},
		{"100s old", strconv.FormatInt(now-100, 10), ""},
		{"100s ahead", strconv.FormatInt(now+100, 10), ""},
		{"200s old", strconv.FormatInt(now-200, 10), ProblemTimestampRefused},
		{"200s ahead", strconv.FormatInt(now+200, 10), ProblemTimestampRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, consumer)
			r := signedRequest(t, consumer, nil, map[string]string{"oauth_timestamp": tt.timestamp})
			err := srv.Validate(t.Context(), r)
			if tt.problem == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			assertProblem(t, err, tt.problem)
		})
	}
}

func TestValidateConsumerUnknown(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	stranger := &storage.Consumer{Key: "nobody", Secret: "nothing"}
	r := signedRequest(t, stranger, nil, nil)
	assertProblem(t, srv.Validate(t.Context(), r), ProblemConsumerKeyUnknown)

	r = signedRequest(t, consumer, nil, map[string]string{"oauth_consumer_key": ""})
	assertProblem(t, srv.Validate(t.Context(), r), ProblemConsumerKeyUnknown)
}

func TestValidateTokenUnknown(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	ghost := &storage.Token{Key: "nosuchtoken", Secret: "nosuchsecret"}
	r := signedRequest(t, consumer, ghost, nil)
	assertProblem(t, srv.Validate(t.Context(), r), ProblemTokenRejected)
}

func TestValidateTokenScopedToConsumer(t *testing.T) {
	owner := testConsumer()
	other := &storage.Consumer{Key: "other-consumer", Secret: "other-secret"}
	srv, store := newTestServer(t, owner, other)

	token := &storage.Token{
		Key:          "tok",
		Secret:       "toksecret",
		Type:         storage.TokenAccess,
		ConsumerKey:  owner.Key,
		CreationDate: time.Now(),
		Duration:     3600,
	}
	token.ResetExpiration()
	if err := store.CreateToken(t.Context(), token); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	r := signedRequest(t, other, token, nil)
	assertProblem(t, srv.Validate(t.Context(), r), ProblemTokenRejected)
}

func TestValidateNonceReplay(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	nonce := map[string]string{"oauth_nonce": "kllo9940pd9333jh"}
	if err := srv.Validate(t.Context(), signedRequest(t, consumer, nil, nonce)); err != nil {
		t.Fatalf("first use: %v", err)
	}
	assertProblem(t, srv.Validate(t.Context(), signedRequest(t, consumer, nil, nonce)), ProblemNonceUsed)
}

func TestValidateNonceMissing(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	r := signedRequest(t, consumer, nil, map[string]string{"oauth_nonce": ""})
	assertProblem(t, srv.Validate(t.Context(), r), ProblemNonceUsed)
}

func TestValidateSignatureMethodRejected(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	r := signedRequest(t, consumer, nil, map[string]string{
		"oauth_signature_method": "RSA-SHA1",
		"oauth_signature":        "whatever",
	})
	assertProblem(t, srv.Validate(t.Context(), r), ProblemSignatureMethodRejected)
}

func TestValidateSignatureInvalid(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	r := signedRequest(t, consumer, nil, map[string]string{"oauth_signature": "bm90IGEgc2lnbmF0dXJl"})
	assertProblem(t, srv.Validate(t.Context(), r), ProblemSignatureInvalid)
}

func TestValidatePlaintext(t *testing.T) {
	consumer := testConsumer()
	srv, _ := newTestServer(t, consumer)

	q := url.Values{}
	q.Set("oauth_consumer_key", consumer.Key)
	q.Set("oauth_signature_method", "PLAINTEXT")
	q.Set("oauth_timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	q.Set("oauth_nonce", security.RandomCredential())

	base, err := NewRequest("GET", "http://sp.example.net/token", "", q, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	base.consumer = consumer
	q.Set("oauth_signature", signature.Compute(signature.Plaintext{}, base))

	r, err := NewRequest("GET", "http://sp.example.net/token", "", q, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if err := srv.Validate(t.Context(), r); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateAccessRequiresAccessToken(t *testing.T) {
	consumer := testConsumer()
	srv, store := newTestServer(t, consumer)

	requested := &storage.Token{
		Key:          "reqtok",
		Secret:       "reqsecret",
		Type:         storage.TokenRequested,
		ConsumerKey:  consumer.Key,
		CreationDate: time.Now(),
		Duration:     3600,
	}
	requested.ResetExpiration()
	if err := store.CreateToken(t.Context(), requested); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	r := signedRequest(t, consumer, requested, nil)
	assertProblem(t, srv.ValidateAccess(t.Context(), r), ProblemTokenRejected)
}

func TestValidateAccessExpired(t *testing.T) {
	consumer := testConsumer()
	srv, store := newTestServer(t, consumer)

	expired := &storage.Token{
		Key:          "oldtok",
		Secret:       "oldsecret",
		Type:         storage.TokenAccess,
		ConsumerKey:  consumer.Key,
		CreationDate: time.Now().Add(-2 * time.Hour),
		Duration:     3600,
	}
	expired.ResetExpiration()
	if err := store.CreateToken(t.Context(), expired); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	r := signedRequest(t, consumer, expired, nil)
	assertProblem(t, srv.ValidateAccess(t.Context(), r), ProblemTokenExpired)
}
