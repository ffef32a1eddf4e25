package signature

import (
	"encoding/base64"
	"errors"
	"testing"
)

// fakeRequest is a minimal Request implementation for exercising methods
// without the full canonicalizer.
type fakeRequest struct {
	baseString     string
	consumerSecret string
	tokenSecret    string
	params         map[string]string
}

func (f *fakeRequest) SignatureBaseString() string { return f.baseString }
func (f *fakeRequest) ConsumerSecret() string      { return f.consumerSecret }
func (f *fakeRequest) TokenSecret() string         { return f.tokenSecret }

func (f *fakeRequest) OAuthParameter(name string) (string, bool) {
	v, ok := f.params[name]
	return v, ok
}

func TestHMACSHA1Sign(t *testing.T) {
	// Golden digests from RFC 5849 appendix examples.
	tests := []struct {
		name       string
		key        string
		baseString string
		want       string
	}{
		{
			name:       "consumer secret only",
			key:        "cs&",
			baseString: "bs",
			want:       "egQqG5AJep5sJ7anhXju1unge2I=",
		},
		{
			name:       "consumer and token secret",
			key:        "cs&ts",
			baseString: "bs",
			want:       "VZVjXceV7JgPq/dOTnNmEfO0Fv8=",
		},
		{
			name: "reference request",
			key:  "kd94hf93k423kf44&pfkkdhi9sl3r4s00",
			baseString: "GET&http%3A%2F%2Fphotos.example.net%2Fphotos&file" +
				"%3Dvacation.jpg%26oauth_consumer_key%3Ddpf43f3p2l4k3l03%26" +
				"oauth_nonce%3Dkllo9940pd9333jh%26oauth_signature_method%3D" +
				"HMAC-SHA1%26oauth_timestamp%3D1191242096%26oauth_token%3Dn" +
				"nch734d00sl2jdk%26oauth_version%3D1.0%26size%3Doriginal",
			want: "tR3+Ty81lMeYAr/Fid0kMTYa/WM=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base64.StdEncoding.EncodeToString(HMACSHA1{}.Sign(tt.key, tt.baseString))
			if got != tt.want {
				t.Errorf("Sign(%q, %q) = %q, want %q", tt.key, tt.baseString, got, tt.want)
			}
		})
	}
}

func TestSigningKey(t *testing.T) {
	tests := []struct {
		name string
		req  *fakeRequest
		want string
	}{
		{
			name: "no token",
			req:  &fakeRequest{consumerSecret: "cs"},
			want: "cs&",
		},
		{
			name: "with token",
			req:  &fakeRequest{consumerSecret: "cs", tokenSecret: "ts"},
			want: "cs&ts",
		},
		{
			name: "secrets are percent-encoded",
			req:  &fakeRequest{consumerSecret: "c s", tokenSecret: "t&s"},
			want: "c%20s&t%26s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SigningKey(tt.req); got != tt.want {
				t.Errorf("SigningKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaintextCompute(t *testing.T) {
	req := &fakeRequest{consumerSecret: "cs", tokenSecret: "ts"}
	want := base64.StdEncoding.EncodeToString([]byte("cs&ts"))
	if got := Compute(Plaintext{}, req); got != want {
		t.Errorf("Compute(Plaintext) = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	base := &fakeRequest{consumerSecret: "cs", tokenSecret: "ts"}

	t.Run("missing signature parameter", func(t *testing.T) {
		req := *base
		req.params = nil
		if Validate(Plaintext{}, &req) {
			t.Error("Validate() = true for request without oauth_signature")
		}
	})

	t.Run("matching signature", func(t *testing.T) {
		req := *base
		req.params = map[string]string{"signature": Compute(Plaintext{}, base)}
		if !Validate(Plaintext{}, &req) {
			t.Error("Validate() = false for correct signature")
		}
	})

	t.Run("mismatched signature", func(t *testing.T) {
		req := *base
		req.params = map[string]string{"signature": "bogus"}
		if Validate(Plaintext{}, &req) {
			t.Error("Validate() = true for wrong signature")
		}
	})

	t.Run("hmac over base string", func(t *testing.T) {
		req := *base
		req.baseString = "bs"
		req.consumerSecret = "cs"
		req.tokenSecret = ""
		req.params = map[string]string{"signature": "egQqG5AJep5sJ7anhXju1unge2I="}
		if !Validate(HMACSHA1{}, &req) {
			t.Error("Validate() = false for golden HMAC-SHA1 signature")
		}
	})
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	for _, name := range []string{"HMAC-SHA1", "PLAINTEXT"} {
		m, err := r.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", name, err)
		}
		if m.Name() != name {
			t.Errorf("Lookup(%q).Name() = %q", name, m.Name())
		}
	}

	if _, err := r.Lookup("RSA-SHA1"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("Lookup(unregistered) error = %v, want ErrUnknownMethod", err)
	}
	if _, err := r.Lookup(""); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("Lookup(empty) error = %v, want ErrUnknownMethod", err)
	}
}
