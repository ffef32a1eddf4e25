package oauthsp

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/oauthsp/oauthsp/percent"
	"github.com/oauthsp/oauthsp/storage"
)

// oauthPrefix marks protocol parameters in any of the three sources.
const oauthPrefix = "oauth_"

// Request is the canonical view of an inbound signed request. It gathers
// the three possible parameter sources (Authorization header, query string,
// form body), exposes the oauth_* parameters from the single source with
// priority, and derives the signature base string.
//
// The validation pipeline resolves the consumer and token onto the request;
// before validation both accessors return nil.
type Request struct {
	method string
	scheme string
	host   string
	path   string

	header string // raw Authorization header, "" if absent
	query  url.Values
	body   url.Values // non-nil only for form-encoded bodies

	oauth map[string]string // lazily extracted oauth_* parameters

	remoteIP string

	consumer *storage.Consumer
	token    *storage.Token
}

// SetRemoteIP records the client IP for audit logging. The HTTP handler
// fills it in after proxy-aware extraction.
func (r *Request) SetRemoteIP(ip string) { r.remoteIP = ip }

// RemoteIP returns the client IP recorded on the request, or "".
func (r *Request) RemoteIP() string { return r.remoteIP }

// ParseRequest builds a Request from an *http.Request. The body is
// consulted only when its content type is form-urlencoded.
func ParseRequest(r *http.Request) (*Request, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	var body url.Values
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") && len(r.PostForm) > 0 {
		body = r.PostForm
	}

	return &Request{
		method: r.Method,
		scheme: scheme,
		host:   r.Host,
		path:   r.URL.Path,
		header: r.Header.Get("Authorization"),
		query:  r.URL.Query(),
		body:   body,
	}, nil
}

// NewRequest builds a Request directly from its parts. It exists for tests
// and for embedding outside net/http; rawURL carries scheme, host and path.
func NewRequest(method, rawURL, authorization string, query, body url.Values) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = u.Query()
	}
	return &Request{
		method: method,
		scheme: u.Scheme,
		host:   u.Host,
		path:   u.Path,
		header: authorization,
		query:  query,
		body:   body,
	}, nil
}

// Consumer returns the consumer resolved by validation, or nil.
func (r *Request) Consumer() *storage.Consumer { return r.consumer }

// Token returns the token resolved by validation, or nil. Consumer-only
// requests legitimately carry no token.
func (r *Request) Token() *storage.Token { return r.token }

func (r *Request) hasOAuthHeader() bool {
	return strings.Contains(r.header, "OAuth")
}

// IsOAuth reports whether any of the three sources carries an
// oauth_consumer_key.
func (r *Request) IsOAuth() bool {
	return r.hasOAuthHeader() ||
		r.query.Has(oauthPrefix+"consumer_key") ||
		(r.body != nil && r.body.Has(oauthPrefix+"consumer_key"))
}

// OAuth returns the oauth_* parameters from whichever single source has
// priority: header first, then query, then body. The oauth_ prefix is
// stripped and values are percent-decoded. Sources are never merged; the
// protocol authenticates from a single origin.
func (r *Request) OAuth() map[string]string {
	if r.oauth != nil {
		return r.oauth
	}

	switch {
	case r.hasOAuthHeader():
		r.oauth = oauthFromHeader(r.header)
	case r.query.Has(oauthPrefix + "consumer_key"):
		r.oauth = oauthFromValues(r.query)
	case r.body != nil && r.body.Has(oauthPrefix+"consumer_key"):
		r.oauth = oauthFromValues(r.body)
	default:
		r.oauth = map[string]string{}
	}

	return r.oauth
}

// OAuthParameter returns the oauth_ parameter with the given name (prefix
// stripped), reporting whether it was present. This is the accessor the
// signature package consumes.
func (r *Request) OAuthParameter(name string) (string, bool) {
	v, ok := r.OAuth()[name]
	return v, ok
}

// ConsumerSecret returns the resolved consumer's secret, for signing.
func (r *Request) ConsumerSecret() string {
	if r.consumer == nil {
		return ""
	}
	return r.consumer.Secret
}

// TokenSecret returns the resolved token's secret, or "" for consumer-only
// requests.
func (r *Request) TokenSecret() string {
	if r.token == nil {
		return ""
	}
	return r.token.Secret
}

// oauthFromHeader extracts oauth_* parameters from a comma-separated
// Authorization header. The scheme token and realm are ignored; values are
// unquoted and percent-decoded.
func oauthFromHeader(header string) map[string]string {
	rest := strings.TrimSpace(header)
	if after, found := strings.CutPrefix(rest, "OAuth"); found {
		rest = after
	}

	oauth := make(map[string]string)
	for _, param := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok {
			continue
		}
		if name, found := strings.CutPrefix(k, oauthPrefix); found {
			oauth[name] = percent.Decode(strings.Trim(v, `"`))
		}
	}
	return oauth
}

// oauthFromValues extracts oauth_* parameters from an already-parsed
// parameter set. Values get one more percent-decoding pass on top of the
// transport decoding, matching what signing clients produce.
func oauthFromValues(values url.Values) map[string]string {
	oauth := make(map[string]string)
	for k := range values {
		if name, found := strings.CutPrefix(k, oauthPrefix); found {
			oauth[name] = percent.Decode(values.Get(k))
		}
	}
	return oauth
}

// BaseURI returns scheme://host/path with the host lowercased and no query
// string or fragment.
func (r *Request) BaseURI() string {
	return r.scheme + "://" + strings.ToLower(r.host) + r.path
}

// NormalizedParameters returns the canonical parameter string that gets
// signed: header-sourced oauth_* parameters (except the signature itself)
// combined with the body parameters when the body is form-encoded,
// otherwise the query parameters. Pairs are percent-encoded, sorted by the
// byte value of the encoded key with ties broken by encoded value, and
// &-joined.
func (r *Request) NormalizedParameters() string {
	type pair struct{ k, v string }
	var pairs []pair

	if r.hasOAuthHeader() {
		for k, v := range oauthFromHeader(r.header) {
			if k == "signature" {
				continue
			}
			pairs = append(pairs, pair{percent.Encode(oauthPrefix + k), percent.Encode(v)})
		}
	}

	sources := []url.Values{r.query}
	if r.body != nil {
		sources = []url.Values{r.body, r.query}
	}
	for _, values := range sources {
		for k, vs := range values {
			if k == oauthPrefix+"signature" {
				continue
			}
			for _, v := range vs {
				pairs = append(pairs, pair{percent.Encode(k), percent.Encode(v)})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(p.v)
	}
	return b.String()
}

// SignatureBaseString returns METHOD&Encode(baseURI)&Encode(normalized),
// with the method verb unmodified.
func (r *Request) SignatureBaseString() string {
	return r.method + "&" + percent.Encode(r.BaseURI()) + "&" + percent.Encode(r.NormalizedParameters())
}
