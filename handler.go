package oauthsp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/oauthsp/oauthsp/security"
	"github.com/oauthsp/oauthsp/storage"
)

type contextKey string

const (
	consumerContextKey contextKey = "oauth_consumer"
	tokenContextKey    contextKey = "oauth_token"
)

// Handler exposes the two protocol endpoints over net/http and a middleware
// for protected resources. Authorization and revocation have no wire shape
// in the protocol; a deployment's UI calls the Server methods directly.
type Handler struct {
	server      *Server
	rateLimiter *security.RateLimiter
}

// NewHandler wraps a Server for HTTP serving. It starts the rate limiter
// when the server's configuration enables one; call Close to stop it.
func NewHandler(server *Server) *Handler {
	h := &Handler{server: server}

	cfg := server.Config()
	if cfg.RateLimit.Enabled {
		h.rateLimiter = security.NewRateLimiter(
			cfg.RateLimit.RequestsPerSecond,
			cfg.RateLimit.Burst,
			cfg.Logger,
		)
	}
	return h
}

// Close stops the handler's background resources.
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// RequestToken is the request-token endpoint. A valid consumer-signed
// request receives fresh temporary credentials.
func (h *Handler) RequestToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w)

	req, ok := h.admit(w, r, "request_token", start)
	if !ok {
		return
	}

	token, err := h.server.IssueRequestToken(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "request_token", err, start)
		return
	}

	h.writeToken(w, r, "request_token", token, start)
}

// AccessToken is the access-token endpoint, serving both the exchange of an
// authorized token and the renewal of an access token.
func (h *Handler) AccessToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w)

	req, ok := h.admit(w, r, "access_token", start)
	if !ok {
		return
	}

	token, err := h.server.AccessToken(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "access_token", err, start)
		return
	}

	h.writeToken(w, r, "access_token", token, start)
}

// RequireAccessToken wraps a protected-resource handler. The inner handler
// runs only for requests signed with a live access token, and can read the
// resolved consumer and token from the request context.
func (h *Handler) RequireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		security.SetSecurityHeaders(w)

		req, ok := h.admit(w, r, "protected", start)
		if !ok {
			return
		}

		if err := h.server.ValidateAccess(r.Context(), req); err != nil {
			h.server.recordValidationFailure(r.Context(), req, err)
			h.writeError(w, r, "protected", err, start)
			return
		}

		ctx := context.WithValue(r.Context(), consumerContextKey, req.Consumer())
		ctx = context.WithValue(ctx, tokenContextKey, req.Token())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ConsumerFromContext returns the consumer resolved by RequireAccessToken.
func ConsumerFromContext(ctx context.Context) (*storage.Consumer, bool) {
	c, ok := ctx.Value(consumerContextKey).(*storage.Consumer)
	return c, ok
}

// TokenFromContext returns the access token resolved by RequireAccessToken.
func TokenFromContext(ctx context.Context) (*storage.Token, bool) {
	t, ok := ctx.Value(tokenContextKey).(*storage.Token)
	return t, ok
}

// admit runs the shared front half of every endpoint: rate limiting by
// client IP and parsing the signed request. It writes the response itself
// when admission fails.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, endpoint string, start time.Time) (*Request, bool) {
	cfg := h.server.Config()
	clientIP := security.GetClientIP(r, cfg.Security.TrustProxy, cfg.Security.TrustedProxyCount)

	if h.rateLimiter != nil && !h.rateLimiter.Allow(clientIP) {
		h.server.auditor.LogRateLimitExceeded(clientIP)
		if h.server.inst != nil {
			h.server.inst.Metrics().RecordRateLimitExceeded(r.Context())
		}
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		h.recordHTTP(r, endpoint, http.StatusTooManyRequests, start)
		return nil, false
	}

	req, err := ParseRequest(r)
	if err != nil {
		h.writeError(w, r, endpoint, ErrMissingParameter("Malformed request"), start)
		return nil, false
	}
	req.SetRemoteIP(clientIP)
	return req, true
}

// writeToken writes a successful token response.
func (h *Handler) writeToken(w http.ResponseWriter, r *http.Request, endpoint string, token *storage.Token, start time.Time) {
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(EncodeTokenResponse(token)))
	h.recordHTTP(r, endpoint, http.StatusOK, start)
}

// writeError maps an error to its wire shape: a ProblemError carries its
// own status and oauth_problem body, anything else is an infrastructure
// failure reported as 503.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, endpoint string, err error, start time.Time) {
	cfg := h.server.Config()

	var problem *ProblemError
	if errors.As(err, &problem) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.WriteHeader(problem.Status)
		_, _ = w.Write([]byte(problem.Body()))
		h.recordHTTP(r, endpoint, problem.Status, start)
		return
	}

	cfg.Logger.Error("Endpoint failed",
		"endpoint", endpoint,
		"error", err)
	http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	h.recordHTTP(r, endpoint, http.StatusServiceUnavailable, start)
}

func (h *Handler) recordHTTP(r *http.Request, endpoint string, status int, start time.Time) {
	if h.server.inst == nil {
		return
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	h.server.inst.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint, status, durationMs)
}
