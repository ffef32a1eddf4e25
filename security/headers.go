package security

import "net/http"

// SetSecurityHeaders sets defensive headers on token endpoint responses.
// Token credentials must never be cached or rendered, so the policy is as
// strict as it gets: no framing, no sniffing, no referrers, no caching.
func SetSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
