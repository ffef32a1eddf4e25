package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// Never set actual credential values (token keys, secrets, session handles,
// signatures) as attributes. Traces are persisted, replicated and visible
// to wider audiences than the production system; record metadata only.
const (
	AttrConsumerKey     = "oauth.consumer_key"     // Consumer identifier (public, non-secret)
	AttrTokenType       = "oauth.token_type"       //nolint:gosec // Lifecycle state, never the token itself
	AttrSignatureMethod = "oauth.signature_method" // Signature method name (HMAC-SHA1, PLAINTEXT)
	AttrProblem         = "oauth.problem"          // Problem code on rejection
	AttrUserID          = "oauth.user_id"          // User identifier

	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	AttrClientIP = "security.client_ip"

	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with an error status (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe).
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe).
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddRequestAttributes adds common signed-request attributes to a span
// (nil-safe). Empty values are skipped.
func AddRequestAttributes(span trace.Span, consumerKey, signatureMethod string) {
	if consumerKey != "" {
		SetSpanAttributes(span, attribute.String(AttrConsumerKey, consumerKey))
	}
	if signatureMethod != "" {
		SetSpanAttributes(span, attribute.String(AttrSignatureMethod, signatureMethod))
	}
}

// AddStorageAttributes adds storage operation attributes to a span
// (nil-safe).
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe).
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}
