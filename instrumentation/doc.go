// Package instrumentation provides OpenTelemetry instrumentation for the
// oauthsp library.
//
// It exposes metrics and traces across all library layers:
//   - Metrics: counters, histograms and gauges for token lifecycle,
//     request validation, storage operations and HTTP endpoints
//   - Traces: spans for the token endpoints and storage calls
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-provider",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Available Metrics
//
// HTTP layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint} (milliseconds)
//
// Token lifecycle:
//   - oauth.token.issued{consumer_key}
//   - oauth.token.authorized{consumer_key}
//   - oauth.token.exchanged{consumer_key}
//   - oauth.token.renewed{consumer_key}
//   - oauth.token.revoked{consumer_key}
//
// Validation:
//   - oauth.validation.failed{problem} - rejections by problem code
//   - oauth.rate_limit.exceeded - rate limit violations
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} (milliseconds)
//   - storage.size{type} - current entity counts (tokens, consumers, nonces)
//
// # Security Considerations
//
// Never record credential values (token keys, secrets, session handles,
// signatures) as metric labels or span attributes. Consumer keys are
// public identifiers and safe to record; everything else is metadata only.
//
// When instrumentation is disabled, no-op providers are used and the
// overhead is zero.
package instrumentation
