package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the library.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Token lifecycle
	TokenIssued     metric.Int64Counter
	TokenAuthorized metric.Int64Counter
	TokenExchanged  metric.Int64Counter
	TokenRenewed    metric.Int64Counter
	TokenRevoked    metric.Int64Counter

	// Validation and security
	ValidationFailed  metric.Int64Counter
	RateLimitExceeded metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageTokensCount       metric.Int64ObservableGauge
	StorageConsumersCount    metric.Int64ObservableGauge
	StorageNoncesCount       metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"oauth.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	lifecycle := []struct {
		counter *metric.Int64Counter
		name    string
		desc    string
		unit    string
	}{
		{&m.TokenIssued, "oauth.token.issued", "Number of request tokens issued", "{token}"},
		{&m.TokenAuthorized, "oauth.token.authorized", "Number of request tokens authorized by users", "{token}"},
		{&m.TokenExchanged, "oauth.token.exchanged", "Number of authorized tokens exchanged for access tokens", "{exchange}"},
		{&m.TokenRenewed, "oauth.token.renewed", "Number of access tokens renewed", "{renewal}"},
		{&m.TokenRevoked, "oauth.token.revoked", "Number of tokens revoked", "{revocation}"},
	}
	for _, c := range lifecycle {
		*c.counter, err = serverMeter.Int64Counter(
			c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.ValidationFailed, err = securityMeter.Int64Counter(
		"oauth.validation.failed",
		metric.WithDescription("Number of signed requests rejected, by problem code"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation.failed counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"oauth.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"oauth.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	gauges := []struct {
		gauge *metric.Int64ObservableGauge
		name  string
		desc  string
	}{
		{&m.StorageTokensCount, "storage.size.tokens", "Current number of stored tokens"},
		{&m.StorageConsumersCount, "storage.size.consumers", "Current number of registered consumers"},
		{&m.StorageNoncesCount, "storage.size.nonces", "Current number of tracked nonces"},
	}
	for _, g := range gauges {
		*g.gauge, err = storageMeter.Int64ObservableGauge(
			g.name,
			metric.WithDescription(g.desc),
			metric.WithUnit("{entity}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s gauge: %w", g.name, err)
		}
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordTokenIssued records the issuance of a request token.
func (m *Metrics) RecordTokenIssued(ctx context.Context, consumerKey string) {
	m.TokenIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consumer_key", consumerKey),
	))
}

// RecordTokenAuthorized records a user approving a request token.
func (m *Metrics) RecordTokenAuthorized(ctx context.Context, consumerKey string) {
	m.TokenAuthorized.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consumer_key", consumerKey),
	))
}

// RecordTokenExchanged records an authorized token being exchanged.
func (m *Metrics) RecordTokenExchanged(ctx context.Context, consumerKey string) {
	m.TokenExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consumer_key", consumerKey),
	))
}

// RecordTokenRenewed records an access token renewal.
func (m *Metrics) RecordTokenRenewed(ctx context.Context, consumerKey string) {
	m.TokenRenewed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consumer_key", consumerKey),
	))
}

// RecordTokenRevoked records a token revocation.
func (m *Metrics) RecordTokenRevoked(ctx context.Context, consumerKey string) {
	m.TokenRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consumer_key", consumerKey),
	))
}

// RecordValidationFailure records a rejected signed request by problem code.
func (m *Metrics) RecordValidationFailure(ctx context.Context, problem string) {
	m.ValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("problem", problem),
	))
}

// RecordRateLimitExceeded records a rate limit violation.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context) {
	m.RateLimitExceeded.Add(ctx, 1)
}

// RecordAuditEvent records an audit event.
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
