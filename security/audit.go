package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. User IDs are
// hashed before logging; token keys are logged only as short prefixes by
// callers.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type        string
	ConsumerKey string
	UserID      string
	IPAddress   string
	Details     map[string]any
	Timestamp   time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"consumer_key", event.ConsumerKey,
		"user_id_hash", hashForLogging(event.UserID),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs the issuance of a request token.
func (a *Auditor) LogTokenIssued(consumerKey, ipAddress, tokenPrefix string) {
	a.LogEvent(Event{
		Type:        "token_issued",
		ConsumerKey: consumerKey,
		IPAddress:   ipAddress,
		Details: map[string]any{
			"token_prefix": tokenPrefix,
		},
	})
}

// LogTokenAuthorized logs a user approving a request token.
func (a *Auditor) LogTokenAuthorized(consumerKey, userID, tokenPrefix string) {
	a.LogEvent(Event{
		Type:        "token_authorized",
		ConsumerKey: consumerKey,
		UserID:      userID,
		Details: map[string]any{
			"token_prefix": tokenPrefix,
		},
	})
}

// LogTokenExchanged logs an authorized token being exchanged for an access
// token.
func (a *Auditor) LogTokenExchanged(consumerKey, userID, ipAddress string) {
	a.LogEvent(Event{
		Type:        "token_exchanged",
		ConsumerKey: consumerKey,
		UserID:      userID,
		IPAddress:   ipAddress,
	})
}

// LogTokenRenewed logs a successful access token renewal.
func (a *Auditor) LogTokenRenewed(consumerKey, userID, ipAddress string) {
	a.LogEvent(Event{
		Type:        "token_renewed",
		ConsumerKey: consumerKey,
		UserID:      userID,
		IPAddress:   ipAddress,
	})
}

// LogTokenRevoked logs a token deletion initiated by its owning user.
func (a *Auditor) LogTokenRevoked(consumerKey, userID string) {
	a.LogEvent(Event{
		Type:        "token_revoked",
		ConsumerKey: consumerKey,
		UserID:      userID,
	})
}

// LogValidationFailure logs a rejected signed request with its problem
// code.
func (a *Auditor) LogValidationFailure(consumerKey, ipAddress, problem string) {
	a.LogEvent(Event{
		Type:        "validation_failure",
		ConsumerKey: consumerKey,
		IPAddress:   ipAddress,
		Details: map[string]any{
			"problem": problem,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
