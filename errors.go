package oauthsp

import (
	"fmt"
	"net/http"
)

// Problem codes carried on the wire as oauth_problem=<code>. They are
// stable machine-readable tokens; never change one once published.
const (
	ProblemParameterAbsent         = "parameter_absent"
	ProblemVersionRejected         = "version_rejected"
	ProblemSignatureMethodRejected = "signature_method_rejected"
	ProblemConsumerKeyUnknown      = "consumer_key_unknown"
	ProblemTokenRejected           = "token_rejected"
	ProblemSignatureInvalid        = "signature_invalid"
	ProblemNonceUsed               = "nonce_used"
	ProblemTimestampRefused        = "timestamp_refused"
	ProblemTokenExpired            = "token_expired"
	ProblemTokenNotRenewable       = "token_not_renewable"
)

// ProblemError is a protocol-level rejection. The two families are
// bad-request problems (HTTP 400: malformed input the caller can fix) and
// authorization problems (HTTP 401: credential or identity failures).
// Infrastructure failures are never a ProblemError; they surface as plain
// errors and map to HTTP 503.
type ProblemError struct {
	Problem     string // stable problem code (e.g. "signature_invalid")
	Description string // human-readable default message
	Status      int    // HTTP status code
}

// Error implements the error interface.
func (e *ProblemError) Error() string {
	return fmt.Sprintf("%s: %s", e.Problem, e.Description)
}

// Body returns the wire form of the problem: oauth_problem=<code>.
func (e *ProblemError) Body() string {
	return "oauth_problem=" + e.Problem
}

// NewProblemError creates a new protocol error.
func NewProblemError(problem, description string, status int) *ProblemError {
	return &ProblemError{
		Problem:     problem,
		Description: description,
		Status:      status,
	}
}

// Common protocol errors as constructors over the problem taxonomy.
var (
	// ErrMissingParameter indicates a required oauth_* parameter is absent.
	ErrMissingParameter = func(desc string) *ProblemError {
		return NewProblemError(ProblemParameterAbsent, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedVersion indicates an oauth_version other than "1.0".
	ErrUnsupportedVersion = func(desc string) *ProblemError {
		return NewProblemError(ProblemVersionRejected, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedSignatureMethod indicates an unknown oauth_signature_method.
	ErrUnsupportedSignatureMethod = func(desc string) *ProblemError {
		return NewProblemError(ProblemSignatureMethodRejected, desc, http.StatusBadRequest)
	}

	// ErrInvalidConsumer indicates the consumer key resolved to nothing.
	ErrInvalidConsumer = func(desc string) *ProblemError {
		return NewProblemError(ProblemConsumerKeyUnknown, desc, http.StatusUnauthorized)
	}

	// ErrInvalidToken indicates the token is unknown, of the wrong type, or
	// otherwise unusable for the attempted operation.
	ErrInvalidToken = func(desc string) *ProblemError {
		return NewProblemError(ProblemTokenRejected, desc, http.StatusUnauthorized)
	}

	// ErrInvalidSignature indicates the request signature did not verify.
	ErrInvalidSignature = func(desc string) *ProblemError {
		return NewProblemError(ProblemSignatureInvalid, desc, http.StatusUnauthorized)
	}

	// ErrNonceUsed indicates the (consumer, token, nonce) triple was replayed.
	ErrNonceUsed = func(desc string) *ProblemError {
		return NewProblemError(ProblemNonceUsed, desc, http.StatusUnauthorized)
	}

	// ErrInvalidTimestamp indicates a missing, malformed, or out-of-window
	// oauth_timestamp.
	ErrInvalidTimestamp = func(desc string) *ProblemError {
		return NewProblemError(ProblemTimestampRefused, desc, http.StatusUnauthorized)
	}

	// ErrTokenExpired indicates an access token past its expiration date.
	ErrTokenExpired = func(desc string) *ProblemError {
		return NewProblemError(ProblemTokenExpired, desc, http.StatusUnauthorized)
	}

	// ErrTokenNotRenewable indicates a renewal attempt outside the renewal
	// policy: wrong type, can_renew unset, or past the renewal window.
	ErrTokenNotRenewable = func(desc string) *ProblemError {
		return NewProblemError(ProblemTokenNotRenewable, desc, http.StatusUnauthorized)
	}
)
