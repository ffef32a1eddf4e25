package oauthsp

import (
	"errors"
	"net/http"
	"testing"
)

func TestProblemError(t *testing.T) {
	err := ErrInvalidSignature("Request signature is invalid")
	if err.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", err.Status)
	}
	if got, want := err.Body(), "oauth_problem=signature_invalid"; got != want {
		t.Errorf("Body() = %q, want %q", got, want)
	}
	if got, want := err.Error(), "signature_invalid: Request signature is invalid"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestProblemFamilies(t *testing.T) {
	tests := []struct {
		err        *ProblemError
		problem    string
		wantStatus int
	}{
		{ErrMissingParameter("x"), ProblemParameterAbsent, http.StatusBadRequest},
		{ErrUnsupportedVersion("x"), ProblemVersionRejected, http.StatusBadRequest},
		{ErrUnsupportedSignatureMethod("x"), ProblemSignatureMethodRejected, http.StatusBadRequest},
		{ErrInvalidConsumer("x"), ProblemConsumerKeyUnknown, http.StatusUnauthorized},
		{ErrInvalidToken("x"), ProblemTokenRejected, http.StatusUnauthorized},
		{ErrInvalidSignature("x"), ProblemSignatureInvalid, http.StatusUnauthorized},
		{ErrNonceUsed("x"), ProblemNonceUsed, http.StatusUnauthorized},
		{ErrInvalidTimestamp("x"), ProblemTimestampRefused, http.StatusUnauthorized},
		{ErrTokenExpired("x"), ProblemTokenExpired, http.StatusUnauthorized},
		{ErrTokenNotRenewable("x"), ProblemTokenNotRenewable, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.problem, func(t *testing.T) {
			if tt.err.Problem != tt.problem {
				t.Errorf("Problem = %q, want %q", tt.err.Problem, tt.problem)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
		})
	}
}

func TestProblemErrorUnwrapsThroughAs(t *testing.T) {
	var pe *ProblemError
	wrapped := error(ErrNonceUsed("This nonce has been already used"))
	if !errors.As(wrapped, &pe) {
		t.Fatal("errors.As failed on a ProblemError")
	}
	if pe.Problem != ProblemNonceUsed {
		t.Errorf("Problem = %q, want %q", pe.Problem, ProblemNonceUsed)
	}
}
