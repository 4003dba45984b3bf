package automation

import (
	"errors"
	"fmt"

	"github.com/nexconsult/sri-invoices/internal/models"
)

// TransientUIError means an expected element or navigation did not appear in
// time. It is retried at the login step level.
type TransientUIError struct {
	State      LoginState
	Element    string
	Screenshot string
	Err        error
}

func (e *TransientUIError) Error() string {
	return fmt.Sprintf("%s: waiting for %s: %v", e.State, e.Element, e.Err)
}

func (e *TransientUIError) Unwrap() error { return e.Err }

// ChallengeRejectedError means the portal showed an explicit challenge
// rejection after a submit.
type ChallengeRejectedError struct {
	Attempt int
	Message string
}

func (e *ChallengeRejectedError) Error() string {
	return fmt.Sprintf("challenge rejected on attempt %d: %s", e.Attempt, e.Message)
}

// SolverFailureError means the external solver produced no usable token.
type SolverFailureError struct {
	Err error
}

func (e *SolverFailureError) Error() string {
	return fmt.Sprintf("external solver failed: %v", e.Err)
}

func (e *SolverFailureError) Unwrap() error { return e.Err }

// PersistenceError means a store rejected a read or write for one document.
type PersistenceError struct {
	AccessKey string
	Type      models.DocumentType
	Op        string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.AccessKey, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.AccessKey, e.Type, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NetworkError means a navigation or resource fetch failed.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrInvalidCredentials is returned when the login form reports bad
// credentials. It is never retried.
var ErrInvalidCredentials = errors.New("portal rejected the credentials")

// ErrNotAuthenticated is returned by operations that need a logged-in session.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// OperationFailedError is what a failed operation surfaces to the caller,
// with enough context to diagnose which path failed.
type OperationFailedError struct {
	Outcome    models.Outcome
	State      string
	Attempts   int
	Screenshot string
	// LocalRetriesExhausted is set when every interactive attempt was
	// rejected before the solver path ran.
	LocalRetriesExhausted bool
	// SolverErr is the fallback failure, nil when the fallback token was
	// accepted by the solver but rejected by the portal.
	SolverErr error
	Err       error
}

func (e *OperationFailedError) Error() string {
	msg := fmt.Sprintf("%s in %s after %d attempts", e.Outcome, e.State, e.Attempts)
	if e.LocalRetriesExhausted {
		msg += "; local retries exhausted"
	}
	if e.SolverErr != nil {
		msg += fmt.Sprintf("; solver: %v", e.SolverErr)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *OperationFailedError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.SolverErr != nil {
		errs = append(errs, e.SolverErr)
	}
	return errs
}

// AsOperationFailed unwraps err into an *OperationFailedError.
func AsOperationFailed(err error) (*OperationFailedError, bool) {
	var op *OperationFailedError
	ok := errors.As(err, &op)
	return op, ok
}
