// Package common defines shared constants and sentinel errors used across
// the credport server. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// ErrUnauthenticated covers every bad, expired, revoked or wrong-kind
	// token. Its message is the only one ever shown to a caller.
	ErrUnauthenticated = errors.New("invalid or expired token")

	// ErrInvalidCredentials is the single answer to a failed login, whether
	// the user exists or not.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrRateLimited is returned when a fixed window is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrConfiguration is fatal at startup (missing production secret etc).
	ErrConfiguration = errors.New("configuration error")

	// ErrPersistence wraps any failure of the backing state store.
	ErrPersistence = errors.New("persistence failure")

	// ErrValidation is matched by ValidationError.
	ErrValidation = errors.New("validation error")
)

// ValidationError carries a list of human-readable problems found in a
// request. errors.Is(err, ErrValidation) reports true for it.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add appends a problem.
func (e *ValidationError) Add(problem string) {
	e.Problems = append(e.Problems, problem)
}

// OrNil returns nil when no problems were collected.
func (e *ValidationError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
