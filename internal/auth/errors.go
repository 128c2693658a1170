package auth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jobboard/apiserver/types"
)

// Error kinds surfaced by the holder. Match them with errors.Is.
var (
	ErrConfigurationMissing  = errors.New("backend is not configured")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAlreadyRegistered     = errors.New("already registered")
	ErrRateLimited           = errors.New("rate limited")
	ErrNotFound              = errors.New("not found")
	ErrRemoteFailure         = errors.New("remote failure")
	ErrNetwork               = errors.New("network error")
	ErrRegistrationFailed    = errors.New("registration failed")
	ErrProfileCreationFailed = errors.New("profile creation failed")
)

// Error pairs an error kind with the message shown to the user and the
// underlying cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// RateLimitedError reports an active signup cooldown.
type RateLimitedError struct {
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Too many signup attempts. Please try again in %d minute(s) or contact support.", e.Minutes())
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Minutes is RetryAfter rounded up to whole minutes, at least one.
func (e *RateLimitedError) Minutes() int {
	m := int(math.Ceil(e.RetryAfter.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

// UserMessage turns any error from this package into text fit for a toast.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Error()
	}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return "Please correct the highlighted fields and try again."
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}

	switch {
	case errors.Is(err, ErrConfigurationMissing):
		return "Database connection not available. Please try again later."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrAlreadyRegistered):
		return "User already registered. Please sign in instead."
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrNetwork):
		return "Network error. Please check your connection and try again."
	case errors.Is(err, ErrNotFound):
		return "The requested item could not be found."
	default:
		return "Something went wrong. Please try again."
	}
}
