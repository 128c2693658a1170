package backend

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error is a failure reported by the hosted backend.
// Status is zero when the request never produced a response.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Status)
	case e.Message != "":
		return "backend: " + e.Message
	case e.Err != nil:
		return "backend: " + e.Err.Error()
	default:
		return fmt.Sprintf("backend: status %d", e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func asError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func messageContains(be *Error, needle string) bool {
	return strings.Contains(strings.ToLower(be.Message), needle)
}

// IsRateLimited reports whether the backend refused to send more emails.
func IsRateLimited(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Status == http.StatusTooManyRequests ||
		be.Code == "over_email_send_rate_limit" ||
		messageContains(be, "rate limit exceeded")
}

// IsAlreadyRegistered reports whether sign-up failed because the address is taken.
func IsAlreadyRegistered(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Code == "user_already_exists" || messageContains(be, "already registered")
}

// IsInvalidCredentials reports whether a sign-in was rejected.
func IsInvalidCredentials(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Code == "invalid_credentials" ||
		be.Code == "invalid_grant" ||
		be.Code == "email_not_confirmed" ||
		messageContains(be, "invalid login credentials")
}

// IsNotFound reports whether the requested row or object does not exist.
func IsNotFound(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Status == http.StatusNotFound || be.Code == "PGRST116"
}

// IsUnauthorized reports whether the backend rejected the session token.
func IsUnauthorized(err error) bool {
	be, ok := asError(err)
	if !ok {
		return false
	}
	return be.Status == http.StatusUnauthorized || be.Status == http.StatusForbidden
}

// IsNetwork reports whether the request failed before a response arrived.
func IsNetwork(err error) bool {
	if be, ok := asError(err); ok {
		if be.Status != 0 {
			return false
		}
		err = be.Err
	}
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
