package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jobboard/apiserver/types"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

const (
	maxJSONBody        = 1 << 20
	msgBackendMissing  = "Database connection not available. Please try again later."
	msgUserIDRequired  = "User ID is required"
	msgProfileUpdated  = "Profile updated successfully"
	msgInvalidRequest  = "invalid request"
	msgValidationError = "Please correct the highlighted fields and try again."
)

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse carries per-field messages next to the error.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// MessageResponse is a simple success payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func userIDFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok {
		return "", errors.New("missing subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("invalid subject")
	}
	return subject, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeValidation writes a 400 for a *types.ValidationError and reports
// whether err was one.
func writeValidation(w http.ResponseWriter, err error) bool {
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: msgValidationError, Fields: verr.Fields})
	return true
}
