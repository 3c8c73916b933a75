package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"civium.org/internal/auth"
)

// Error codes surfaced to clients.
const (
	codeMissingToken        = "MISSING_TOKEN"
	codeInvalidToken        = "INVALID_TOKEN"
	codeMissingRefreshToken = "MISSING_REFRESH_TOKEN"
	codeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	codeUserNotFound        = "USER_NOT_FOUND"
	codeRoleRequired        = "ROLE_REQUIRED"
	codePermissionRequired  = "PERMISSION_REQUIRED"
	codeInvalidRole         = "INVALID_ROLE"
	codeValidation          = "VALIDATION_ERROR"
	codeConflict            = "CONFLICT"
	codeRateLimited         = "RATE_LIMITED"
	codeInternal            = "INTERNAL_ERROR"
)

// envelope is the uniform response body for authentication outcomes.
type envelope struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Error       string       `json:"error,omitempty"`
	AccessToken string       `json:"accessToken,omitempty"`
	User        *userPayload `json:"user,omitempty"`
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func userOf(p auth.Principal) *userPayload {
	return &userPayload{ID: p.ID, Name: p.Name, Email: p.Email, Role: string(p.Role)}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Error: errCode})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeFailure(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
