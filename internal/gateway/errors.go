package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// BackendError is a login-level failure reported by the backend, either as an
// HTTP error status or as a 200 response carrying success:false (Status 0).
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return "backend rejected request: " + e.Detail
	}
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Detail)
}

// FailureReason classifies the error for fetch metrics.
func (e *BackendError) FailureReason() string {
	switch {
	case e.Status == 0:
		return "rejected"
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return "unauthorized"
	case e.Status >= http.StatusInternalServerError:
		return "backend_error"
	default:
		return "bad_request"
	}
}

// transportError wraps failures below HTTP: dial, TLS, timeouts, bad bodies.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string { return e.op + ": " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) FailureReason() string {
	var netErr net.Error
	if errors.As(e.err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(e.err, context.Canceled) {
		return ""
	}
	return "transport"
}

// decodeDetail extracts the {"detail": ...} message of an error response.
// Validation errors carry a list, which is kept as raw JSON.
func decodeDetail(body []byte, status int) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Detail) > 0 {
			var s string
			if err := json.Unmarshal(payload.Detail, &s); err == nil {
				return strings.TrimSpace(s)
			}
			return strings.TrimSpace(string(payload.Detail))
		}
		if m := strings.TrimSpace(payload.Message); m != "" {
			return m
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
		return text
	}
	return http.StatusText(status)
}
