package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	exportdomain "github.com/smallbiznis/paymatrix/internal/export/domain"
	"github.com/smallbiznis/paymatrix/internal/gateway"
	methodsdomain "github.com/smallbiznis/paymatrix/internal/methods/domain"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var backendErr *gateway.BackendError
	var sheetsErr *exportdomain.SheetsError

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, exportdomain.ErrEmptyExport):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "empty_export",
			Message: "nothing to export",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many load requests",
		}
	case errors.As(err, &backendErr):
		return http.StatusBadGateway, errorPayload{
			Type:    "backend_error",
			Message: backendErr.Detail,
		}
	case errors.As(err, &sheetsErr):
		return http.StatusBadGateway, errorPayload{
			Type:    "sheets_error",
			Message: sheetsErr.Detail,
		}
	case errors.Is(err, exportdomain.ErrSheetsUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "timeout",
			Message: "request timed out",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error_type and error_code fields of the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if isNotFoundError(err) || isConflictError(err) {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, methodsdomain.ErrInvalidProject),
		errors.Is(err, methodsdomain.ErrInvalidGeo),
		errors.Is(err, methodsdomain.ErrInvalidEnv),
		errors.Is(err, methodsdomain.ErrInvalidFilter),
		errors.Is(err, registrydomain.ErrInvalidProject),
		errors.Is(err, registrydomain.ErrInvalidName),
		errors.Is(err, registrydomain.ErrInvalidGeo),
		errors.Is(err, registrydomain.ErrInvalidLogin),
		errors.Is(err, registrydomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, methodsdomain.ErrRunNotFound),
		errors.Is(err, methodsdomain.ErrNoLogins),
		errors.Is(err, methodsdomain.ErrUnknownLogin),
		errors.Is(err, registrydomain.ErrProjectNotFound),
		errors.Is(err, registrydomain.ErrLoginNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, registrydomain.ErrProjectExists),
		errors.Is(err, registrydomain.ErrLoginExists),
		errors.Is(err, methodsdomain.ErrStaleRun),
		errors.Is(err, methodsdomain.ErrRetryInProgress),
		errors.Is(err, methodsdomain.ErrNoFailures):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, methodsdomain.ErrRunNotFound),
		errors.Is(err, methodsdomain.ErrNoLogins),
		errors.Is(err, methodsdomain.ErrUnknownLogin),
		errors.Is(err, registrydomain.ErrProjectNotFound),
		errors.Is(err, registrydomain.ErrLoginNotFound):
		return err.Error()
	default:
		return "not found"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
