package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Error codes returned in the canonical JSON error envelope.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodePharmacyInactive     = "PHARMACY_INACTIVE"
	CodeOutOfStock           = "OUT_OF_STOCK"
	CodePrescriptionRequired = "PRESCRIPTION_REQUIRED"
	CodeMinValueNotMet       = "MIN_VALUE_NOT_MET"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeCannotCancel         = "CANNOT_CANCEL"
	CodeAlreadyCancelled     = "ALREADY_CANCELLED"
	CodeCannotRefund         = "CANNOT_REFUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// Error represents the canonical JSON error envelope returned by the API:
// {"error":{"code","message","details"?}}.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// BadRequest builds a 400 error from a taxonomy code.
func BadRequest(code, message string) Error {
	return NewError(code, message, http.StatusBadRequest)
}

// NotFound builds the standard 404 error.
func NotFound(message string) Error {
	return NewError(CodeNotFound, message, http.StatusNotFound)
}

// Forbidden builds the standard 403 cross-tenant error.
func Forbidden(message string) Error {
	return NewError(CodeForbidden, message, http.StatusForbidden)
}

// Internal builds the standard 500 error.
func Internal(message string) Error {
	return NewError(CodeInternal, message, http.StatusInternalServerError)
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	copyDetails := make(map[string]any, len(details))
	for k, v := range details {
		copyDetails[k] = v
	}
	e.Details = copyDetails
	return e
}

// WriteError writes the structured error as JSON to the provided response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	inner := map[string]any{
		"code":    err.Code,
		"message": err.Message,
	}
	if len(err.Details) > 0 {
		inner["details"] = err.Details
	}
	payload := map[string]any{"error": inner}
	if requestID := sanitize(middleware.GetReqID(ctx), 80); requestID != "" {
		payload["request_id"] = requestID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteJSON writes an arbitrary payload with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
