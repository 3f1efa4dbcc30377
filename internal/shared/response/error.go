package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"refcache/internal/shared/errors"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Code    int            `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

var statusCodes = map[errors.ErrorType]int{
	errors.ErrorTypeNotFound:         http.StatusNotFound,
	errors.ErrorTypeValidation:       http.StatusBadRequest,
	errors.ErrorTypeMethodNotAllowed: http.StatusMethodNotAllowed,
	errors.ErrorTypeUnauthorized:     http.StatusUnauthorized,
	errors.ErrorTypeForbidden:        http.StatusForbidden,
	errors.ErrorTypeExternal:         http.StatusBadGateway,
	errors.ErrorTypeRateLimited:      http.StatusTooManyRequests,
	errors.ErrorTypeInternal:         http.StatusInternalServerError,
}

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	if code, ok := statusCodes[errors.GetType(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Error logs err and writes it as a JSON error response. Handlers report
// errors only through here.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ErrorWithDetails(w, r, logger, err, nil)
}

// ErrorWithDetails is Error with extra fields for the client, such as the
// fallback label of an entity that is not cached yet.
func ErrorWithDetails(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, details map[string]any) {
	errorType := errors.GetType(err)
	statusCode := StatusCode(err)

	logError(logger, r, err, errorType, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   string(errorType),
		Message: err.Error(),
		Code:    statusCode,
		Details: details,
	})
}

func logError(logger *slog.Logger, r *http.Request, err error, errorType errors.ErrorType, statusCode int) {
	logCtx := logger.With(
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"error_type", errorType,
		"status_code", statusCode,
	)

	switch errorType {
	case errors.ErrorTypeNotFound, errors.ErrorTypeValidation, errors.ErrorTypeMethodNotAllowed:
		logCtx.Debug("Client error", "error", err)
	case errors.ErrorTypeRateLimited:
		logCtx.Warn("Rate limit exceeded", "error", err)
	case errors.ErrorTypeUnauthorized, errors.ErrorTypeForbidden:
		logCtx.Warn("Authorization error", "error", err)
	case errors.ErrorTypeExternal:
		// ESI or storage trouble
		logCtx.Error("External service error", "error", err)
	default:
		logCtx.Error("Internal server error", "error", err)
	}
}

// Success writes data as JSON with statusCode. A nil data writes no body.
func Success(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
