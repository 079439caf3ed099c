package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/af-corp/intentd/internal/types"
)

// APIError is the error envelope returned by every endpoint.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, requestID string, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	WriteJSON(w, requestID, statusCode, APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_api_key", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", string(types.KindRateLimited), message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", string(types.KindInvalidRequest), message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", string(types.KindInternal), message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}

// kindStatus maps pipeline error kinds onto HTTP status codes and envelope types.
var kindStatus = map[types.ErrorKind]struct {
	status  int
	errType string
}{
	types.KindRateLimited:          {http.StatusTooManyRequests, "rate_limit_error"},
	types.KindConfirmationMismatch: {http.StatusConflict, "confirmation_error"},
	types.KindExecutionFailed:      {http.StatusBadGateway, "execution_error"},
	types.KindInvalidRequest:       {http.StatusBadRequest, "invalid_request_error"},
	types.KindUnauthenticated:      {http.StatusUnauthorized, "authentication_error"},
	types.KindParseTimeout:         {http.StatusServiceUnavailable, "server_error"},
	types.KindParseInvalid:         {http.StatusServiceUnavailable, "server_error"},
}

// StatusForKind returns the HTTP status used for kind.
func StatusForKind(kind types.ErrorKind) int {
	if m, ok := kindStatus[kind]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// WriteKindError writes err using its pipeline kind. Internal errors and
// isolation violations get a generic message so no entity data reaches the caller.
func WriteKindError(w http.ResponseWriter, requestID string, err error) {
	kind := types.KindOf(err)
	m, ok := kindStatus[kind]
	if !ok {
		WriteError(w, requestID, http.StatusInternalServerError, "server_error", string(kind), "internal error")
		return
	}
	message := err.Error()
	var e *types.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	WriteError(w, requestID, m.status, m.errType, string(kind), message)
}
