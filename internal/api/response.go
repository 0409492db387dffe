package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apperrors "fms-alerts/internal/common/errors"
)

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusOK, v)
}

// Accepted writes a 202 Accepted response.
func Accepted(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusAccepted, v)
}

// ErrorBody is the error shape webhook senders already parse.
type ErrorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

// Error writes {"error": msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg})
}

// WriteError maps an application error to its HTTP status and body.
func WriteError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	body := ErrorBody{Error: stdErr.Message}
	switch stdErr.Code {
	case apperrors.ErrCodeStorageFailed:
		body.Message = "Unable to process webhook due to database error"
	case apperrors.ErrCodeValidationFailed, apperrors.ErrCodeInvalidPayload:
		if stdErr.Details != "" {
			body.Details = []string{stdErr.Details}
		}
	case apperrors.ErrCodeInternal:
		body.Error = "internal error"
	}
	JSON(w, stdErr.HTTPStatus(), body)
}

// errorFields describes err for a log line.
func errorFields(r *http.Request, err error) map[string]interface{} {
	stdErr := apperrors.Normalize(err)
	fields := map[string]interface{}{
		"requestId":     middleware.GetReqID(r.Context()),
		"errorCode":     stdErr.Code,
		"errorCategory": apperrors.GetErrorCategory(stdErr.Code),
	}
	if stdErr.Details != "" {
		fields["details"] = stdErr.Details
	}
	return fields
}
