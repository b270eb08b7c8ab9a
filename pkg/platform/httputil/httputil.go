// Package httputil holds the JSON response helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "rentguard/pkg/domain-errors"
)

// WriteJSON encodes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error onto its HTTP status and a JSON envelope.
// Internal errors never expose their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == "" {
		code = dErrors.CodeInternal
	}
	body := map[string]string{
		"error":  string(code),
		"action": string(dErrors.ActionFor(err)),
	}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && code != dErrors.CodeInvariantViolation && errors.As(err, &de) {
		body["error_description"] = de.Message
	}
	WriteJSON(w, StatusFor(code), body)
}

func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvalidDateRange:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConflict, dErrors.CodeOverlap, dErrors.CodeIllegalTransition,
		dErrors.CodeStale, dErrors.CodeNotCancellable:
		return http.StatusConflict
	case dErrors.CodeInvalidProof, dErrors.CodeExpired, dErrors.CodeRejected:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
