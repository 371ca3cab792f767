// Package shared holds response helpers used by every handler package.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "taxfile/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every error the API returns.
type ErrorResponse struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	// Violations lists per-field failures for validation and
	// completeness errors.
	Violations []dErrors.Violation `json:"violations,omitempty"`
	// Completion accompanies incomplete-form rejections so clients can
	// show progress without a second call. Omitted otherwise.
	Completion *int `json:"completion,omitempty"`
}

// WriteJSON writes v with the given status. Encoding failures are
// swallowed; headers are already gone by then.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a coded domain error onto an HTTP status and renders the
// standard error body. Unknown errors become opaque 500s.
func WriteError(w http.ResponseWriter, err error) {
	dErr, ok := dErrors.From(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code:    string(dErrors.CodeInternal),
			Message: "internal error",
		})
		return
	}

	resp := ErrorResponse{
		Code:       string(dErr.Code),
		Message:    dErr.Message,
		Violations: dErr.Violations,
	}
	if dErr.Completion >= 0 {
		pct := dErr.Completion
		resp.Completion = &pct
	}
	WriteJSON(w, statusFor(dErr.Code), resp)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidationFailed:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadySubmitted,
		dErrors.CodeAlreadyApproved, dErrors.CodeImmutable:
		return http.StatusConflict
	case dErrors.CodeIncompleteForm:
		return http.StatusUnprocessableEntity
	case dErrors.CodeFormLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}
