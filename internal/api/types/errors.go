package types

import (
	"encoding/json"
	"errors"
	"net/http"

	appErr "github.com/lumnicode/engine/pkg/errors"
)

// FromAppError converts err to its wire form. Internal errors hide their cause.
func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var e *appErr.AppError
	if errors.As(err, &e) {
		return &APIError{Code: string(e.Code), Message: e.Message}
	}
	return &APIError{Code: string(appErr.CodeInternal), Message: "internal error"}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err in the response envelope with the status its code maps to.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, appErr.HTTPStatus(err), APIResponse{Success: false, Error: FromAppError(err)})
}
