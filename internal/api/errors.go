package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes clients can switch on.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeStructural     = "structural_error"
)

// statusCodes gives the default code for a status. Handlers that need a
// more specific code (validation, structural) call writeError directly.
var statusCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusUnauthorized:        ErrCodeUnauthorized,
	http.StatusForbidden:           ErrCodeForbidden,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusMethodNotAllowed:    ErrCodeMethodNotAllow,
	http.StatusConflict:            ErrCodeConflict,
	http.StatusServiceUnavailable:  ErrCodeUnavailable,
	http.StatusInternalServerError: ErrCodeInternal,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// The client may already be gone; nothing useful to do on failure.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeStatus writes an error with the default code for status.
func writeStatus(w http.ResponseWriter, status int, message string) {
	code, ok := statusCodes[status]
	if !ok {
		code = ErrCodeInternal
	}
	writeError(w, status, code, message)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusInternalServerError, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusConflict, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusServiceUnavailable, message)
}
