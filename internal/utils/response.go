package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorPayload is the body of every error response. Clients show Detail verbatim.
type ErrorPayload struct {
	Detail string `json:"detail"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

// JSONResponse sends v as JSON with the given status
func JSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse sends {"detail": detail} with the given status
func ErrorResponse(w http.ResponseWriter, status int, detail string) {
	JSONResponse(w, status, ErrorPayload{Detail: detail})
}
