package middleware

import (
	"encoding/json"
	"net/http"

	merco "github.com/SametHaymana/merco-api"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError renders err as {"error": code, "message": text} with the status
// merco.HTTPStatus assigns to it.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, merco.HTTPStatus(err), ErrorBody{
		Error:   merco.ErrorCode(err),
		Message: merco.PublicMessage(err),
	})
}

// WriteJSON writes v with status. Encoding failures are ignored; the header
// is already sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
