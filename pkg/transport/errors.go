package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/sense/pkg/api"
)

// WriteErrorResponse writes a JSON error document using the ErrorResponse
// wrapper format from pkg/api. An empty message defaults to the status text.
func WriteErrorResponse(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", api.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: &api.ErrorDocument{
		Status:  status,
		Message: message,
	}})
}

// WriteStatusError writes err as a JSON error document. Errors without an
// explicit status are written as a generic 500.
func WriteStatusError(w http.ResponseWriter, err error) {
	var se *api.StatusError
	if errors.As(err, &se) {
		WriteErrorResponse(w, se.Status, se.Message)
		return
	}
	WriteErrorResponse(w, http.StatusInternalServerError, "")
}
