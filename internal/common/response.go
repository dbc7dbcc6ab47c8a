package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError writes err as {"error": "<Code>"}. Errors outside the
// taxonomy get an empty 500.
func RespondWithError(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	RespondWithJSON(w, apiErr.Status, ErrorResponse{Error: apiErr.Code})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
