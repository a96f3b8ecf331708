package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"neuronudge-backend-go/internal/logging"
	"neuronudge-backend-go/internal/services"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Message: message})
}

// WriteServiceError maps a service error onto its status. Anything
// unclassified is logged and answered with a generic 500.
func WriteServiceError(w http.ResponseWriter, log *logging.Logger, err error) {
	var serr services.ServiceError
	if !errors.As(err, &serr) {
		log.Error("unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if serr.Status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", serr.Kind, "error", serr)
	}
	WriteJSON(w, serr.Status, ErrorResponse{Message: serr.Message, Kind: string(serr.Kind)})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
