package httpapi

import (
	"net/http"

	"neuronudge-backend-go/internal/services"
)

func (s *Server) SubmitReflection(w http.ResponseWriter, r *http.Request) {
	var req services.ReflectionInput
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	result, err := s.Reflections.Submit(r.Context(), CurrentUserID(r), req)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
