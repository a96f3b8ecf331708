package httpapi

import (
	"net/http"
)

type ProfileUpdateRequest struct {
	FullName *string `json:"fullName" validate:"omitempty,max=128"`
	Goal     *string `json:"goal" validate:"omitempty,max=256"`
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	user, err := s.Users.Me(r.Context(), CurrentUserID(r))
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]*UserDTO{"user": toUserDTO(user)})
}

func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if msg := requests.Struct(req); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}
	user, err := s.Users.UpdateProfile(r.Context(), CurrentUserID(r), req.FullName, req.Goal)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]*UserDTO{"user": toUserDTO(user)})
}

func (s *Server) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.Users.DeleteAccount(r.Context(), CurrentUserID(r)); err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
