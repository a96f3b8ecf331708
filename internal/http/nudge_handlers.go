package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type CreateNudgeRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
	Type string `json:"type" validate:"omitempty,oneof=positive negative"`
}

type EditNudgeRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
}

type NudgeListResponse struct {
	Items []NudgeDTO `json:"items"`
}

func (s *Server) NextNudge(w http.ResponseWriter, r *http.Request) {
	result, err := s.Nudges.NextNudge(r.Context(), chi.URLParam(r, "userId"), CurrentUserID(r))
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) ListNudges(w http.ResponseWriter, r *http.Request) {
	items, err := s.Nudges.ListNudges(r.Context(), CurrentUserID(r))
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	out := make([]NudgeDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toNudgeDTO(item))
	}
	WriteJSON(w, http.StatusOK, NudgeListResponse{Items: out})
}

func (s *Server) CreateNudge(w http.ResponseWriter, r *http.Request) {
	var req CreateNudgeRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if msg := requests.Struct(req); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}
	nudge, err := s.Nudges.CreateNudge(r.Context(), CurrentUserID(r), req.Text, req.Type)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toNudgeDTO(nudge))
}

func (s *Server) EditNudge(w http.ResponseWriter, r *http.Request) {
	var req EditNudgeRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if msg := requests.Struct(req); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}
	nudge, err := s.Nudges.EditNudge(r.Context(), chi.URLParam(r, "nudgeId"), CurrentUserID(r), req.Text)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Nudge updated",
		"nudge":   toNudgeDTO(nudge),
	})
}

func (s *Server) DeleteNudge(w http.ResponseWriter, r *http.Request) {
	if err := s.Nudges.DeleteNudge(r.Context(), chi.URLParam(r, "nudgeId"), CurrentUserID(r)); err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
