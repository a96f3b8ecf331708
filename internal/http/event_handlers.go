package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"neuronudge-backend-go/internal/events"
	"neuronudge-backend-go/internal/services"
)

type LogEventRequest struct {
	EventType string                 `json:"event_type" validate:"required"`
	Details   map[string]interface{} `json:"details"`
}

type NudgeShownRequest struct {
	NudgeID string `json:"nudge_id" validate:"required"`
}

type EventListResponse struct {
	Items []EventDTO `json:"items"`
}

func (s *Server) LogEvent(w http.ResponseWriter, r *http.Request) {
	var req LogEventRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	s.ingest(w, r, req.EventType, req.Details)
}

func (s *Server) LogNudgeShown(w http.ResponseWriter, r *http.Request) {
	var req NudgeShownRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.NudgeID = strings.TrimSpace(req.NudgeID)
	if msg := requests.Struct(req); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}
	s.ingest(w, r, events.TypeNudgeShown, events.Payload{"nudge_id": req.NudgeID})
}

func (s *Server) LogFocusResumed(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, events.TypeFocusResumed, nil)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, eventType string, details events.Payload) {
	ack, err := s.Events.Ingest(r.Context(), CurrentUserID(r), eventType, details)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		services.IngestAck
	}{Status: "ok", IngestAck: ack})
}

func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.Events.ListEvents(r.Context(), CurrentUserID(r), strings.TrimSpace(r.URL.Query().Get("type")), limit)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	out := make([]EventDTO, 0, len(items))
	for _, item := range items {
		out = append(out, EventDTO{
			ID:              item.ID,
			EventType:       item.EventType,
			DurationSeconds: item.DurationSeconds,
			Payload:         events.DecodePayload(item.Payload),
			CreatedAt:       item.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, EventListResponse{Items: out})
}
