package httpapi

import (
	"context"
	"net/http"
	"time"

	"neuronudge-backend-go/internal/services"
)

type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Runtime  services.RuntimeSample `json:"runtime"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := HealthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if err := s.Store.Ping(ctx); err != nil {
		s.Log.Warn("health check failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	resp.Runtime = services.CaptureRuntime(s.DiskPath)
	WriteJSON(w, status, resp)
}
