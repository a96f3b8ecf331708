package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const statsWriteTimeout = 5 * time.Second

type socketWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
}

// statsConn bounds every hub write, so a client that stops reading is
// dropped after statsWriteTimeout instead of stalling delivery to everyone.
type statsConn struct {
	conn    socketWriter
	timeout time.Duration
}

func (c *statsConn) WriteJSON(v interface{}) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (s *Server) MyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats.GetStats(r.Context(), CurrentUserID(r))
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// StatsSocket streams the token owner's stats after every committed change.
// Browsers cannot set headers on websocket requests, so the access token
// travels in the query string.
func (s *Server) StatsSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("token")
	if query == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	userID, err := s.Tokens.AccessSubject(query)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := &statsConn{conn: conn, timeout: statsWriteTimeout}
	if current, err := s.Stats.GetStats(r.Context(), userID); err == nil {
		_ = sub.WriteJSON(current)
	}
	s.Hub.Add(userID, sub)
	defer func() {
		s.Hub.Remove(userID, sub)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
