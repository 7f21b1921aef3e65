package api

import (
	"net/http"
	"time"

	"github.com/catherinevee/vtagger/internal/progress"
	"github.com/gorilla/websocket"
)

var progressUpgrader = websocket.Upgrader{
	// The upgrade accepts any Origin: corsMiddleware only adds CORS
	// headers for listed origins and does not reject other requests.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleProgressWebsocket is the websocket fallback transport for
// clients that can't use SSE: same snapshot/heartbeat event shape,
// pushed as JSON text frames.
func (s *Server) handleProgressWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	ticker := time.NewTicker(progress.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.broadcaster.Heartbeat()
		case ev, open := <-sub.C():
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
