package web

import (
	"net/http"

	"github.com/MrWong99/voxprint/internal/hub"
)

type connectionsResponse struct {
	Connections []hub.SessionInfo `json:"connections"`
	Count       int               `json:"count"`
}

// handleStats returns the same snapshot observers receive over the
// websocket, for polling clients and debugging.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Hub.Snapshot())
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Hub.ConnectionStats()
	writeJSON(w, http.StatusOK, connectionsResponse{
		Connections: infos,
		Count:       len(infos),
	})
}
