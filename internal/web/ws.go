package web

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxprint/internal/hub"
	"github.com/MrWong99/voxprint/pkg/audio/opus"
)

// acceptOptions skip origin verification: ingest devices send no Origin
// header and the dashboard may be served from another host on the
// operator network.
var acceptOptions = &websocket.AcceptOptions{InsecureSkipVerify: true}

// handleIngest upgrades a device connection and pumps its binary frames
// into the pipeline until the device disconnects.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	codec := r.URL.Query().Get("codec")
	if codec == "" {
		codec = s.cfg.Codec
	}

	var opts []hub.SessionOption
	switch codec {
	case CodecPCM16:
	case CodecOpus:
		dec, err := opus.NewDecoder()
		if err != nil {
			s.log.Error("opus decoder init failed", "error", err)
			writeError(w, http.StatusInternalServerError, "opus decoder unavailable")
			return
		}
		opts = append(opts, hub.WithDecoder(dec.Decode))
	default:
		writeError(w, http.StatusBadRequest, "unsupported codec "+codec)
		return
	}

	conn, err := websocket.Accept(w, r, acceptOptions)
	if err != nil {
		s.log.Warn("ingest websocket accept failed", "error", err)
		return
	}

	sess, err := s.deps.Hub.Connect(r.Context(), hub.RoleIngest, conn, opts...)
	if err != nil {
		if errors.Is(err, hub.ErrFull) {
			conn.Close(websocket.StatusTryAgainLater, "ingest capacity reached")
			return
		}
		s.log.Warn("ingest connect failed", "error", err)
		conn.Close(websocket.StatusInternalError, "connect failed")
		return
	}

	s.deps.Hub.ServeIngest(r.Context(), sess)
}

// handleDashboard upgrades an observer connection, which immediately
// receives the current dashboard snapshot and then live broadcasts.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, acceptOptions)
	if err != nil {
		s.log.Warn("dashboard websocket accept failed", "error", err)
		return
	}

	sess, err := s.deps.Hub.Connect(r.Context(), hub.RoleObserver, conn)
	if err != nil {
		// A failed snapshot send has already disconnected the session;
		// closing again is harmless for the remaining paths.
		s.log.Warn("dashboard connect failed", "error", err)
		conn.Close(websocket.StatusInternalError, "connect failed")
		return
	}

	s.deps.Hub.ServeObserver(r.Context(), sess)
}
