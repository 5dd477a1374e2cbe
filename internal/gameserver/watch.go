package gameserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hypernova/arena/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Viewers connect from arbitrary origins; snapshots are read-only.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleWatch upgrades the connection to a WebSocket and streams JSON match
// snapshots until the viewer disconnects or the match is removed. The first
// frame is the current snapshot; subsequent frames follow store changes.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "Missing gameId")
		return
	}

	if _, err := s.orch.GetMatch(r.Context(), gameID); err != nil {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}
	snapshots, err := s.orch.WatchMatch(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to watch game")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure response.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := observability.WithMatch(s.logger, gameID)
	logger.Info("viewer connected")

	// Reader goroutine: the viewer sends nothing meaningful, but reads must
	// drain to process close and pong frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game removed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, snap); err != nil {
				logger.Debug("viewer write failed", zap.Error(err))
				return
			}
		}
	}
}
