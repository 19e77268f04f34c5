package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// streamBuffer is the per-connection event buffer.
	streamBuffer = 64

	// pingInterval is how often idle streams are pinged.
	pingInterval = 30 * time.Second

	// writeWait bounds a single websocket write.
	writeWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEvents handles GET /ws/rounds: every round event is pushed as a JSON text frame.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sub, cancel := s.cfg.Events.Subscribe(streamBuffer)
	defer cancel()

	s.log.Debug("event stream opened", "remote", r.RemoteAddr)

	// Incoming frames are discarded; a read error means the peer left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-sub:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.log.Debug("event stream write failed", "remote", r.RemoteAddr, "error", err)
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}

		case <-gone:
			return

		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}
