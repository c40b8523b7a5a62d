package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write to a slow peer
	writeWait = 10 * time.Second

	// pongWait is how long a silent peer is tolerated
	pongWait = 60 * time.Second

	// pingPeriod must stay below pongWait
	pingPeriod = (pongWait * 9) / 10

	// clients only send control frames
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamHealth handles GET /health/stream. The current snapshot is sent on
// connect, then every published snapshot until the peer goes away or the
// server shuts down.
func (h *handler) streamHealth(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.cache.Subscribe()
	defer cancel()

	log := h.logger.With(zap.String("remote_addr", r.RemoteAddr))
	log.Info("ws: client connected")

	closed := make(chan struct{})
	go readPump(conn, closed, log)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := writeJSON(conn, h.cache.Current()); err != nil {
		log.Warn("ws: write error", zap.Error(err))
		return
	}

	for {
		select {
		case snap := <-updates:
			if err := writeJSON(conn, snap); err != nil {
				log.Warn("ws: write error", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("ws: ping error", zap.Error(err))
				return
			}
		case <-closed:
			log.Info("ws: client disconnected")
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// readPump drains control frames and reports when the peer goes away
func readPump(conn *websocket.Conn, closed chan<- struct{}, log *zap.Logger) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				log.Warn("ws: unexpected close", zap.Error(err))
			}
			return
		}
	}
}
