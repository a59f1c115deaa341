package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/tilecollapse/internal/host"
	"github.com/lawnchairsociety/tilecollapse/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// snapshot is the first message on a new watcher connection.
type snapshot struct {
	Type        string           `json:"type"`
	Status      host.Status      `json:"status"`
	Resolutions []resolutionView `json:"resolutions"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := s.clientIP(r)

	release, ok := s.conns.Acquire(ip)
	if !ok {
		total, ips := s.conns.Stats()
		logger.Warning("WebSocket connection rejected: limit reached",
			"ip", ip,
			"ip_count", s.conns.IPCount(ip),
			"total", total,
			"unique_ips", ips)
		respondError(w, http.StatusTooManyRequests, "too many connections")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		logger.Error("WebSocket upgrade error", "error", err, "ip", ip)
		return
	}

	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		defer release()
		newWatcher(conn, ip, s.cfg.WebSocket.MaxMessageSize).serve(s.baseCtx, s.host, s.cfg.EventBuffer)
	}()
}

// watcher streams host events to one WebSocket client. Inbound messages are
// read only to service control frames and detect disconnects.
type watcher struct {
	conn    *websocket.Conn
	maxRead int64
	log     *slog.Logger
}

func newWatcher(conn *websocket.Conn, ip string, maxRead int64) *watcher {
	return &watcher{
		conn:    conn,
		maxRead: maxRead,
		log:     logger.With("ip", ip),
	}
}

func (w *watcher) serve(ctx context.Context, h *host.Host, buffer int) {
	defer w.conn.Close()

	status, history, events, cancel := h.Attach(buffer)
	defer cancel()

	w.log.Info("Watcher connected")
	defer w.log.Info("Watcher disconnected")

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(snapshot{
		Type:        "snapshot",
		Status:      status,
		Resolutions: newResolutionViews(history),
	}); err != nil {
		w.log.Debug("Failed to send snapshot", "error", err)
		return
	}

	readerDone := make(chan struct{})
	go w.readLoop(readerDone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				w.closeWith(websocket.CloseGoingAway, "host closed")
				return
			}
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteJSON(ev); err != nil {
				w.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			w.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-readerDone:
			return
		}
	}
}

func (w *watcher) readLoop(done chan<- struct{}) {
	defer close(done)

	if w.maxRead > 0 {
		w.conn.SetReadLimit(w.maxRead)
	}
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.log.Debug("Watcher read error", "error", err)
			}
			return
		}
	}
}

func (w *watcher) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
