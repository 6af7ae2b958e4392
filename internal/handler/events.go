package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavelanni/docexam/internal/exam"
)

const writeWait = 10 * time.Second

type outboundMessage struct {
	Type    string        `json:"type"`
	Payload exam.Snapshot `json:"payload"`
}

// handleEvents streams session snapshots over a websocket until the client
// disconnects or the session is closed. Inbound messages are ignored.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := sess.Subscribe()
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage{Type: "snapshot", Payload: snap}); err != nil {
				slog.Debug("ws write error", "session_id", sess.ID(), "error", err)
				return
			}
		case <-readerDone:
			return
		}
	}
}

// originChecker allows same-origin requests plus the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
