package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	watchWriteWait = 10 * time.Second
	watchPingEvery = 30 * time.Second
)

// handleWatch upgrades to a websocket and streams the full record after
// every committed mutation, newest state first. The client sends nothing;
// its read side exists only to notice disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")

	// The subscription outlives the request timeout middleware, so it runs
	// on its own context tied to the socket instead of r.Context().
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := s.game.Watch(ctx, gameID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("watch upgrade failed", "game_id", gameID, "err", err)
		return
	}
	defer conn.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingEvery)
	defer ping.Stop()
	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
