package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// updateHub pushes reference reload notifications to websocket
// subscribers, so presentation layers can refresh instead of polling.
type updateHub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// reloadEvent is the message pushed on every atomic table swap.
type reloadEvent struct {
	Event       string    `json:"event"`
	Records     int       `json:"records"`
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at"`
}

func newUpdateHub() *updateHub {
	return &updateHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

// handle upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *updateHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	// Drain reads until close; subscribers never send payloads.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast sends the event to every subscriber, dropping dead peers.
func (h *updateHub) broadcast(event reloadEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(event); err != nil {
			log.Debug().Err(err).Msg("Dropping websocket subscriber")
			h.drop(c)
		}
	}
}

func (h *updateHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// subscriberCount reports the current number of connected peers.
func (h *updateHub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
