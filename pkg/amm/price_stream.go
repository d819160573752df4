package amm

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

// PriceUpdate is pushed to websocket subscribers whenever a pool price
// changes through the adapter (pool creation, rebalance).
type PriceUpdate struct {
	Token string `json:"token"`
	Pool  string `json:"pool"`
	Price string `json:"price"`
	Tick  int    `json:"tick"`
	At    int64  `json:"at"`
}

// PriceHub fans pool price updates out to websocket subscribers. Connections
// that fail a write are dropped; subscribers are expected to reconnect.
type PriceHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewPriceHub creates an empty hub.
func NewPriceHub() *PriceHub {
	return &PriceHub{conns: make(map[*websocket.Conn]bool)}
}

// Register adds a subscriber connection to the hub.
func (h *PriceHub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
	log.Debugf("Price stream subscriber connected (%d active)", len(h.conns))
}

// Unregister removes and closes a subscriber connection.
func (h *PriceHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn] {
		delete(h.conns, conn)
		conn.Close()
	}
}

// Broadcast sends an update to every subscriber, dropping dead connections.
func (h *PriceHub) Broadcast(update PriceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(update); err != nil {
			log.Debugf("Dropping price stream subscriber: %v", err)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *PriceHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
