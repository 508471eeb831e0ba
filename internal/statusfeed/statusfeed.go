// Package statusfeed pushes node status snapshots to connected
// dashboard clients over a websocket. It is purely observational: no
// consensus decision reads anything back from it, and a node with zero
// connected dashboards behaves identically to one with a hundred.
package statusfeed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"pbftchain/internal/logging"
)

// Status is one snapshot frame pushed to every connected client.
type Status struct {
	NodeID        string `json:"node_id"`
	View          uint64 `json:"view"`
	ChainHeight   uint64 `json:"chain_height"`
	MaliciousMode string `json:"malicious_mode"`
}

// Feed fans status snapshots out to every connected websocket client.
type Feed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewFeed constructs an empty feed ready to register an HTTP handler.
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Handler upgrades inbound connections and registers them as
// subscribers; it never reads application messages from the client.
func (f *Feed) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Named("statusfeed").Warnw("upgrade failed", "err", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = true
	f.mu.Unlock()

	go f.drainUntilClosed(conn)
}

// drainUntilClosed discards inbound frames so the TCP connection
// doesn't back up, until the client disconnects.
func (f *Feed) drainUntilClosed(conn *websocket.Conn) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Push sends one status frame to every currently connected client,
// best-effort and at most once, like the peer transport. A client whose
// write fails is dropped. Writes carry no deadline, so a slow client
// delays delivery to the clients after it.
func (f *Feed) Push(status Status) {
	body, err := json.Marshal(status)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			conn.Close()
			delete(f.clients, conn)
		}
	}
}
