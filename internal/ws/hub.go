package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one lease state change pushed to dashboard subscribers.
type Event struct {
	Event      string    `json:"event"`
	SoftwareID string    `json:"software_id,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Time       time.Time `json:"time"`
}

type Hub struct {
	clients    map[*Client]bool
	mu         sync.RWMutex
	Register   chan *Client
	Unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	log.Printf("Dashboard subscriber %s registered", client.conn.RemoteAddr())
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		log.Printf("Dashboard subscriber %s unregistered", client.conn.RemoteAddr())
	}
}

// Publish fans an event out to every subscriber. Slow subscribers lose
// messages rather than blocking the leasing path.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal ws event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Printf("WARN: subscriber %s send buffer is full. Dropping message.", client.conn.RemoteAddr())
		}
	}
}
