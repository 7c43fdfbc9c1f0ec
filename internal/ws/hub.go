package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/grraffic/ordertracking/internal/enum"
)

// Event is one push notification. Receivers treat it only as a trigger to
// re-fetch the affected list; Payload is informational.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TopicOf returns the topic an event type is delivered on.
func TopicOf(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "item:"):
		return enum.TopicItems
	case strings.HasPrefix(eventType, "order:"):
		return enum.TopicOrders
	default:
		return ""
	}
}

// Hub maintains the set of active clients per topic and fans events out to
// them.
type Hub struct {
	// Subscribed clients by topic
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, clients := range h.rooms {
				for c := range clients {
					h.dropLocked(c)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			for _, topic := range client.topics {
				if h.rooms[topic] == nil {
					h.rooms[topic] = make(map[*Client]bool)
				}
				h.rooms[topic][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[TopicOf(event.Type)] {
				select {
				case client.send <- message:
				default:
					// Send buffer full; the client re-fetches on reconnect.
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// dropLocked removes client from every room and closes its send channel once.
func (h *Hub) dropLocked(client *Client) {
	found := false
	for _, topic := range client.topics {
		clients, ok := h.rooms[topic]
		if !ok || !clients[client] {
			continue
		}
		found = true
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, topic)
		}
	}
	if found {
		close(client.send)
	}
}

// Broadcast queues an event for every client subscribed to its topic.
func (h *Hub) Broadcast(eventType string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	select {
	case h.broadcast <- Event{Type: eventType, Payload: raw}:
	case <-h.done:
	}
}
