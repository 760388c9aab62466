package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// subscriberBuffer is how many broadcasts a slow connection may fall
// behind before it starts missing messages.
const subscriberBuffer = 16

// Message is a real-time sync event pushed to every connected screen.
// Type combines entity and action ("routine_completed", "goal_updated")
// so clients can switch on a single field.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub fans broadcast messages out to subscriber channels. Connections
// subscribe on attach and unsubscribe when they drop.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[chan []byte]struct{}),
		logger: logger,
	}
}

// Subscribe allocates a buffered channel that receives every broadcast
// until Unsubscribe is called.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the channel. Calling it again for the
// same channel is a no-op.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast delivers msg to every subscriber. A subscriber with a full
// buffer misses the message; kiosk clients resync on their next poll.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

// ClientCount reports how many connections are subscribed.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
