package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(slog.Default())

	a := hub.Subscribe()
	b := hub.Subscribe()
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("subscribers = %d, want 2", got)
	}

	hub.Unsubscribe(a)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("subscribers after unsubscribe = %d, want 1", got)
	}

	// A second unsubscribe of the same channel must not panic.
	hub.Unsubscribe(a)
	hub.Unsubscribe(b)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("subscribers = %d, want 0", got)
	}

	if _, open := <-a; open {
		t.Error("unsubscribed channel should be closed")
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub(slog.Default())

	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Broadcast(NewMessage("routine", "completed", 42, map[string]any{"child_id": float64(7)}))

	for _, ch := range []chan []byte{a, b} {
		select {
		case data := <-ch:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "routine_completed" {
				t.Errorf("type = %q, want routine_completed", got.Type)
			}
			if got.ID != 42 {
				t.Errorf("id = %d, want 42", got.ID)
			}
			if got.Extra["child_id"] != float64(7) {
				t.Errorf("extra child_id = %v", got.Extra["child_id"])
			}
		default:
			t.Fatal("subscriber did not receive broadcast")
		}
	}
}

func TestBroadcastSkipsFullSubscriber(t *testing.T) {
	hub := NewHub(slog.Default())
	ch := hub.Subscribe()

	// One more broadcast than the buffer holds. The overflow is dropped
	// instead of blocking the hub.
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Broadcast(NewMessage("routine", "updated", int64(i), nil))
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", got, subscriberBuffer)
	}
}
