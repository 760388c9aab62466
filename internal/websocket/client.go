package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const pingInterval = 30 * time.Second

// Client pumps hub broadcasts onto one WebSocket connection, usually a
// kiosk tablet or a parent's phone.
type Client struct {
	hub  *Hub
	conn *ws.Conn
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{hub: hub, conn: conn}
}

// Run subscribes to the hub and blocks forwarding broadcasts until the
// connection drops. Peers never send anything meaningful, so a reader
// goroutine drains frames purely to notice the disconnect.
func (c *Client) Run(ctx context.Context) {
	ch := c.hub.Subscribe()
	defer c.hub.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-gone:
			return
		case <-ctx.Done():
			return
		}
	}
}
