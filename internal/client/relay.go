// Package client is the consumer side of the relay: the websocket connection,
// the call manager wiring, and the session store driving UI re-render.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tobyv/vidrelay/internal/relay"
)

// RelayClient is the persistent bidirectional channel to the server. Reads
// are surfaced on Events in arrival order; writes are serialized so event
// order per target is preserved.
type RelayClient struct {
	conn   *websocket.Conn
	events chan relay.Event
	log    *slog.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
}

// Dial connects and authenticates the relay channel. The identity is carried
// by the bearer token; the server binds it on handshake.
func Dial(ctx context.Context, url, token string, log *slog.Logger) (*RelayClient, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	c := &RelayClient{
		conn:   conn,
		events: make(chan relay.Event, 64),
		log:    log,
	}
	go c.readLoop()
	return c, nil
}

// Events yields inbound relay events in arrival order. The channel closes
// when the connection drops.
func (c *RelayClient) Events() <-chan relay.Event {
	return c.events
}

// Send relays one event to target. Failures are reported as false and not
// retried; the relay contract is at-most-once.
func (c *RelayClient) Send(target string, eventType relay.EventType, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("failed to marshal outbound payload", "type", eventType, "error", err)
		return false
	}
	data, err := json.Marshal(relay.Event{Type: eventType, To: target, Payload: raw})
	if err != nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warn("relay write failed", "type", eventType, "error", err)
		return false
	}
	return true
}

func (c *RelayClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *RelayClient) readLoop() {
	defer func() {
		c.Close()
		close(c.events)
	}()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev relay.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.log.Warn("failed to parse relay event", "error", err)
			continue
		}
		c.events <- ev
	}
}
