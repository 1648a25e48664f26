package client

import (
	"context"
	"log/slog"

	"github.com/tobyv/vidrelay/config"
	"github.com/tobyv/vidrelay/internal/call"
	"github.com/tobyv/vidrelay/internal/relay"
)

// EventSource is the bidirectional relay channel the client runs on.
// RelayClient is the production implementation.
type EventSource interface {
	Events() <-chan relay.Event
	Send(target string, eventType relay.EventType, payload any) bool
	Close() error
}

// Client ties one relay connection to the call manager and the session
// store. A single dispatch loop feeds events to both in arrival order, which
// keeps the relay's per-sender FIFO guarantee intact on the consumer side.
type Client struct {
	relay EventSource
	Calls *call.Manager
	Store *SessionStore
	log   *slog.Logger
}

func New(selfID string, src EventSource, newHandle call.HandleFactory, log *slog.Logger, opts ...call.Option) *Client {
	store := NewSessionStore(log)
	opts = append(opts, call.OnChange(store.setCallStatus))
	return &Client{
		relay: src,
		Calls: call.NewManager(selfID, src, newHandle, log, opts...),
		Store: store,
		log:   log,
	}
}

// NewFromConfig composes a client with the configured ring timeout. Later
// options may still override it.
func NewFromConfig(selfID string, src EventSource, newHandle call.HandleFactory, cfg *config.Config, log *slog.Logger, opts ...call.Option) *Client {
	opts = append([]call.Option{call.WithRingTimeout(cfg.RingTimeout)}, opts...)
	return New(selfID, src, newHandle, log, opts...)
}

// Run dispatches relay events until the connection drops or ctx is
// cancelled. A dropped connection forces any active call session into ended
// without emitting a terminate — the peer learns through its own presence
// update.
func (c *Client) Run(ctx context.Context) {
	defer c.Calls.Shutdown()
	for {
		select {
		case <-ctx.Done():
			c.relay.Close()
			return
		case ev, ok := <-c.relay.Events():
			if !ok {
				c.log.Info("relay connection closed")
				return
			}
			c.Store.Apply(ev)
			c.Calls.HandleEvent(ctx, ev)
		}
	}
}

func (c *Client) Close() error {
	return c.relay.Close()
}
