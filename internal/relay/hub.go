package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"
)

// Hub multiplexes all real-time event types over one connection per identity.
// Routing failure is silent: Send to an absent identity reports false and
// nothing else happens — callers own any higher-level fallback.
type Hub struct {
	registry *Registry
	log      *slog.Logger

	onDisconnect func(identity string)
}

func NewHub(registry *Registry, log *slog.Logger) *Hub {
	return &Hub{registry: registry, log: log}
}

// OnDisconnect registers a hook invoked after an identity's connection is gone
// and its departure has been broadcast. It is an integration point for
// embedders with per-connection bookkeeping; the stock server registers none,
// since the presence broadcast already carries the departure. Set before the
// first Attach.
func (h *Hub) OnDisconnect(fn func(identity string)) {
	h.onDisconnect = fn
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Attach binds an authenticated identity to a freshly upgraded connection,
// registers it, and broadcasts the full reachable set so every peer — late
// joiners included — holds a complete view. A previous connection for the same
// identity is closed and replaced. Attach starts the client's pumps and
// returns once the connection is live.
func (h *Hub) Attach(identity string, conn *websocket.Conn) *Client {
	c := newClient(identity, conn, h)
	if prev := h.registry.Register(identity, c); prev != nil {
		h.log.Info("replacing existing relay connection", "identity", identity)
		prev.close()
	}
	h.log.Info("peer connected", "identity", identity)
	h.broadcastPresence()

	go c.writePump()
	go c.readPump()
	return c
}

// Send delivers one event to target, at most once. It reports false when the
// target has no open connection or its buffer is full; the event is dropped.
func (h *Hub) Send(target string, eventType EventType, payload any) bool {
	c, ok := h.registry.get(target)
	if !ok {
		return false
	}
	data, err := marshalEvent(Event{Type: eventType}, payload)
	if err != nil {
		h.log.Error("failed to marshal event", "type", eventType, "error", err)
		return false
	}
	return c.enqueue(data)
}

// Broadcast delivers one event to every connected identity.
func (h *Hub) Broadcast(eventType EventType, payload any) {
	data, err := marshalEvent(Event{Type: eventType}, payload)
	if err != nil {
		h.log.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}
	for _, c := range h.registry.all() {
		if !c.enqueue(data) {
			h.log.Warn("dropping broadcast, send buffer full", "identity", c.identity)
		}
	}
}

// Close tears down every connection. Used on server shutdown.
func (h *Hub) Close() {
	for _, c := range h.registry.all() {
		c.close()
	}
}

func (h *Hub) broadcastPresence() {
	h.Broadcast(EventPresenceUpdate, PresenceUpdatePayload{Identities: h.registry.List()})
}

// route forwards a client-originated event to its target. Only call-signaling
// events may transit the relay directly; everything else arrives via the HTTP
// API and is pushed by the server. From is stamped server-side so a client
// cannot spoof another identity, and To is stripped before delivery.
func (h *Hub) route(from string, ev Event) {
	switch ev.Type {
	case EventCallInitiate, EventCallAccept, EventCallCandidate, EventCallTerminate:
	default:
		h.log.Warn("unknown relay event type", "type", ev.Type, "from", from)
		return
	}
	if ev.To == "" {
		h.log.Warn("relay event without target", "type", ev.Type, "from", from)
		return
	}
	target := ev.To
	ev.From = from
	ev.To = ""
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal routed event", "type", ev.Type, "error", err)
		return
	}
	c, ok := h.registry.get(target)
	if !ok {
		// Unreachable is a no-op by contract.
		h.log.Debug("dropping event for absent target", "type", ev.Type, "target", target)
		return
	}
	if !c.enqueue(data) {
		h.log.Warn("dropping event, send buffer full", "identity", target)
	}
}

// detach is called exactly once per connection, from the read pump's exit
// path. The registry is only updated if this client still owns its identity's
// slot; a replaced connection must not broadcast a departure for its
// successor.
func (h *Hub) detach(c *Client) {
	if h.registry.Deregister(c.identity, c) {
		h.log.Info("peer disconnected", "identity", c.identity)
		h.broadcastPresence()
		if h.onDisconnect != nil {
			h.onDisconnect(c.identity)
		}
	}
}

func marshalEvent(ev Event, payload any) ([]byte, error) {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		ev.Payload = raw
	}
	return json.Marshal(ev)
}
