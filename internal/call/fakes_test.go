package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/tobyv/vidrelay/internal/relay"
)

// fakeHandle is an in-memory negotiation handle. It enforces the contract
// that no candidate may be applied before the remote description installs.
type fakeHandle struct {
	mu          sync.Mutex
	remote      *relay.SessionDescription
	applied     []relay.ICECandidate
	closed      int
	onCandidate func(relay.ICECandidate)
	onStatus    func(HandleStatus)

	offerErr   error
	answerErr  error
	installErr error
	// failOnStatusRegister reports a transport failure the moment the status
	// callback is wired, standing in for a transport failing mid-setup.
	failOnStatusRegister bool
}

func (h *fakeHandle) CreateOffer(context.Context) (relay.SessionDescription, error) {
	if h.offerErr != nil {
		return relay.SessionDescription{}, h.offerErr
	}
	return relay.SessionDescription{Type: "offer", SDP: "offer-sdp"}, nil
}

func (h *fakeHandle) CreateAnswer(context.Context) (relay.SessionDescription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.answerErr != nil {
		return relay.SessionDescription{}, h.answerErr
	}
	if h.remote == nil {
		return relay.SessionDescription{}, errors.New("answer without remote description")
	}
	return relay.SessionDescription{Type: "answer", SDP: "answer-sdp"}, nil
}

func (h *fakeHandle) InstallRemoteDescription(desc relay.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.installErr != nil {
		return h.installErr
	}
	h.remote = &desc
	return nil
}

func (h *fakeHandle) AddRemoteCandidate(cand relay.ICECandidate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remote == nil {
		return errors.New("candidate before remote description")
	}
	h.applied = append(h.applied, cand)
	return nil
}

func (h *fakeHandle) OnLocalCandidate(fn func(relay.ICECandidate)) {
	h.mu.Lock()
	h.onCandidate = fn
	h.mu.Unlock()
}

func (h *fakeHandle) OnStatus(fn func(HandleStatus)) {
	h.mu.Lock()
	h.onStatus = fn
	fail := h.failOnStatusRegister
	h.mu.Unlock()
	if fail {
		fn(HandleFailed)
	}
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) emitStatus(status HandleStatus) {
	h.mu.Lock()
	fn := h.onStatus
	h.mu.Unlock()
	if fn != nil {
		fn(status)
	}
}

func (h *fakeHandle) appliedCandidates() []relay.ICECandidate {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]relay.ICECandidate, len(h.applied))
	copy(out, h.applied)
	return out
}

func (h *fakeHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeFactory hands out fakeHandles and remembers them for assertions.
type fakeFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
	err     error

	failOnStatusRegister bool
	// onNew runs after the handle is created but before the session sees it,
	// to stage events racing session setup.
	onNew func()
}

func (f *fakeFactory) new() (NegotiationHandle, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	h := &fakeHandle{failOnStatusRegister: f.failOnStatusRegister}
	f.handles = append(f.handles, h)
	hook := f.onNew
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return h, nil
}

func (f *fakeFactory) last() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// fakeMedia records acquisition and release.
type fakeMedia struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

func (m *fakeMedia) Acquire(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.acquired++
	return nil
}

func (m *fakeMedia) Release() {
	m.mu.Lock()
	m.released++
	m.mu.Unlock()
}

func (m *fakeMedia) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

type netEvent struct {
	From string
	To   string
	Type relay.EventType
	Raw  []byte
}

// network delivers relay events synchronously between managers, mimicking
// the server's point-to-point routing including its silent drop of events
// for absent targets.
type network struct {
	t        *testing.T
	mu       sync.Mutex
	managers map[string]*Manager
	sent     []netEvent
}

func newNetwork(t *testing.T) *network {
	return &network{t: t, managers: make(map[string]*Manager)}
}

func (n *network) signaler(self string) *netSignaler {
	return &netSignaler{net: n, self: self}
}

func (n *network) add(self string, m *Manager) {
	n.mu.Lock()
	n.managers[self] = m
	n.mu.Unlock()
}

// presenceAll pushes a presence snapshot of every attached identity to every
// manager, the way the hub broadcasts the full list.
func (n *network) presenceAll(ids ...string) {
	raw, err := json.Marshal(relay.PresenceUpdatePayload{Identities: ids})
	if err != nil {
		n.t.Fatal(err)
	}
	n.mu.Lock()
	targets := make([]*Manager, 0, len(n.managers))
	for _, m := range n.managers {
		targets = append(targets, m)
	}
	n.mu.Unlock()
	for _, m := range targets {
		m.HandleEvent(context.Background(), relay.Event{Type: relay.EventPresenceUpdate, Payload: raw})
	}
}

func (n *network) countSent(from string, eventType relay.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, ev := range n.sent {
		if ev.From == from && ev.Type == eventType {
			count++
		}
	}
	return count
}

func mustEvent(t *testing.T, eventType relay.EventType, from string, payload any) relay.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return relay.Event{Type: eventType, From: from, Payload: raw}
}

type netSignaler struct {
	net  *network
	self string
}

func (s *netSignaler) Send(target string, eventType relay.EventType, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.net.t.Fatal(err)
	}
	s.net.mu.Lock()
	s.net.sent = append(s.net.sent, netEvent{From: s.self, To: target, Type: eventType, Raw: raw})
	m := s.net.managers[target]
	s.net.mu.Unlock()
	if m == nil {
		return false
	}
	m.HandleEvent(context.Background(), relay.Event{Type: eventType, From: s.self, Payload: raw})
	return true
}
