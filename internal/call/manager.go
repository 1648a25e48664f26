package call

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tobyv/vidrelay/internal/errs"
	"github.com/tobyv/vidrelay/internal/relay"
)

// Manager owns at most one call Session for the local identity and routes
// inbound relay events to it. It also tracks the presence set so a call to an
// unreachable target is refused before any negotiation resource exists.
type Manager struct {
	self        string
	sig         Signaler
	media       MediaSource
	newHandle   HandleFactory
	ringTimeout time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	session  *Session
	presence []string

	onChange  func(Status)
	onFailure func(error)
}

type Option func(*Manager)

// WithRingTimeout bounds how long an unanswered outgoing or incoming call may
// ring. Zero disables the timeout.
func WithRingTimeout(d time.Duration) Option {
	return func(m *Manager) { m.ringTimeout = d }
}

func WithMediaSource(media MediaSource) Option {
	return func(m *Manager) { m.media = media }
}

// OnChange registers the callback observing session status transitions.
func OnChange(fn func(Status)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// OnFailure registers the callback receiving user-visible call failures that
// fire asynchronously (negotiation loss, ring timeout, remote media failure).
func OnFailure(fn func(error)) Option {
	return func(m *Manager) { m.onFailure = fn }
}

func NewManager(self string, sig Signaler, newHandle HandleFactory, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		self:        self,
		sig:         sig,
		media:       NopMediaSource{},
		newHandle:   newHandle,
		ringTimeout: time.Minute,
		log:         log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns the current session, which may be nil or ended.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Status reports the active session's status, or idle when none exists.
func (m *Manager) Status() Status {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return StatusIdle
	}
	return s.Status()
}

// Initiate places a call to target. It refuses immediately when the target is
// not in the presence set (no negotiation resource is created) or when a call
// is already in progress.
func (m *Manager) Initiate(ctx context.Context, target string) error {
	m.mu.Lock()
	if m.session != nil && m.session.Status() != StatusEnded {
		m.mu.Unlock()
		return errs.ErrBusy
	}
	if !lo.Contains(m.presence, target) {
		m.mu.Unlock()
		return errs.ErrUnreachable
	}
	s := newSession(m.self, target, RoleCaller, m.sig, m.media, m.log)
	s.onChange = m.onChange
	s.onFailure = m.onFailure
	m.session = s
	m.mu.Unlock()

	if err := s.startOutgoing(ctx, m.newHandle); err != nil {
		return err
	}
	m.armRingTimer(s)
	return nil
}

// Accept answers the current incoming call.
func (m *Manager) Accept(ctx context.Context) error {
	s := m.Session()
	if s == nil {
		return errs.ErrNotFound
	}
	return s.Accept(ctx, m.newHandle)
}

// Reject declines the current incoming call.
func (m *Manager) Reject() {
	if s := m.Session(); s != nil {
		s.Reject()
	}
}

// Hangup ends the current call.
func (m *Manager) Hangup() {
	if s := m.Session(); s != nil {
		s.Hangup()
	}
}

// HandleEvent routes one inbound relay event. The caller dispatches events in
// arrival order from a single goroutine, which preserves the FIFO contract of
// the relay channel.
func (m *Manager) HandleEvent(ctx context.Context, ev relay.Event) {
	switch ev.Type {
	case relay.EventPresenceUpdate:
		var p relay.PresenceUpdatePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.Warn("malformed presence update", "error", err)
			return
		}
		m.handlePresence(p.Identities)

	case relay.EventCallInitiate:
		var p relay.CallInitiatePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.Warn("malformed call-initiate", "error", err)
			return
		}
		m.handleInitiate(ctx, ev.From, p.Offer)

	case relay.EventCallAccept:
		var p relay.CallAcceptPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.Warn("malformed call-accept", "error", err)
			return
		}
		if s := m.sessionWith(ev.From); s != nil {
			s.handleAccept(p.Answer)
		}

	case relay.EventCallCandidate:
		var p relay.CallCandidatePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.Warn("malformed call-candidate", "error", err)
			return
		}
		if s := m.sessionWith(ev.From); s != nil {
			s.handleCandidate(p.Candidate)
		}

	case relay.EventCallTerminate:
		if s := m.sessionWith(ev.From); s != nil {
			s.handleTerminate()
		}
	}
}

// handleInitiate starts an incoming session, or answers busy — a terminate
// back to the new caller — when a session already exists. The existing
// session is untouched.
func (m *Manager) handleInitiate(ctx context.Context, from string, offer relay.SessionDescription) {
	m.mu.Lock()
	if m.session != nil && m.session.Status() != StatusEnded {
		m.mu.Unlock()
		m.log.Info("busy, refusing call", "from", from)
		m.sig.Send(from, relay.EventCallTerminate, struct{}{})
		return
	}
	s := newSession(m.self, from, RoleCallee, m.sig, m.media, m.log)
	s.onChange = m.onChange
	s.onFailure = m.onFailure
	m.session = s
	m.mu.Unlock()

	if err := s.startIncoming(ctx, offer); err != nil {
		if m.onFailure != nil {
			m.onFailure(err)
		}
		return
	}
	m.armRingTimer(s)
}

// handlePresence stores the new presence snapshot and tears down the active
// session when its remote has dropped off the relay. A lost relay connection
// is the only implicit cancellation trigger.
func (m *Manager) handlePresence(identities []string) {
	m.mu.Lock()
	m.presence = identities
	s := m.session
	m.mu.Unlock()

	if s != nil && s.active() && !lo.Contains(identities, s.Remote()) {
		m.log.Info("remote peer disconnected, ending call", "remote", s.Remote())
		s.fail(errs.ErrNegotiationFailed)
	}
}

// Presence returns the latest known presence set.
func (m *Manager) Presence() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.presence))
	copy(out, m.presence)
	return out
}

// Shutdown force-ends any session bound to this identity's relay connection.
// Called when the underlying connection drops.
func (m *Manager) Shutdown() {
	if s := m.Session(); s != nil {
		s.teardown(false)
	}
}

// sessionWith returns the current session only if it involves peer; stale or
// cross-call events are dropped.
func (m *Manager) sessionWith(peer string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.Remote() != peer {
		return nil
	}
	return m.session
}

// armRingTimer tears down a session still ringing after the timeout, so an
// abandoned call cannot hold acquired media forever.
func (m *Manager) armRingTimer(s *Session) {
	if m.ringTimeout <= 0 {
		return
	}
	time.AfterFunc(m.ringTimeout, func() {
		switch s.Status() {
		case StatusOutgoing, StatusIncoming:
			m.log.Info("ring timeout, ending call", "remote", s.Remote())
			s.fail(errs.ErrNoAnswer)
		}
	})
}
