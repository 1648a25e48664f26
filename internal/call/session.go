package call

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tobyv/vidrelay/internal/errs"
	"github.com/tobyv/vidrelay/internal/relay"
)

// Status is the session's lifecycle state. Transitions are strictly
// one-directional; a new call after Ended is a fresh session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusOutgoing  Status = "outgoing"
	StatusIncoming  Status = "incoming"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
)

// Role records which side of the negotiation this session plays.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// Session is the per-identity in-memory record of one call negotiation.
// It is never persisted. All state is guarded by mu; handle callbacks and
// relay events land on it concurrently.
type Session struct {
	local  string
	remote string
	role   Role

	sig   Signaler
	media MediaSource
	log   *slog.Logger

	mu              sync.Mutex
	status          Status
	handle          NegotiationHandle
	stashedOffer    relay.SessionDescription
	remoteInstalled bool
	// pendingRemoteCandidates buffers candidates that arrive before the
	// remote description installs. Drained exactly once, in arrival order.
	pendingRemoteCandidates []relay.ICECandidate
	// transportUp distinguishes "connected (pending)" from the transport
	// actually being up. Purely a refinement; no message is emitted.
	transportUp bool
	tornDown    bool

	onChange  func(Status)
	onFailure func(error)
}

func newSession(local, remote string, role Role, sig Signaler, media MediaSource, log *slog.Logger) *Session {
	return &Session{
		local:  local,
		remote: remote,
		role:   role,
		sig:    sig,
		media:  media,
		log:    log,
		status: StatusIdle,
	}
}

func (s *Session) Remote() string {
	return s.remote
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// active reports whether the session still holds negotiation resources.
func (s *Session) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status != StatusIdle && s.status != StatusEnded
}

// startOutgoing acquires media, creates the offer, and relays call-initiate.
// On any failure the session lands in Ended with resources released and the
// error is returned for the user to see.
func (s *Session) startOutgoing(ctx context.Context, newHandle HandleFactory) error {
	if err := s.media.Acquire(ctx); err != nil {
		s.teardown(false)
		return errs.ErrMediaUnavailable
	}

	handle, err := newHandle()
	if err != nil {
		s.teardown(false)
		return errs.ErrNegotiationFailed
	}
	if !s.attachHandle(handle) {
		return errs.ErrNegotiationFailed
	}

	offer, err := handle.CreateOffer(ctx)
	if err != nil {
		s.teardown(true)
		return errs.ErrNegotiationFailed
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return errs.ErrNegotiationFailed
	}
	s.status = StatusOutgoing
	s.mu.Unlock()
	s.notify(StatusOutgoing)

	s.sig.Send(s.remote, relay.EventCallInitiate, relay.CallInitiatePayload{From: s.local, Offer: offer})
	return nil
}

// startIncoming acquires media and stashes the offer, awaiting user
// accept/reject. Media failure tears the session down and tells the caller.
func (s *Session) startIncoming(ctx context.Context, offer relay.SessionDescription) error {
	if err := s.media.Acquire(ctx); err != nil {
		s.teardown(true)
		return errs.ErrMediaUnavailable
	}

	s.mu.Lock()
	s.stashedOffer = offer
	s.status = StatusIncoming
	s.mu.Unlock()
	s.notify(StatusIncoming)
	return nil
}

// Accept answers the stashed offer: install remote description, drain the
// candidate queue, create and relay the answer.
func (s *Session) Accept(ctx context.Context, newHandle HandleFactory) error {
	s.mu.Lock()
	if s.status != StatusIncoming {
		s.mu.Unlock()
		return errs.ErrNegotiationFailed
	}
	offer := s.stashedOffer
	s.mu.Unlock()

	handle, err := newHandle()
	if err != nil {
		s.teardown(true)
		return errs.ErrNegotiationFailed
	}
	if !s.attachHandle(handle) {
		return errs.ErrNegotiationFailed
	}

	if err := s.installRemote(offer); err != nil {
		s.teardown(true)
		return errs.ErrNegotiationFailed
	}

	answer, err := handle.CreateAnswer(ctx)
	if err != nil {
		s.teardown(true)
		return errs.ErrNegotiationFailed
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return errs.ErrNegotiationFailed
	}
	s.status = StatusConnected
	s.mu.Unlock()
	s.notify(StatusConnected)

	s.sig.Send(s.remote, relay.EventCallAccept, relay.CallAcceptPayload{Answer: answer})
	return nil
}

// Reject declines an incoming call: relay call-terminate and release media.
func (s *Session) Reject() {
	s.teardown(true)
}

// Hangup ends the call from this side, notifying the other party.
func (s *Session) Hangup() {
	s.teardown(true)
}

// handleAccept installs the callee's answer on the caller side and drains the
// candidate queue.
func (s *Session) handleAccept(answer relay.SessionDescription) {
	s.mu.Lock()
	if s.status != StatusOutgoing {
		s.mu.Unlock()
		s.log.Debug("dropping call-accept in state", "status", s.status)
		return
	}
	s.mu.Unlock()

	if err := s.installRemote(answer); err != nil {
		s.fail(errs.ErrNegotiationFailed)
		return
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnected
	s.mu.Unlock()
	s.notify(StatusConnected)
}

// handleCandidate applies a remote candidate, or buffers it while the remote
// description is not yet installed. Candidates are never silently dropped
// pre-installation; post-installation they are applied immediately.
func (s *Session) handleCandidate(cand relay.ICECandidate) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	if !s.remoteInstalled {
		s.pendingRemoteCandidates = append(s.pendingRemoteCandidates, cand)
		s.mu.Unlock()
		return
	}
	handle := s.handle
	s.mu.Unlock()

	if err := handle.AddRemoteCandidate(cand); err != nil {
		s.log.Warn("failed to apply remote candidate", "error", err)
	}
}

// handleTerminate processes a terminate from the remote side. The receiver
// of a terminate never echoes one back.
func (s *Session) handleTerminate() {
	s.teardown(false)
}

// installRemote installs the remote description and then drains the buffered
// candidates in arrival order, exactly once. remoteInstalled flips inside the
// same critical section that snapshots the queue, so a candidate racing the
// drain either lands in the snapshot or is applied directly, never both and
// never lost. A teardown racing the install (failure callback, ring timer)
// makes it report failure instead of touching the released handle.
func (s *Session) installRemote(desc relay.SessionDescription) error {
	s.mu.Lock()
	if s.tornDown || s.handle == nil {
		s.mu.Unlock()
		return errs.ErrNegotiationFailed
	}
	handle := s.handle
	s.mu.Unlock()

	if err := handle.InstallRemoteDescription(desc); err != nil {
		return err
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return errs.ErrNegotiationFailed
	}
	queued := s.pendingRemoteCandidates
	s.pendingRemoteCandidates = nil
	s.remoteInstalled = true
	s.mu.Unlock()

	for _, cand := range queued {
		if err := handle.AddRemoteCandidate(cand); err != nil {
			s.log.Warn("failed to apply queued candidate", "error", err)
		}
	}
	return nil
}

// attachHandle wires the handle's candidate and status callbacks into the
// session. A session already torn down closes the handle instead of adopting
// it, so nothing ends up holding a handle no teardown will ever release.
// Reports whether the handle was attached.
func (s *Session) attachHandle(handle NegotiationHandle) bool {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		if err := handle.Close(); err != nil {
			s.log.Warn("failed to close negotiation handle", "error", err)
		}
		return false
	}
	s.handle = handle
	s.mu.Unlock()

	handle.OnLocalCandidate(func(cand relay.ICECandidate) {
		s.sig.Send(s.remote, relay.EventCallCandidate, relay.CallCandidatePayload{Candidate: cand})
	})
	handle.OnStatus(func(status HandleStatus) {
		switch status {
		case HandleConnected:
			s.mu.Lock()
			s.transportUp = true
			s.mu.Unlock()
		case HandleDisconnected, HandleFailed:
			// Connectivity loss is an implicit hangup, surfaced to the user.
			s.fail(errs.ErrNegotiationFailed)
		}
	})
	return true
}

// fail tears the session down as if the user hung up and reports a
// user-visible error.
func (s *Session) fail(err error) {
	first := s.teardown(true)
	if first && s.onFailure != nil {
		s.onFailure(err)
	}
}

// teardown releases media and the negotiation handle and moves the session to
// Ended. Idempotent: overlapping entry points (user hangup racing a failure
// callback) run the release path once and emit at most one call-terminate.
// Reports whether this call performed the teardown.
func (s *Session) teardown(emitTerminate bool) bool {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return false
	}
	s.tornDown = true
	s.status = StatusEnded
	s.pendingRemoteCandidates = nil
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			s.log.Warn("failed to close negotiation handle", "error", err)
		}
	}
	s.media.Release()

	if emitTerminate {
		s.sig.Send(s.remote, relay.EventCallTerminate, struct{}{})
	}
	s.notify(StatusEnded)
	return true
}

func (s *Session) notify(status Status) {
	if s.onChange != nil {
		s.onChange(status)
	}
}
