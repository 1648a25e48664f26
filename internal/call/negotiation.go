// Package call drives the client-side call session state machine: one session
// per identity, strictly one-directional status transitions, and buffering of
// remote candidates that arrive before the remote description is installed.
package call

import (
	"context"

	"github.com/tobyv/vidrelay/internal/relay"
)

// HandleStatus is the observable connectivity state of a negotiation handle.
type HandleStatus int

const (
	HandleNew HandleStatus = iota
	HandleConnected
	HandleDisconnected
	HandleFailed
	HandleClosed
)

// NegotiationHandle abstracts the peer transport used to establish a direct
// session. The state machine depends only on this interface, so it can be
// exercised with a fake; the production implementation wraps a Pion
// PeerConnection. AddRemoteCandidate must only be called after
// InstallRemoteDescription has succeeded — the session owns that ordering.
type NegotiationHandle interface {
	CreateOffer(ctx context.Context) (relay.SessionDescription, error)
	CreateAnswer(ctx context.Context) (relay.SessionDescription, error)
	InstallRemoteDescription(desc relay.SessionDescription) error
	AddRemoteCandidate(cand relay.ICECandidate) error
	// OnLocalCandidate registers the callback receiving locally gathered
	// candidates to forward to the remote peer.
	OnLocalCandidate(fn func(relay.ICECandidate))
	// OnStatus registers the callback observing connectivity changes.
	OnStatus(fn func(HandleStatus))
	Close() error
}

// HandleFactory creates one negotiation handle per session attempt.
type HandleFactory func() (NegotiationHandle, error)

// MediaSource is the local audio/video capture device. Acquire may suspend
// (permission prompt); it must be idempotent so answering after ringing does
// not prompt twice.
type MediaSource interface {
	Acquire(ctx context.Context) error
	Release()
}

// NopMediaSource satisfies MediaSource for receive-only deployments and
// tests. Real capture is supplied by the host application.
type NopMediaSource struct{}

func (NopMediaSource) Acquire(context.Context) error { return nil }
func (NopMediaSource) Release()                      {}

// Signaler is the only surface the call package needs from the relay layer.
type Signaler interface {
	Send(target string, eventType relay.EventType, payload any) bool
}
