package call

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/tobyv/vidrelay/internal/relay"
)

// Default STUN servers for NAT traversal.
var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// pionHandle implements NegotiationHandle on a Pion PeerConnection.
type pionHandle struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	onCandidate func(relay.ICECandidate)
	onStatus    func(HandleStatus)
}

// NewPionHandleFactory returns a HandleFactory producing Pion-backed handles.
// Each handle gets recvonly audio/video transceivers so offers and answers
// carry valid media lines even before local capture tracks are attached.
func NewPionHandleFactory() HandleFactory {
	return func() (NegotiationHandle, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: defaultICEServers})
		if err != nil {
			return nil, err
		}
		h := &pionHandle{pc: pc}

		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, err
			}
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			h.mu.Lock()
			fn := h.onCandidate
			h.mu.Unlock()
			if fn != nil {
				fn(candidateFromInit(c.ToJSON()))
			}
		})

		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			h.mu.Lock()
			fn := h.onStatus
			h.mu.Unlock()
			if fn == nil {
				return
			}
			switch state {
			case webrtc.PeerConnectionStateConnected:
				fn(HandleConnected)
			case webrtc.PeerConnectionStateDisconnected:
				fn(HandleDisconnected)
			case webrtc.PeerConnectionStateFailed:
				fn(HandleFailed)
			case webrtc.PeerConnectionStateClosed:
				fn(HandleClosed)
			}
		})

		return h, nil
	}
}

func (h *pionHandle) CreateOffer(ctx context.Context) (relay.SessionDescription, error) {
	offer, err := h.pc.CreateOffer(nil)
	if err != nil {
		return relay.SessionDescription{}, err
	}
	// Wait for ICE gathering so the offer is usable immediately; trickled
	// candidates still flow through OnLocalCandidate.
	gathered := webrtc.GatheringCompletePromise(h.pc)
	if err := h.pc.SetLocalDescription(offer); err != nil {
		return relay.SessionDescription{}, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return relay.SessionDescription{}, ctx.Err()
	}
	local := h.pc.LocalDescription()
	return relay.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

func (h *pionHandle) CreateAnswer(ctx context.Context) (relay.SessionDescription, error) {
	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return relay.SessionDescription{}, err
	}
	gathered := webrtc.GatheringCompletePromise(h.pc)
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return relay.SessionDescription{}, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return relay.SessionDescription{}, ctx.Err()
	}
	local := h.pc.LocalDescription()
	return relay.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

func (h *pionHandle) InstallRemoteDescription(desc relay.SessionDescription) error {
	return h.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (h *pionHandle) AddRemoteCandidate(cand relay.ICECandidate) error {
	return h.pc.AddICECandidate(candidateToInit(cand))
}

// The wire shape follows the browser's RTCIceCandidateInit naming
// (sdpMLineNumber); Pion calls the same field SDPMLineIndex.
func candidateFromInit(init webrtc.ICECandidateInit) relay.ICECandidate {
	return relay.ICECandidate{
		Candidate:      init.Candidate,
		SDPMid:         init.SDPMid,
		SDPMLineNumber: init.SDPMLineIndex,
	}
}

func candidateToInit(cand relay.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:      cand.Candidate,
		SDPMid:         cand.SDPMid,
		SDPMLineIndex:  cand.SDPMLineNumber,
	}
}

func (h *pionHandle) OnLocalCandidate(fn func(relay.ICECandidate)) {
	h.mu.Lock()
	h.onCandidate = fn
	h.mu.Unlock()
}

func (h *pionHandle) OnStatus(fn func(HandleStatus)) {
	h.mu.Lock()
	h.onStatus = fn
	h.mu.Unlock()
}

func (h *pionHandle) Close() error {
	return h.pc.Close()
}
