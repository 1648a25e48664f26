package relay

import "encoding/json"

// EventType identifies a relay event on the wire.
type EventType string

const (
	EventPresenceUpdate       EventType = "presence-update"
	EventMessagePosted        EventType = "message-posted"
	EventMessageDeleted       EventType = "message-deleted"
	EventCallInitiate         EventType = "call-initiate"
	EventCallAccept           EventType = "call-accept"
	EventCallCandidate        EventType = "call-candidate"
	EventCallTerminate        EventType = "call-terminate"
	EventFriendRequestCreated EventType = "friend-request-created"
)

// Event is the envelope for every message on the relay channel. From is
// stamped by the server on client-originated events; To routes point-to-point
// events and is stripped before delivery.
type Event struct {
	Type    EventType       `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionDescription carries the negotiated media parameters (offer/answer)
// exchanged during call setup.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is one proposed network path for direct-session establishment.
type ICECandidate struct {
	Candidate      string  `json:"candidate"`
	SDPMid         *string `json:"sdpMid,omitempty"`
	SDPMLineNumber *uint16 `json:"sdpMLineNumber,omitempty"`
}

type PresenceUpdatePayload struct {
	Identities []string `json:"identities"`
}

type MessagePostedPayload struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

type MessageDeletedPayload struct {
	ID string `json:"id"`
}

type CallInitiatePayload struct {
	From  string             `json:"from"`
	Offer SessionDescription `json:"offer"`
}

type CallAcceptPayload struct {
	Answer SessionDescription `json:"answer"`
}

type CallCandidatePayload struct {
	Candidate ICECandidate `json:"candidate"`
}

type FriendRequestCreatedPayload struct {
	From string `json:"from"`
}
