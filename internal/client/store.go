package client

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tobyv/vidrelay/internal/call"
	"github.com/tobyv/vidrelay/internal/relay"
)

// Message is the client-side view of one chat message.
type Message struct {
	ID        string
	From      string
	To        string
	Text      string
	CreatedAt time.Time
}

// SessionStore holds the consumer-side snapshots driving UI re-render: the
// presence set, the active call status, and the ordered message list for the
// one conversation currently open. Chat events for any other conversation are
// dropped, so switching counterparts cannot leak messages across views.
type SessionStore struct {
	log *slog.Logger

	mu           sync.RWMutex
	presence     []string
	conversation string
	messages     []Message
	seen         map[string]struct{}
	callStatus   call.Status
}

func NewSessionStore(log *slog.Logger) *SessionStore {
	return &SessionStore{
		log:        log,
		seen:       make(map[string]struct{}),
		callStatus: call.StatusIdle,
	}
}

// Open scopes chat-event handling to the conversation with counterpart,
// dropping any state from the previously open one.
func (s *SessionStore) Open(counterpart string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = counterpart
	s.messages = nil
	s.seen = make(map[string]struct{})
}

// Seed installs the persisted history fetched from the query path. Events
// already applied for the same ids stay deduplicated.
func (s *SessionStore) Seed(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.seen = make(map[string]struct{})
	for _, m := range messages {
		s.messages = append(s.messages, m)
		s.seen[m.ID] = struct{}{}
	}
}

// Presence returns the current reachable identities.
func (s *SessionStore) Presence() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.presence))
	copy(out, s.presence)
	return out
}

// IsReachable reports whether the identity currently holds a relay
// connection, for reachability indicators.
func (s *SessionStore) IsReachable(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Contains(s.presence, identity)
}

// Messages returns the ordered message list for the open conversation.
func (s *SessionStore) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// CallStatus returns the active call session's status.
func (s *SessionStore) CallStatus() call.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callStatus
}

func (s *SessionStore) setCallStatus(status call.Status) {
	s.mu.Lock()
	s.callStatus = status
	s.mu.Unlock()
}

// Apply folds one relay event into the snapshots. Duplicate delivery of the
// same message id is a no-op.
func (s *SessionStore) Apply(ev relay.Event) {
	switch ev.Type {
	case relay.EventPresenceUpdate:
		var p relay.PresenceUpdatePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.log.Warn("malformed presence update", "error", err)
			return
		}
		s.mu.Lock()
		s.presence = p.Identities
		s.mu.Unlock()

	case relay.EventMessagePosted:
		var p relay.MessagePostedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.log.Warn("malformed message event", "error", err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conversation == "" || (p.From != s.conversation && p.To != s.conversation) {
			return
		}
		if _, dup := s.seen[p.ID]; dup {
			return
		}
		s.seen[p.ID] = struct{}{}
		s.messages = append(s.messages, Message{
			ID:        p.ID,
			From:      p.From,
			To:        p.To,
			Text:      p.Text,
			CreatedAt: time.UnixMilli(p.CreatedAt),
		})

	case relay.EventMessageDeleted:
		var p relay.MessageDeletedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.log.Warn("malformed message event", "error", err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.messages = lo.Filter(s.messages, func(m Message, _ int) bool {
			return m.ID != p.ID
		})
	}
}
