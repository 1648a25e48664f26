package client

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tobyv/vidrelay/internal/relay"
)

func applyEvent(t *testing.T, s *SessionStore, eventType relay.EventType, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	s.Apply(relay.Event{Type: eventType, Payload: raw})
}

func posted(id, from, to, text string) relay.MessagePostedPayload {
	return relay.MessagePostedPayload{ID: id, From: from, To: to, Text: text, CreatedAt: 1700000000000}
}

func TestApply_PresenceSnapshotReplaces(t *testing.T) {
	req := require.New(t)
	s := NewSessionStore(slog.Default())

	applyEvent(t, s, relay.EventPresenceUpdate, relay.PresenceUpdatePayload{Identities: []string{"alice", "bob"}})
	req.True(s.IsReachable("bob"))

	applyEvent(t, s, relay.EventPresenceUpdate, relay.PresenceUpdatePayload{Identities: []string{"alice"}})
	req.False(s.IsReachable("bob"))
	req.Equal([]string{"alice"}, s.Presence())
}

func TestApply_MessageScopedToOpenConversation(t *testing.T) {
	req := require.New(t)
	s := NewSessionStore(slog.Default())

	// No conversation open yet: everything is dropped.
	applyEvent(t, s, relay.EventMessagePosted, posted("m1", "bob", "alice", "hey"))
	req.Empty(s.Messages())

	s.Open("bob")
	applyEvent(t, s, relay.EventMessagePosted, posted("m1", "bob", "alice", "hey"))
	applyEvent(t, s, relay.EventMessagePosted, posted("m2", "carol", "alice", "psst"))

	msgs := s.Messages()
	req.Len(msgs, 1)
	req.Equal("m1", msgs[0].ID)
	req.Equal("hey", msgs[0].Text)
}

func TestApply_DuplicateMessageIsNoOp(t *testing.T) {
	req := require.New(t)
	s := NewSessionStore(slog.Default())
	s.Open("bob")

	applyEvent(t, s, relay.EventMessagePosted, posted("m1", "bob", "alice", "hey"))
	applyEvent(t, s, relay.EventMessagePosted, posted("m1", "bob", "alice", "hey"))
	req.Len(s.Messages(), 1)
}

func TestApply_MessageDeletedRemoves(t *testing.T) {
	req := require.New(t)
	s := NewSessionStore(slog.Default())
	s.Open("bob")

	applyEvent(t, s, relay.EventMessagePosted, posted("m1", "bob", "alice", "hey"))
	applyEvent(t, s, relay.EventMessagePosted, posted("m2", "alice", "bob", "hi"))
	applyEvent(t, s, relay.EventMessageDeleted, relay.MessageDeletedPayload{ID: "m1"})

	msgs := s.Messages()
	req.Len(msgs, 1)
	req.Equal("m2", msgs[0].ID)
}

func TestOpen_ResetsStateAndRescopes(t *testing.T) {
	req := require.New(t)
	s := NewSessionStore(slog.Default())
	s.Open("bob")
	applyEvent(t, s, relay.EventMessagePosted, posted("m1", "bob", "alice", "hey"))

	s.Open("carol")
	req.Empty(s.Messages())

	// The old conversation's counterpart no longer matches the scope.
	applyEvent(t, s, relay.EventMessagePosted, posted("m2", "bob", "alice", "again"))
	req.Empty(s.Messages())

	// Reopening forgets prior dedupe state, so history can reseed cleanly.
	s.Open("bob")
	applyEvent(t, s, relay.EventMessagePosted, posted("m1", "bob", "alice", "hey"))
	req.Len(s.Messages(), 1)
}

func TestSeed_DeduplicatesLiveEvents(t *testing.T) {
	req := require.New(t)
	s := NewSessionStore(slog.Default())
	s.Open("bob")

	s.Seed([]Message{
		{ID: "m1", From: "bob", To: "alice", Text: "hey"},
		{ID: "m2", From: "alice", To: "bob", Text: "hi"},
	})
	req.Len(s.Messages(), 2)

	// The live event for an already-seeded id must not double up.
	applyEvent(t, s, relay.EventMessagePosted, posted("m2", "alice", "bob", "hi"))
	req.Len(s.Messages(), 2)

	applyEvent(t, s, relay.EventMessagePosted, posted("m3", "bob", "alice", "one more"))
	req.Len(s.Messages(), 3)
}

func TestApply_MalformedPayloadIgnored(t *testing.T) {
	req := require.New(t)
	s := NewSessionStore(slog.Default())
	s.Open("bob")

	s.Apply(relay.Event{Type: relay.EventMessagePosted, Payload: json.RawMessage(`{"id":`)})
	req.Empty(s.Messages())

	s.Apply(relay.Event{Type: relay.EventPresenceUpdate, Payload: json.RawMessage(`[]`)})
	req.Empty(s.Presence())
}
