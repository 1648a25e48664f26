package chat

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tobyv/vidrelay/internal/errs"
	"github.com/tobyv/vidrelay/internal/relay"
	"github.com/tobyv/vidrelay/internal/store"
)

type sentEvent struct {
	Target string
	Type   relay.EventType
	Raw    []byte
}

// recordingRelay captures relayed events and can simulate offline targets.
type recordingRelay struct {
	offline map[string]bool
	sent    []sentEvent
	// onSend observes each delivery attempt before it is recorded, so tests
	// can assert ordering relative to persistence.
	onSend func(target string, eventType relay.EventType)
}

func (r *recordingRelay) Send(target string, eventType relay.EventType, payload any) bool {
	if r.onSend != nil {
		r.onSend(target, eventType)
	}
	if r.offline[target] {
		return false
	}
	raw, _ := json.Marshal(payload)
	r.sent = append(r.sent, sentEvent{Target: target, Type: eventType, Raw: raw})
	return true
}

func newTestService(t *testing.T) (*Service, *store.MessageRepository, *recordingRelay) {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := store.NewMessageRepository(db, slog.Default())
	rly := &recordingRelay{offline: map[string]bool{}}
	return NewService(repo, rly, slog.Default()), repo, rly
}

func TestPost_RejectsEmptyTextBeforeAnySideEffect(t *testing.T) {
	req := require.New(t)
	svc, repo, rly := newTestService(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Post("alice", "bob", text)
		req.ErrorIs(err, errs.ErrEmptyText)
	}

	req.Empty(rly.sent)
	msgs, err := repo.Conversation("alice", "bob")
	req.NoError(err)
	req.Empty(msgs)
}

func TestPost_PersistsThenRelays(t *testing.T) {
	req := require.New(t)
	svc, repo, rly := newTestService(t)

	// At the moment the relay fires, the record must already be readable
	// from storage.
	var persistedAtSend bool
	rly.onSend = func(target string, _ relay.EventType) {
		msgs, err := repo.Conversation("alice", "bob")
		persistedAtSend = err == nil && len(msgs) == 1
	}

	m, err := svc.Post("alice", "bob", "  hi  ")
	req.NoError(err)
	req.Equal("hi", m.Text)
	req.NotEmpty(m.ID)
	req.True(persistedAtSend)

	req.Len(rly.sent, 1)
	req.Equal("bob", rly.sent[0].Target)
	req.Equal(relay.EventMessagePosted, rly.sent[0].Type)

	var p relay.MessagePostedPayload
	req.NoError(json.Unmarshal(rly.sent[0].Raw, &p))
	req.Equal("hi", p.Text)
	req.Equal(m.ID, p.ID)
}

func TestPost_OfflineRecipientStillPersists(t *testing.T) {
	req := require.New(t)
	svc, repo, rly := newTestService(t)
	rly.offline["bob"] = true

	m, err := svc.Post("alice", "bob", "hello")
	req.NoError(err)

	got, err := repo.Get(m.ID)
	req.NoError(err)
	req.Equal("hello", got.Text)
}

func TestRemove_OnlyCreatorMayDelete(t *testing.T) {
	req := require.New(t)
	svc, repo, rly := newTestService(t)

	m, err := svc.Post("alice", "bob", "secret")
	req.NoError(err)
	rly.sent = nil

	req.ErrorIs(svc.Remove(m.ID, "bob"), errs.ErrForbidden)
	req.ErrorIs(svc.Remove(m.ID, "mallory"), errs.ErrForbidden)

	// The message is intact and no deletion notice went out.
	_, err = repo.Get(m.ID)
	req.NoError(err)
	req.Empty(rly.sent)
}

func TestRemove_DeletesAndNotifiesCounterpart(t *testing.T) {
	req := require.New(t)
	svc, repo, rly := newTestService(t)

	m, err := svc.Post("alice", "bob", "oops")
	req.NoError(err)
	rly.sent = nil

	req.NoError(svc.Remove(m.ID, "alice"))

	_, err = repo.Get(m.ID)
	req.ErrorIs(err, errs.ErrNotFound)

	req.Len(rly.sent, 1)
	req.Equal("bob", rly.sent[0].Target)
	req.Equal(relay.EventMessageDeleted, rly.sent[0].Type)
}

func TestRemove_MissingMessage(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestService(t)

	req.ErrorIs(svc.Remove("no-such-id", "alice"), errs.ErrNotFound)
}

func TestHistory_ReturnsCreationOrder(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestService(t)

	_, err := svc.Post("alice", "bob", "one")
	req.NoError(err)
	_, err = svc.Post("bob", "alice", "two")
	req.NoError(err)
	_, err = svc.Post("alice", "bob", "three")
	req.NoError(err)

	msgs, err := svc.History("alice", "bob")
	req.NoError(err)
	req.Len(msgs, 3)
	req.Equal("one", msgs[0].Text)
	req.Equal("two", msgs[1].Text)
	req.Equal("three", msgs[2].Text)
}
