// Package chat implements the point-to-point message delivery channel:
// persistence first, then a best-effort real-time push to the counterpart.
package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tobyv/vidrelay/internal/errs"
	"github.com/tobyv/vidrelay/internal/relay"
	"github.com/tobyv/vidrelay/internal/store"
)

// Relay is the slice of the hub the delivery channel needs. Send reports
// whether the target was reachable; false is not an error.
type Relay interface {
	Send(target string, eventType relay.EventType, payload any) bool
}

type Service struct {
	messages *store.MessageRepository
	relay    Relay
	log      *slog.Logger
}

func NewService(messages *store.MessageRepository, r Relay, log *slog.Logger) *Service {
	return &Service{messages: messages, relay: r, log: log}
}

// Post validates, persists, and then pushes the message to the recipient if
// reachable. The persisted record is authoritative; the push is best effort.
// Persistence happens-before the relay notification, so a client that queries
// storage never sees an event referring to a missing record.
func (s *Service) Post(from, to, text string) (store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Message{}, errs.ErrEmptyText
	}

	m := store.Message{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Store(m); err != nil {
		return store.Message{}, err
	}

	delivered := s.relay.Send(to, relay.EventMessagePosted, relay.MessagePostedPayload{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Text:      m.Text,
		CreatedAt: m.CreatedAt.UnixMilli(),
	})
	if !delivered {
		s.log.Debug("recipient offline, message stored only", "to", to)
	}
	return m, nil
}

// Remove deletes a message. Only its creator may do so; the counterpart is
// notified after the persisted record is gone.
func (s *Service) Remove(messageID, requester string) error {
	m, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if m.From != requester {
		return errs.ErrForbidden
	}
	if err := s.messages.Delete(messageID); err != nil {
		return err
	}

	s.relay.Send(m.To, relay.EventMessageDeleted, relay.MessageDeletedPayload{ID: messageID})
	return nil
}

// History returns the conversation between two identities in creation order.
func (s *Service) History(a, b string) ([]store.Message, error) {
	return s.messages.Conversation(a, b)
}
