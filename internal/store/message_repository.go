package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tobyv/vidrelay/internal/errs"
)

// Message is one chat message between two identities. Immutable once stored;
// the only mutation is deletion by its creator.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

func messageKey(id string) []byte {
	return []byte("msg:" + id)
}

// conversationKey orders messages of one pair by creation time. The message
// id breaks ties for same-nanosecond writes.
func conversationKey(m Message) []byte {
	return []byte(fmt.Sprintf("conv:%s:%020d:%s", pairKey(m.From, m.To), m.CreatedAt.UnixNano(), m.ID))
}

// Store writes the message record and its conversation index entry in one
// transaction.
func (r *MessageRepository) Store(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(m.ID), data); err != nil {
			return err
		}
		return txn.Set(conversationKey(m), []byte(m.ID))
	})
}

func (r *MessageRepository) Get(id string) (Message, error) {
	var m Message
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &m)
		})
	})
	return m, err
}

// Delete removes the record and its conversation index entry. The index key
// is reconstructed from the stored record, so the record must still exist.
func (r *MessageRepository) Delete(id string) error {
	m, err := r.Get(id)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(messageKey(id)); err != nil {
			return err
		}
		return txn.Delete(conversationKey(m))
	})
}

// Conversation returns every message exchanged between a and b in creation
// order.
func (r *MessageRepository) Conversation(a, b string) ([]Message, error) {
	prefix := []byte("conv:" + pairKey(a, b) + ":")
	var messages []Message

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id string
			err := it.Item().Value(func(v []byte) error {
				id = string(v)
				return nil
			})
			if err != nil {
				return err
			}

			item, err := txn.Get(messageKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				// Index entry outlived its record; skip.
				r.log.Warn("dangling conversation index entry", "id", id)
				continue
			}
			if err != nil {
				return err
			}
			var m Message
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation fetch: %w", err)
	}
	return messages, nil
}
