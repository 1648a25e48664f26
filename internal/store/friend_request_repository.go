package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/tobyv/vidrelay/internal/errs"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
)

type FriendRequest struct {
	ID        string        `json:"id"`
	Sender    string        `json:"sender"`
	Recipient string        `json:"recipient"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

type FriendRequestRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewFriendRequestRepository(db *badger.DB, log *slog.Logger) *FriendRequestRepository {
	return &FriendRequestRepository{db: db, log: log}
}

func requestKey(id string) []byte {
	return []byte("freq:" + id)
}

func requestPairKey(a, b string) []byte {
	return []byte("freqpair:" + pairKey(a, b))
}

// Create inserts a pending request, rejecting a duplicate in either direction
// between the same two users.
func (r *FriendRequestRepository) Create(sender, recipient string) (FriendRequest, error) {
	fr := FriendRequest{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Status:    RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(requestPairKey(sender, recipient))
		if err == nil {
			return errs.ErrUserExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(fr)
		if err != nil {
			return err
		}
		if err := txn.Set(requestKey(fr.ID), data); err != nil {
			return err
		}
		return txn.Set(requestPairKey(sender, recipient), []byte(fr.ID))
	})
	if err != nil {
		return FriendRequest{}, err
	}
	return fr, nil
}

func (r *FriendRequestRepository) Get(id string) (FriendRequest, error) {
	var fr FriendRequest
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(requestKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &fr) })
	})
	return fr, err
}

// ExistsBetween reports whether any request, pending or accepted, links the
// two users in either direction.
func (r *FriendRequestRepository) ExistsBetween(a, b string) (bool, error) {
	exists := false
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(requestPairKey(a, b))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (r *FriendRequestRepository) UpdateStatus(id string, status RequestStatus) error {
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(requestKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		var fr FriendRequest
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &fr) }); err != nil {
			return err
		}
		fr.Status = status
		data, err := json.Marshal(fr)
		if err != nil {
			return err
		}
		return txn.Set(requestKey(id), data)
	})
}

// ListIncoming returns pending requests addressed to the user.
func (r *FriendRequestRepository) ListIncoming(recipient string) ([]FriendRequest, error) {
	all, err := r.list()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(fr FriendRequest, _ int) bool {
		return fr.Recipient == recipient && fr.Status == RequestPending
	}), nil
}

// ListOutgoing returns pending requests the user has sent.
func (r *FriendRequestRepository) ListOutgoing(sender string) ([]FriendRequest, error) {
	all, err := r.list()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(fr FriendRequest, _ int) bool {
		return fr.Sender == sender && fr.Status == RequestPending
	}), nil
}

func (r *FriendRequestRepository) list() ([]FriendRequest, error) {
	prefix := []byte("freq:")
	var requests []FriendRequest
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var fr FriendRequest
			err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &fr) })
			if err != nil {
				return err
			}
			requests = append(requests, fr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("friend request list: %w", err)
	}
	return requests, nil
}
