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

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	Friends      []string  `json:"friends"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) IsFriend(id string) bool {
	return lo.Contains(u.Friends, id)
}

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func emailKey(email string) []byte {
	return []byte("useremail:" + email)
}

// Create inserts a new user, enforcing email uniqueness through a secondary
// index key in the same transaction.
func (r *UserRepository) Create(email, fullName, passwordHash string) (User, error) {
	u := User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(emailKey(email))
		if err == nil {
			return errs.ErrUserExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := marshalUser(u)
		if err != nil {
			return err
		}
		if err := txn.Set(userKey(u.ID), data); err != nil {
			return err
		}
		return txn.Set(emailKey(email), []byte(u.ID))
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *UserRepository) GetByID(id string) (User, error) {
	var u User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = getUser(txn, id)
		return err
	})
	return u, err
}

func (r *UserRepository) GetByEmail(email string) (User, error) {
	var u User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(v []byte) error { id = string(v); return nil }); err != nil {
			return err
		}
		u, err = getUser(txn, id)
		return err
	})
	return u, err
}

// LinkFriends adds each user to the other's friends list, skipping entries
// that already exist.
func (r *UserRepository) LinkFriends(a, b string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		for _, pair := range [][2]string{{a, b}, {b, a}} {
			u, err := getUser(txn, pair[0])
			if err != nil {
				return err
			}
			if u.IsFriend(pair[1]) {
				continue
			}
			u.Friends = append(u.Friends, pair[1])
			data, err := marshalUser(u)
			if err != nil {
				return err
			}
			if err := txn.Set(userKey(u.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns every user. The user base this serves is small enough for a
// full scan; recommendation filtering happens in the service layer.
func (r *UserRepository) List() ([]User, error) {
	prefix := []byte("user:")
	var users []User
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var u User
			err := it.Item().Value(func(v []byte) error {
				return unmarshalUser(v, &u)
			})
			if err != nil {
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("user list: %w", err)
	}
	return users, nil
}

func getUser(txn *badger.Txn, id string) (User, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errs.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	var u User
	err = item.Value(func(v []byte) error { return unmarshalUser(v, &u) })
	return u, err
}

// storedUser exists because PasswordHash is excluded from API responses but
// must round-trip through the database.
type storedUser struct {
	User
	PasswordHash string `json:"passwordHash"`
}

func marshalUser(u User) ([]byte, error) {
	return json.Marshal(storedUser{User: u, PasswordHash: u.PasswordHash})
}

func unmarshalUser(data []byte, u *User) error {
	var s storedUser
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*u = s.User
	u.PasswordHash = s.PasswordHash
	return nil
}
