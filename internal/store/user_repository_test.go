package store

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tobyv/vidrelay/internal/errs"
)

func TestUserRepository_CreateAndLookup(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t), slog.Default())

	u, err := repo.Create("alice@example.com", "Alice", "hash")
	req.NoError(err)
	req.NotEmpty(u.ID)

	byID, err := repo.GetByID(u.ID)
	req.NoError(err)
	req.Equal("Alice", byID.FullName)
	req.Equal("hash", byID.PasswordHash)

	byEmail, err := repo.GetByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(u.ID, byEmail.ID)
}

func TestUserRepository_DuplicateEmailRejected(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t), slog.Default())

	_, err := repo.Create("alice@example.com", "Alice", "hash")
	req.NoError(err)

	_, err = repo.Create("alice@example.com", "Imposter", "hash2")
	req.ErrorIs(err, errs.ErrUserExists)
}

func TestUserRepository_LinkFriendsBothWaysIdempotent(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t), slog.Default())

	a, err := repo.Create("a@example.com", "A", "h")
	req.NoError(err)
	b, err := repo.Create("b@example.com", "B", "h")
	req.NoError(err)

	req.NoError(repo.LinkFriends(a.ID, b.ID))
	req.NoError(repo.LinkFriends(a.ID, b.ID))

	gotA, err := repo.GetByID(a.ID)
	req.NoError(err)
	gotB, err := repo.GetByID(b.ID)
	req.NoError(err)

	req.Equal([]string{b.ID}, gotA.Friends)
	req.Equal([]string{a.ID}, gotB.Friends)
}

func TestUserRepository_List(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t), slog.Default())

	_, err := repo.Create("a@example.com", "A", "h")
	req.NoError(err)
	_, err = repo.Create("b@example.com", "B", "h")
	req.NoError(err)

	users, err := repo.List()
	req.NoError(err)
	req.Len(users, 2)
}
