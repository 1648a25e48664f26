package relay

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndList(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	hub := NewHub(reg, slog.Default())

	req.Empty(reg.List())
	req.False(reg.IsReachable("alice"))

	alice := newClient("alice", nil, hub)
	bob := newClient("bob", nil, hub)

	req.Nil(reg.Register("alice", alice))
	req.Nil(reg.Register("bob", bob))

	req.True(reg.IsReachable("alice"))
	req.True(reg.IsReachable("bob"))
	req.Equal([]string{"alice", "bob"}, reg.List())
}

func TestRegistry_SecondConnectionReplacesFirst(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	hub := NewHub(reg, slog.Default())

	first := newClient("alice", nil, hub)
	second := newClient("alice", nil, hub)

	req.Nil(reg.Register("alice", first))
	prev := reg.Register("alice", second)
	req.Same(first, prev)

	// The replaced connection's slow disconnect must not knock out the
	// successor.
	req.False(reg.Deregister("alice", first))
	req.True(reg.IsReachable("alice"))

	req.True(reg.Deregister("alice", second))
	req.False(reg.IsReachable("alice"))
	req.Empty(reg.List())
}

func TestRegistry_DeregisterRemovesOnlyOwner(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	hub := NewHub(reg, slog.Default())

	alice := newClient("alice", nil, hub)
	bob := newClient("bob", nil, hub)
	reg.Register("alice", alice)
	reg.Register("bob", bob)

	req.True(reg.Deregister("alice", alice))
	req.Equal([]string{"bob"}, reg.List())
	req.False(reg.IsReachable("alice"))
	req.True(reg.IsReachable("bob"))
}
