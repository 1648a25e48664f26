// Package store persists users, messages, and friend requests in BadgerDB.
// Records are JSON-encoded under prefixed keys; conversation keys embed the
// creation timestamp so history iterates in creation order.
package store

import (
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Open opens the database at dir. An empty dir opens an in-memory database,
// which is what the tests use.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	return badger.Open(opts)
}

// pairKey builds an order-independent key segment for a conversation between
// two identities.
func pairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}
