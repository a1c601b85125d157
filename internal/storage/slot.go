// Package storage holds the durable key-value slots the ledger store
// persists into. A slot keeps whole values under a key; there is no partial
// update.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when nothing was ever written under the key.
var ErrNotFound = errors.New("key not found")

// Slot is a durable key-value slot. Put overwrites any previous value.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}
