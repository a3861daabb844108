// Package keystore provides durable storage for the serialized session.
// It holds credentials only, never application data.
package keystore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
// Absence of stored data is an expected condition, not a storage failure.
var ErrNotFound = errors.New("keystore: not found")

// Store is the credential storage abstraction. Implementations may be backed
// by an OS keystore, an encrypted file, or an in-memory fake. All operations
// can fail (device locked, keystore unavailable); failures propagate to the
// caller, this layer does not swallow them.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
