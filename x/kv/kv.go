// Package kv is a small key-value store with hierarchical keys, used for the
// bridge's persisted settings. Keys encode with ':' between segments, so
// Key{"config", "ssid"} is stored as "config:ssid".
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path of segments. Segments must not contain ':'.
type Key []string

func (k Key) String() string { return strings.Join(k, ":") }

func (k Key) encode() []byte { return []byte(k.String()) }

// Entry is a key-value pair used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

type Store interface {
	// Get returns ErrNotFound if the key is not present.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key Key) error
	// BatchSet stores all entries or none.
	BatchSet(ctx context.Context, entries []Entry) error
	Close() error
}
