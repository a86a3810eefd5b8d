// Package kv defines the key/value persistence capability the notes store
// is built on, with in-memory and JSON-file implementations.
package kv

import "context"

// Store is an asynchronous-style key/value space holding JSON documents.
// Keys missing from the backend are absent from Get results; removing an
// absent key is not an error.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	GetAll(ctx context.Context) (map[string][]byte, error)
	Set(ctx context.Context, items map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
	BytesInUse(ctx context.Context) (int64, error)
	Close() error
}

func sizeOf(entries map[string][]byte) int64 {
	var n int64
	for k, v := range entries {
		n += int64(len(k) + len(v))
	}
	return n
}

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
