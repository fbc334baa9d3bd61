package rulestore

import "errors"

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store is closed")

// StoreStats captures high-level counts and metadata for a key/value store.
type StoreStats struct {
	Keys        uint64 `json:"keys"`        // number of stored entries
	Version     uint64 `json:"version"`     // incremented on every successful Put
	UpdatedUnix int64  `json:"updatedUnix"` // seconds since epoch of the last Put, 0 if never written
}

// KVStore is the durable key/value facility rules are persisted in.
// - Get: value for key; ok=false when the key was never written
// - Put: overwrite the value for key and bump the write metadata
// - Stats: counts and metadata; Close: release resources
//
// Implementations serialize their own reads and writes.
type KVStore interface {
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
	Stats() StoreStats
	Close() error
}
