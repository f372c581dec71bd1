// Package storage persists per-wallet state as opaque values under
// (walletID, key) pairs.
package storage

import (
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// KeyValueStore is the persistence contract used by the UTXO tracker.
// Implementations must be safe for concurrent use.
type KeyValueStore interface {
	Get(walletID, key string) ([]byte, error)
	Put(walletID, key string, value []byte) error
	// PutBatch stores every entry or none of them.
	PutBatch(walletID string, entries map[string][]byte) error
	Delete(walletID, key string) error
	// Keys lists the keys stored for walletID, sorted.
	Keys(walletID string) ([]string, error)
	Close() error
}

// keySeparator cannot appear in a hex wallet ID.
const keySeparator = '/'

func compositeKey(walletID, key string) []byte {
	out := make([]byte, 0, len(walletID)+1+len(key))
	out = append(out, walletID...)
	out = append(out, keySeparator)
	return append(out, key...)
}

func walletPrefix(walletID string) []byte {
	return compositeKey(walletID, "")
}
