package storage

import (
	"errors"
	"strings"

	"github.com/dgraph-io/badger/v4"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// BadgerStore implements KeyValueStore on a Badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadger opens (or creates) a Badger database in dir.
func NewBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, walleterr.WithSuggestion(
				walleterr.WithDetails(walleterr.WithCause(walleterr.ErrStoreUnavailable, err), map[string]string{"dir": dir}),
				"another satchel process is using this wallet store")
		}
		return nil, walleterr.WithDetails(walleterr.WithCause(walleterr.ErrStoreUnavailable, err), map[string]string{"dir": dir})
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerInMemory opens a Badger database that lives only in memory.
func NewBadgerInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns a copy of the value stored under (walletID, key).
func (b *BadgerStore) Get(walletID, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(compositeKey(walletID, key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return val, nil
}

// Put stores value under (walletID, key).
func (b *BadgerStore) Put(walletID, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(compositeKey(walletID, key), value)
	})
	if err != nil {
		return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return nil
}

// PutBatch stores all entries in one transaction.
func (b *BadgerStore) PutBatch(walletID string, entries map[string][]byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for key, value := range entries {
			if err := txn.Set(compositeKey(walletID, key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes (walletID, key). Deleting an absent key is not an error.
func (b *BadgerStore) Delete(walletID, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(compositeKey(walletID, key))
	})
	if err != nil {
		return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return nil
}

// Keys lists the keys stored for walletID in byte order.
func (b *BadgerStore) Keys(walletID string) ([]string, error) {
	prefix := walletPrefix(walletID)
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return keys, nil
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
