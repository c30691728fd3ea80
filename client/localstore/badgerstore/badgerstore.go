// Package badgerstore is a durable client.LocalStore backed by BadgerDB —
// the natural client-side counterpart to the server's MongoDB store, for
// processes (desktop/mobile clients, offline-capable daemons) that need
// their local buffers to survive a restart.
//
// Grounded on the pack's nodestorage/v2/cache BadgerCache[T]
// (badger.Open with options, JSON-encoded values behind a generic Get/Set),
// generalized from a single TTL'd document cache to the five untimed,
// never-evicted record kinds client.LocalStore names, each under its own
// key prefix.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"patches/change"
	"patches/client"
	"patches/ids"
)

// Options configures a Store, following the pack's BadgerCacheOptions
// functional-option shape.
type Options struct {
	Path     string
	InMemory bool
}

// Option configures Options.
type Option func(*Options)

// DefaultOptions matches the pack's BadgerCache defaults save for TTL,
// which this store does not use (client buffers are never time-evicted).
func DefaultOptions() *Options {
	return &Options{Path: "./patches-client-data", InMemory: false}
}

// WithPath sets the on-disk directory for the BadgerDB files.
func WithPath(path string) Option {
	return func(o *Options) { o.Path = path }
}

// WithInMemory runs BadgerDB purely in memory, useful for tests that still
// want to exercise the real codec path.
func WithInMemory(inMemory bool) Option {
	return func(o *Options) { o.InMemory = inMemory }
}

// Store is a client.LocalStore backed by a single BadgerDB instance.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a BadgerDB-backed Store.
func Open(opts ...Option) (*Store, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	badgerOpts := badger.DefaultOptions(options.Path)
	badgerOpts.Logger = nil
	if options.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.Wrap(err, "badgerstore: failed to open BadgerDB")
	}
	return &Store{db: db}, nil
}

var _ client.LocalStore = (*Store)(nil)

// Close releases the underlying BadgerDB handles.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(docID ids.DocID) []byte  { return []byte("snap:" + docID.String()) }
func pendingKey(docID ids.DocID) []byte   { return []byte("pending:" + docID.String()) }
func sendingKey(docID ids.DocID) []byte   { return []byte("sending:" + docID.String()) }
func tombstoneKey(docID ids.DocID) []byte { return []byte("tomb:" + docID.String()) }

func committedPrefix(docID ids.DocID) []byte {
	return []byte("committed:" + docID.String() + ":")
}

// committedKey zero-pads rev so lexicographic key order matches rev order.
func committedKey(docID ids.DocID, rev int64) []byte {
	return []byte(fmt.Sprintf("committed:%s:%020d", docID.String(), rev))
}

func (s *Store) getJSON(key []byte, out interface{}) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	return found, err
}

func (s *Store) setJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "badgerstore: failed to serialize value")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Store) LoadSnapshot(_ context.Context, docID ids.DocID) (*client.Snapshot, error) {
	var snap client.Snapshot
	found, err := s.getJSON(snapshotKey(docID), &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) SaveSnapshot(_ context.Context, docID ids.DocID, snap client.Snapshot) error {
	return s.setJSON(snapshotKey(docID), snap)
}

func (s *Store) ListCommitted(_ context.Context, docID ids.DocID, afterRev int64) ([]change.Change, error) {
	var out []change.Change
	prefix := committedPrefix(docID)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c change.Change
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			if c.Rev > afterRev {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListPending(_ context.Context, docID ids.DocID) ([]change.Change, error) {
	var out []change.Change
	_, err := s.getJSON(pendingKey(docID), &out)
	return out, err
}

func (s *Store) SavePending(_ context.Context, docID ids.DocID, pending []change.Change) error {
	return s.setJSON(pendingKey(docID), pending)
}

func (s *Store) SaveCommittedAndDropPending(_ context.Context, docID ids.DocID, newlyCommitted []change.Change, remainingPending []change.Change) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, c := range newlyCommitted {
			data, err := json.Marshal(c)
			if err != nil {
				return errors.Wrap(err, "badgerstore: failed to serialize committed change")
			}
			if err := txn.Set(committedKey(docID, c.Rev), data); err != nil {
				return err
			}
		}
		data, err := json.Marshal(remainingPending)
		if err != nil {
			return errors.Wrap(err, "badgerstore: failed to serialize pending")
		}
		return txn.Set(pendingKey(docID), data)
	})
}

func (s *Store) LoadSending(_ context.Context, docID ids.DocID) ([]change.Change, error) {
	var out []change.Change
	found, err := s.getJSON(sendingKey(docID), &out)
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveSendingAndDropPending(_ context.Context, docID ids.DocID, sending []change.Change, remainingPending []change.Change) error {
	return s.db.Update(func(txn *badger.Txn) error {
		sendingData, err := json.Marshal(sending)
		if err != nil {
			return errors.Wrap(err, "badgerstore: failed to serialize sending")
		}
		if err := txn.Set(sendingKey(docID), sendingData); err != nil {
			return err
		}
		pendingData, err := json.Marshal(remainingPending)
		if err != nil {
			return errors.Wrap(err, "badgerstore: failed to serialize pending")
		}
		return txn.Set(pendingKey(docID), pendingData)
	})
}

func (s *Store) ClearSending(_ context.Context, docID ids.DocID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(sendingKey(docID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *Store) GetTombstone(_ context.Context, docID ids.DocID) (*change.Tombstone, error) {
	var tomb change.Tombstone
	found, err := s.getJSON(tombstoneKey(docID), &tomb)
	if err != nil || !found {
		return nil, err
	}
	return &tomb, nil
}

func (s *Store) SetTombstone(_ context.Context, docID ids.DocID, tomb *change.Tombstone) error {
	return s.setJSON(tombstoneKey(docID), tomb)
}

func (s *Store) ClearTombstone(_ context.Context, docID ids.DocID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(tombstoneKey(docID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
