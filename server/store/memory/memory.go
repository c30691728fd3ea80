// Package memory is an in-memory server.Store (plus TombstoneStore and
// VersionStore), suitable for tests and single-process demos.
//
// Grounded on the pack's nodestorage/v2 in-memory cache shape (a
// mutex-guarded map keyed by document id), generalized from a document
// cache to the append-only revision log this spec's Store contract names.
package memory

import (
	"context"
	"sync"
	"time"

	"patches/change"
	"patches/ids"
	"patches/patch"
	"patches/server"
)

type docRecord struct {
	changes   []change.Change
	tombstone *change.Tombstone
	versions  []change.VersionRecord
}

// Store implements server.Store, server.TombstoneStore and
// server.VersionStore entirely in memory.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*docRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{docs: make(map[string]*docRecord)}
}

func (s *Store) record(docID ids.DocID) *docRecord {
	key := docID.String()
	r, ok := s.docs[key]
	if !ok {
		r = &docRecord{}
		s.docs[key] = r
	}
	return r
}

// GetHeadRev implements server.Store.
func (s *Store) GetHeadRev(_ context.Context, docID ids.DocID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[docID.String()]
	if !ok || len(r.changes) == 0 {
		return 0, nil
	}
	return r.changes[len(r.changes)-1].Rev, nil
}

// GetStateAtRevision implements server.Store by replaying every committed
// change up to and including rev from the empty document.
func (s *Store) GetStateAtRevision(_ context.Context, docID ids.DocID, rev int64) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[docID.String()]
	if !ok {
		return nil, nil
	}
	var state interface{}
	registry := patch.DefaultRegistry()
	for _, c := range r.changes {
		if c.Rev > rev {
			break
		}
		next, err := patch.Apply(registry, state, c.Ops)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// ListChanges implements server.Store.
func (s *Store) ListChanges(_ context.Context, docID ids.DocID, opts server.ListOptions) ([]change.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[docID.String()]
	if !ok {
		return nil, nil
	}
	out := make([]change.Change, 0, len(r.changes))
	for _, c := range r.changes {
		if c.Rev <= opts.StartAfter {
			continue
		}
		if opts.EndBefore != 0 && c.Rev >= opts.EndBefore {
			continue
		}
		if opts.WithoutBatchID != "" && c.BatchID == opts.WithoutBatchID {
			continue
		}
		out = append(out, c)
	}
	if opts.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// SaveChanges implements server.Store.
func (s *Store) SaveChanges(_ context.Context, docID ids.DocID, changes []change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(docID)
	r.changes = append(r.changes, changes...)
	return nil
}

// SaveVersionRecords implements server.VersionStore.
func (s *Store) SaveVersionRecords(_ context.Context, docID ids.DocID, records []change.VersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(docID)
	r.versions = append(r.versions, records...)
	return nil
}

// CreateTombstone implements server.TombstoneStore.
func (s *Store) CreateTombstone(_ context.Context, docID ids.DocID, deletedAt time.Time, atRev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(docID)
	r.tombstone = &change.Tombstone{DocID: docID, DeletedAt: deletedAt, AtRev: atRev}
	return nil
}

// GetTombstone implements server.TombstoneStore.
func (s *Store) GetTombstone(_ context.Context, docID ids.DocID) (*change.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[docID.String()]
	if !ok {
		return nil, nil
	}
	return r.tombstone, nil
}

// RemoveTombstone implements server.TombstoneStore.
func (s *Store) RemoveTombstone(_ context.Context, docID ids.DocID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[docID.String()]
	if !ok {
		return nil
	}
	r.tombstone = nil
	return nil
}

// Versions returns the version records persisted for docID, for test
// assertions. Not part of server.VersionStore.
func (s *Store) Versions(docID ids.DocID) []change.VersionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[docID.String()]
	if !ok {
		return nil
	}
	return append([]change.VersionRecord(nil), r.versions...)
}
