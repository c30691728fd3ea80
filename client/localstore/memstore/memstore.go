// Package memstore is an in-memory client.LocalStore, primarily for tests
// and for short-lived processes that don't need durability across restarts.
//
// Grounded on the pack's nodestorage/v2/cache map_cache.go (a mutex-
// guarded map keyed by a string-formatted id), generalized from a single
// document cache to the five per-doc record kinds client.LocalStore names.
package memstore

import (
	"context"
	"sync"

	"patches/change"
	"patches/client"
	"patches/ids"
)

type docRecord struct {
	snapshot  *client.Snapshot
	committed []change.Change
	pending   []change.Change
	sending   []change.Change
	tombstone *change.Tombstone
}

// Store is a sync.RWMutex-guarded map of per-document records.
type Store struct {
	mu   sync.RWMutex
	docs map[ids.DocID]*docRecord
}

// New creates an empty memstore.Store.
func New() *Store {
	return &Store{docs: make(map[ids.DocID]*docRecord)}
}

var _ client.LocalStore = (*Store)(nil)

func (s *Store) record(docID ids.DocID) *docRecord {
	rec, ok := s.docs[docID]
	if !ok {
		rec = &docRecord{}
		s.docs[docID] = rec
	}
	return rec
}

func (s *Store) LoadSnapshot(_ context.Context, docID ids.DocID) (*client.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok || rec.snapshot == nil {
		return nil, nil
	}
	cp := *rec.snapshot
	return &cp, nil
}

func (s *Store) SaveSnapshot(_ context.Context, docID ids.DocID, snap client.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := snap
	s.record(docID).snapshot = &cp
	return nil
}

func (s *Store) ListCommitted(_ context.Context, docID ids.DocID, afterRev int64) ([]change.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok {
		return nil, nil
	}
	var out []change.Change
	for _, c := range rec.committed {
		if c.Rev > afterRev {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListPending(_ context.Context, docID ids.DocID) ([]change.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok {
		return nil, nil
	}
	out := make([]change.Change, len(rec.pending))
	for i, c := range rec.pending {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *Store) SavePending(_ context.Context, docID ids.DocID, pending []change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(docID).pending = append([]change.Change(nil), pending...)
	return nil
}

func (s *Store) SaveCommittedAndDropPending(_ context.Context, docID ids.DocID, newlyCommitted []change.Change, remainingPending []change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(docID)
	rec.committed = append(rec.committed, newlyCommitted...)
	rec.pending = append([]change.Change(nil), remainingPending...)
	return nil
}

func (s *Store) LoadSending(_ context.Context, docID ids.DocID) ([]change.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok || len(rec.sending) == 0 {
		return nil, nil
	}
	return append([]change.Change(nil), rec.sending...), nil
}

func (s *Store) SaveSendingAndDropPending(_ context.Context, docID ids.DocID, sending []change.Change, remainingPending []change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(docID)
	rec.sending = append([]change.Change(nil), sending...)
	rec.pending = append([]change.Change(nil), remainingPending...)
	return nil
}

func (s *Store) ClearSending(_ context.Context, docID ids.DocID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.docs[docID]; ok {
		rec.sending = nil
	}
	return nil
}

func (s *Store) GetTombstone(_ context.Context, docID ids.DocID) (*change.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok || rec.tombstone == nil {
		return nil, nil
	}
	cp := *rec.tombstone
	return &cp, nil
}

func (s *Store) SetTombstone(_ context.Context, docID ids.DocID, tomb *change.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tomb
	s.record(docID).tombstone = &cp
	return nil
}

func (s *Store) ClearTombstone(_ context.Context, docID ids.DocID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.docs[docID]; ok {
		rec.tombstone = nil
	}
	return nil
}
