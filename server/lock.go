package server

import "sync"

// docLocks serializes commitChanges per docId (spec §5 "per-document
// serialization: at most one commitChanges executes concurrently for a
// given docId"), grounded on the pack's nodestorage/v2 lock-per-key
// pattern used around its own optimistic-concurrency retry loop.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the per-doc mutex for docID, creating it on first use, and
// returns a function that releases it.
func (d *docLocks) lock(docID string) func() {
	d.mu.Lock()
	l, ok := d.locks[docID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[docID] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}
