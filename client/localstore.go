// Package client implements the reconciliation core of spec §4.6: the
// per-document buffers (snapshot, committed tail, pending queue, in-flight
// sending change) and the rules that rebase pending edits against
// server-accepted changes.
//
// Grounded on the pack's nodestorage/v2 Cachable/Storage pair (a typed
// document cache kept consistent with a version field via optimistic
// concurrency), reshaped from "retry a conditional write against a single
// cached document" to "maintain snapshot+committed+pending+sending buffers
// and rebase them against server Changes" per spec §4.6.
package client

import (
	"context"
	"time"

	"patches/change"
	"patches/ids"
)

// Snapshot is spec §3's PatchesSnapshot: a materialised state at rev plus
// the tail of not-yet-committed local changes whose baseRev >= rev.
type Snapshot struct {
	State   interface{}
	Rev     int64
	Changes []change.Change
}

// LocalStore is the thin local-persistence contract of spec §4.7: a KV of
// per-doc records the reconciliation core reads/writes through. Sub-stores
// are named directly after the spec's outline (snapshots, committedChanges,
// pendingChanges, tombstones). Implementations must make
// SaveCommittedAndDropPending and SaveSendingAndDropPending atomic — those
// are the two cross-store transactions this package's correctness depends
// on.
type LocalStore interface {
	// LoadSnapshot returns the persisted snapshot for docID, or nil if none
	// has ever been saved.
	LoadSnapshot(ctx context.Context, docID ids.DocID) (*Snapshot, error)

	// SaveSnapshot replaces the persisted snapshot — used by Doc.Import and
	// Doc.ConfirmDeleteDoc.
	SaveSnapshot(ctx context.Context, docID ids.DocID, snap Snapshot) error

	// ListCommitted returns persisted committed changes with rev > afterRev,
	// ascending.
	ListCommitted(ctx context.Context, docID ids.DocID, afterRev int64) ([]change.Change, error)

	// ListPending returns the persisted pending queue, in submission order.
	ListPending(ctx context.Context, docID ids.DocID) ([]change.Change, error)

	// SavePending replaces the entire persisted pending queue.
	SavePending(ctx context.Context, docID ids.DocID, pending []change.Change) error

	// SaveCommittedAndDropPending atomically appends newlyCommitted to the
	// committed tail and replaces the pending queue with remainingPending —
	// the one transaction boundary spec §4.7 requires.
	SaveCommittedAndDropPending(ctx context.Context, docID ids.DocID, newlyCommitted []change.Change, remainingPending []change.Change) error

	// LoadSending returns the persisted in-flight batch, or nil if none.
	LoadSending(ctx context.Context, docID ids.DocID) ([]change.Change, error)

	// SaveSendingAndDropPending atomically promotes sending to the in-flight
	// slot and replaces the pending queue with remainingPending (spec §4.6
	// "move a prefix of pending into sending, persist atomically").
	SaveSendingAndDropPending(ctx context.Context, docID ids.DocID, sending []change.Change, remainingPending []change.Change) error

	// ClearSending drops the in-flight batch once it has been acked or
	// explicitly confirmed.
	ClearSending(ctx context.Context, docID ids.DocID) error

	// GetTombstone / SetTombstone mirror the server-side tombstone contract
	// on the client's own local copy.
	GetTombstone(ctx context.Context, docID ids.DocID) (*change.Tombstone, error)
	SetTombstone(ctx context.Context, docID ids.DocID, tomb *change.Tombstone) error
	ClearTombstone(ctx context.Context, docID ids.DocID) error
}

// CompactionOptions describes the periodic snapshot-compaction policy
// outlined in spec §4.7. Nothing in this module runs compaction or reads
// these options.
type CompactionOptions struct {
	// EveryNCommitted triggers compaction once this many committed changes
	// have accumulated since the last snapshot (spec §4.7: "e.g. every 200
	// committed changes").
	EveryNCommitted int
	Now             func() time.Time
}

// DefaultCompactionOptions matches the pack's eventsync compaction
// cadence in spirit (a fixed count-based trigger, not time-based).
func DefaultCompactionOptions() *CompactionOptions {
	return &CompactionOptions{EveryNCommitted: 200, Now: time.Now}
}

func (o *CompactionOptions) withDefaults() *CompactionOptions {
	if o == nil {
		return DefaultCompactionOptions()
	}
	out := *o
	if out.EveryNCommitted <= 0 {
		out.EveryNCommitted = 200
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}
