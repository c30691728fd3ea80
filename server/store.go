package server

import (
	"context"
	"time"

	"patches/change"
	"patches/ids"
)

// ListOptions filters ListChanges (spec §6).
type ListOptions struct {
	StartAfter     int64
	EndBefore      int64
	Limit          int
	Reverse        bool
	WithoutBatchID string
}

// Store is the durable, per-document revision log a Pipeline commits
// against (spec §6 "Store interfaces consumed by the server").
// Implementations must give SaveChanges atomic, all-or-nothing semantics.
type Store interface {
	// GetHeadRev returns the current head revision for docID, or 0 if the
	// document has never been written.
	GetHeadRev(ctx context.Context, docID ids.DocID) (int64, error)

	// GetStateAtRevision materialises the document state as of rev by
	// applying every committed change up to and including rev.
	GetStateAtRevision(ctx context.Context, docID ids.DocID, rev int64) (interface{}, error)

	// ListChanges returns committed changes for docID matching opts,
	// ascending by rev unless opts.Reverse.
	ListChanges(ctx context.Context, docID ids.DocID, opts ListOptions) ([]change.Change, error)

	// SaveChanges atomically appends changes (already rev-assigned) to the
	// log and advances the head revision.
	SaveChanges(ctx context.Context, docID ids.DocID, changes []change.Change) error
}

// VersionStore is optionally implemented by a Store to persist the session
// versioner's output (spec §4.5).
type VersionStore interface {
	SaveVersionRecords(ctx context.Context, docID ids.DocID, records []change.VersionRecord) error
}

// TombstoneStore is optionally implemented by a Store to support deleteDoc
// / undeleteDoc (spec §4.4, §6 "Optional createTombstone...").
type TombstoneStore interface {
	CreateTombstone(ctx context.Context, docID ids.DocID, deletedAt time.Time, atRev int64) error
	GetTombstone(ctx context.Context, docID ids.DocID) (*change.Tombstone, error)
	RemoveTombstone(ctx context.Context, docID ids.DocID) error
}
