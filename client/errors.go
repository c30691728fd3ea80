package client

import "fmt"

// ErrMissingChanges is returned by ApplyChanges/ApplyServerChanges when the
// committed changes handed in do not form a contiguous sequence starting at
// the expected next revision (spec §4.6, S6). The transport should respond
// by calling getChangesSince(committedRev) and retrying.
type ErrMissingChanges struct {
	Expected int64
	Got      int64
}

func (e ErrMissingChanges) Error() string {
	return fmt.Sprintf("client: missing changes: expected rev %d, got %d", e.Expected, e.Got)
}

// ErrDocDeleted is returned by operations against a doc whose local
// tombstone is set.
type ErrDocDeleted struct {
	DocID string
}

func (e ErrDocDeleted) Error() string {
	return fmt.Sprintf("client: doc %s is deleted", e.DocID)
}
