package server

import "fmt"

// ErrInconsistentBaseRev is returned when an incoming batch's ChangeInputs
// disagree on baseRev after normalisation (spec §4.4 step 2).
type ErrInconsistentBaseRev struct {
	DocID string
}

func (e ErrInconsistentBaseRev) Error() string {
	return fmt.Sprintf("patches: inconsistent baseRev in batch for doc %s", e.DocID)
}

// ErrClientAhead is returned when baseRev exceeds the document's head rev
// (spec §4.4 step 3): the client must reload before retrying.
type ErrClientAhead struct {
	DocID   string
	BaseRev int64
	HeadRev int64
}

func (e ErrClientAhead) Error() string {
	return fmt.Sprintf("patches: client ahead for doc %s: baseRev=%d > headRev=%d", e.DocID, e.BaseRev, e.HeadRev)
}

// ErrDocExists is returned when a root add/replace targets an existing
// document outside of an explicit initial batch (spec §4.4 step 3).
type ErrDocExists struct {
	DocID string
}

func (e ErrDocExists) Error() string {
	return fmt.Sprintf("patches: document already exists: %s", e.DocID)
}

// ErrDocDeleted is returned by CommitChanges when the document has a
// tombstone (spec §7). The Pipeline has no read operations, so no read in
// this package returns it.
type ErrDocDeleted struct {
	DocID string
}

func (e ErrDocDeleted) Error() string {
	return fmt.Sprintf("patches: document deleted: %s", e.DocID)
}

// ErrBadRequest wraps a caller-facing validation failure that does not fit
// one of the other typed categories (spec §7 "Validation").
type ErrBadRequest struct {
	Message string
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("patches: bad request: %s", e.Message)
}
