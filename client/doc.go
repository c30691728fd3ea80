package client

import (
	"context"
	"sync"
	"time"

	"patches/change"
	"patches/ids"
	"patches/patch"
	"patches/transform"
)

// Options configures a Doc.
type Options struct {
	Registry *patch.Registry
	Now      func() time.Time
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		return &Options{Registry: patch.DefaultRegistry(), Now: time.Now}
	}
	out := *o
	if out.Registry == nil {
		out.Registry = patch.DefaultRegistry()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

// Doc is the per-document reconciliation core of spec §4.6: it owns the
// (snapshot, committed, pending, sending, deleted) buffer set and the rules
// that keep them converging with the server without losing local intent.
//
// A Doc is single-threaded per the "thin client doc" design note (spec §9):
// all mutation happens through its methods, serialised by mu the same way
// the source serialises per-doc promise chains (spec §9 "Concurrency
// primitives").
type Doc struct {
	docID    ids.DocID
	clientID ids.ClientID
	store    LocalStore
	idGen    *ids.ChangeIDGenerator
	opts     *Options

	mu        sync.Mutex
	snapshot  Snapshot
	committed []change.Change
	pending   []change.Change
	sending   []change.Change
	deleted   bool
}

// Open constructs a Doc and loads its buffers from store. docID/clientID
// identify this document and this client to the server; idGen mints
// Change.ID values for locally authored edits.
func Open(ctx context.Context, docID ids.DocID, clientID ids.ClientID, store LocalStore, idGen *ids.ChangeIDGenerator, opts *Options) (*Doc, error) {
	d := &Doc{
		docID:    docID,
		clientID: clientID,
		store:    store,
		idGen:    idGen,
		opts:     opts.withDefaults(),
	}
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Doc) load(ctx context.Context) error {
	snap, err := d.store.LoadSnapshot(ctx, d.docID)
	if err != nil {
		return err
	}
	if snap != nil {
		d.snapshot = *snap
	}
	committed, err := d.store.ListCommitted(ctx, d.docID, d.snapshot.Rev)
	if err != nil {
		return err
	}
	d.committed = committed
	pending, err := d.store.ListPending(ctx, d.docID)
	if err != nil {
		return err
	}
	d.pending = pending
	sending, err := d.store.LoadSending(ctx, d.docID)
	if err != nil {
		return err
	}
	d.sending = sending
	tomb, err := d.store.GetTombstone(ctx, d.docID)
	if err != nil {
		return err
	}
	d.deleted = tomb != nil
	return nil
}

// committedRev is the revision the materialised state reflects: the last
// committed change's rev, or the snapshot's rev if committed is empty.
func (d *Doc) committedRev() int64 {
	if len(d.committed) == 0 {
		return d.snapshot.Rev
	}
	return d.committed[len(d.committed)-1].Rev
}

func (d *Doc) materialize() (interface{}, error) {
	state := d.snapshot.State
	for _, c := range d.committed {
		next, err := patch.Apply(d.opts.Registry, state, c.Ops)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// GetDoc implements spec §4.6's getDoc: reconstructs state, rebases pending
// against newly committed history if needed, and returns the current
// snapshot view.
func (d *Doc) GetDoc(ctx context.Context) (*Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleted {
		return nil, ErrDocDeleted{DocID: d.docID.String()}
	}

	state, err := d.materialize()
	if err != nil {
		return nil, err
	}
	committedRev := d.committedRev()

	if len(d.pending) > 0 && d.pending[0].BaseRev < committedRev {
		if err := d.rebasePendingLocked(ctx, state, committedRev); err != nil {
			return nil, err
		}
	}

	return &Snapshot{State: state, Rev: committedRev, Changes: append([]change.Change(nil), d.pending...)}, nil
}

// rebasePendingLocked implements spec §4.6's rebase rule: concurrentOps is
// every committed op with rev > pending[0].baseRev, and every pending
// change is rewritten against that same concurrent set in submission order.
func (d *Doc) rebasePendingLocked(ctx context.Context, state interface{}, committedRev int64) error {
	oldestBase := d.pending[0].BaseRev
	var concurrentOps patch.Patch
	for _, c := range d.committed {
		if c.Rev > oldestBase {
			concurrentOps = append(concurrentOps, c.Ops...)
		}
	}

	rebased := make([]change.Change, len(d.pending))
	for i, p := range d.pending {
		transformedOps, err := transform.Transform(d.opts.Registry, state, concurrentOps, p.Ops)
		if err != nil {
			return err
		}
		p.Rev += committedRev - p.BaseRev
		p.Ops = transformedOps
		p.BaseRev = committedRev
		rebased[i] = p
	}
	d.pending = rebased
	return d.store.SavePending(ctx, d.docID, d.pending)
}

// Change implements spec §4.6's change(mutator): runs mutator to accumulate
// ops, appends one new pending change, and persists it.
func (d *Doc) Change(ctx context.Context, mutate func(*Mutator)) (change.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleted {
		return change.Change{}, ErrDocDeleted{DocID: d.docID.String()}
	}

	m := &Mutator{}
	mutate(m)
	if len(m.ops) == 0 {
		return change.Change{}, nil
	}

	baseRev := d.committedRev()
	c := change.Change{
		ID:        d.idGen.Next(),
		DocID:     d.docID,
		Ops:       m.ops,
		BaseRev:   baseRev,
		Rev:       d.nextPendingRevLocked(baseRev),
		CreatedAt: d.opts.Now(),
		ClientID:  d.clientID,
	}
	d.pending = append(d.pending, c)
	if err := d.store.SavePending(ctx, d.docID, d.pending); err != nil {
		return change.Change{}, err
	}
	return c, nil
}

// nextPendingRevLocked assigns the provisional rev spec §4.6 calls
// nextLocalRev: the rev this change would land at if nothing concurrent
// commits before it, i.e. one past the last pending change sharing the same
// baseRev epoch.
func (d *Doc) nextPendingRevLocked(baseRev int64) int64 {
	n := int64(0)
	for _, p := range d.pending {
		if p.BaseRev == baseRev {
			n++
		}
	}
	return baseRev + n + 1
}

// ApplyChanges implements spec §4.6's applyChanges: appends a contiguous
// run of server-committed changes, rebases pending, and drops any pending
// entry whose id matches one of the newly committed changes (an ack).
func (d *Doc) ApplyChanges(ctx context.Context, changes []change.Change) error {
	return d.applyCommitted(ctx, changes, false)
}

// ApplyServerChanges implements spec §4.6's applyServerChanges: the same as
// ApplyChanges, but also clears sending when the ack's id matches.
func (d *Doc) ApplyServerChanges(ctx context.Context, changes []change.Change) error {
	return d.applyCommitted(ctx, changes, true)
}

func (d *Doc) applyCommitted(ctx context.Context, changes []change.Change, clearSending bool) error {
	if len(changes) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	expected := d.committedRev() + 1
	if changes[0].Rev != expected {
		return ErrMissingChanges{Expected: expected, Got: changes[0].Rev}
	}
	for i := 1; i < len(changes); i++ {
		if changes[i].Rev != changes[i-1].Rev+1 {
			return ErrMissingChanges{Expected: changes[i-1].Rev + 1, Got: changes[i].Rev}
		}
	}

	acked := make(map[ids.ChangeID]bool, len(changes))
	for _, c := range changes {
		acked[c.ID] = true
	}

	survivors := d.pending[:0:0]
	for _, p := range d.pending {
		if !acked[p.ID] {
			survivors = append(survivors, p)
		}
	}
	d.pending = survivors

	if len(d.pending) > 0 {
		newCommitted := append(append([]change.Change(nil), d.committed...), changes...)
		var concurrentOps patch.Patch
		for _, c := range changes {
			concurrentOps = append(concurrentOps, c.Ops...)
		}
		state := d.snapshot.State
		for _, c := range newCommitted {
			next, err := patch.Apply(d.opts.Registry, state, c.Ops)
			if err != nil {
				return err
			}
			state = next
		}
		rebased := make([]change.Change, len(d.pending))
		newHead := changes[len(changes)-1].Rev
		for i, p := range d.pending {
			transformedOps, err := transform.Transform(d.opts.Registry, state, concurrentOps, p.Ops)
			if err != nil {
				return err
			}
			p.Rev += newHead - p.BaseRev
			p.Ops = transformedOps
			p.BaseRev = newHead
			rebased[i] = p
		}
		d.pending = rebased
	}

	if err := d.store.SaveCommittedAndDropPending(ctx, d.docID, changes, d.pending); err != nil {
		return err
	}
	d.committed = append(d.committed, changes...)

	if clearSending && len(d.sending) > 0 {
		stillSending := d.sending[:0:0]
		for _, s := range d.sending {
			if !acked[s.ID] {
				stillSending = append(stillSending, s)
			}
		}
		if len(stillSending) == 0 {
			d.sending = nil
			if err := d.store.ClearSending(ctx, d.docID); err != nil {
				return err
			}
		} else {
			d.sending = stillSending
		}
	}

	return nil
}

// SaveSendingChange implements spec §4.6's saveSendingChange: moves up to
// count pending changes (all of them, if count <= 0) into the sending slot
// and persists that atomically with the pending drop. Returns the existing
// sending batch unchanged if one is already in flight (idempotent send: the
// caller should retransmit that same batch rather than build a new one).
func (d *Doc) SaveSendingChange(ctx context.Context, count int) ([]change.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sending) > 0 {
		return append([]change.Change(nil), d.sending...), nil
	}
	if len(d.pending) == 0 {
		return nil, nil
	}
	if count <= 0 || count > len(d.pending) {
		count = len(d.pending)
	}

	batch := append([]change.Change(nil), d.pending[:count]...)
	remaining := append([]change.Change(nil), d.pending[count:]...)
	if err := d.store.SaveSendingAndDropPending(ctx, d.docID, batch, remaining); err != nil {
		return nil, err
	}
	d.sending = batch
	d.pending = remaining
	return append([]change.Change(nil), batch...), nil
}

// ConfirmSendingChange implements spec §4.6's confirmSendingChange: clears
// the sending slot once the caller knows it has been committed, without
// waiting for the matching ApplyServerChanges call.
func (d *Doc) ConfirmSendingChange(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sending) == 0 {
		return nil
	}
	d.sending = nil
	return d.store.ClearSending(ctx, d.docID)
}

// GetPendingChanges returns every not-yet-committed local change, sending
// batch first, in submission order.
func (d *Doc) GetPendingChanges() []change.Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]change.Change, 0, len(d.sending)+len(d.pending))
	out = append(out, d.sending...)
	out = append(out, d.pending...)
	return out
}

// Import replaces the local snapshot with an externally supplied one (spec
// §6's PatchesDoc.import) — typically used the first time a client opens a
// document, before it has anything pending. Importing while changes are
// pending is the caller's responsibility to reconcile; Import does not
// itself rebase pending against the gap this may introduce.
func (d *Doc) Import(ctx context.Context, snap Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = Snapshot{State: snap.State, Rev: snap.Rev}
	d.committed = nil
	return d.store.SaveSnapshot(ctx, d.docID, d.snapshot)
}

// DeleteDoc implements spec §4.6's deleteDoc: marks the local tombstone and
// clears buffers.
func (d *Doc) DeleteDoc(ctx context.Context, deletedAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tomb := &change.Tombstone{DocID: d.docID, DeletedAt: deletedAt, AtRev: d.committedRev()}
	if err := d.store.SetTombstone(ctx, d.docID, tomb); err != nil {
		return err
	}
	d.deleted = true
	d.committed = nil
	d.pending = nil
	d.sending = nil
	return nil
}

// ConfirmDeleteDoc implements spec §4.6's confirmDeleteDoc once the server
// delete is confirmed: it clears the local tombstone and the in-memory
// buffers and saves an empty snapshot. Committed, pending and sending
// records already persisted in the LocalStore are not removed.
func (d *Doc) ConfirmDeleteDoc(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.ClearTombstone(ctx, d.docID); err != nil {
		return err
	}
	d.deleted = false
	d.snapshot = Snapshot{}
	d.committed = nil
	d.pending = nil
	d.sending = nil
	return d.store.SaveSnapshot(ctx, d.docID, d.snapshot)
}
