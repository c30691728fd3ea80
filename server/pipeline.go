// Package server implements the commit pipeline of spec §4.4: validation,
// rebase-on-head, idempotency filtering, transformation against concurrent
// history, session/offline versioning, and durable persistence.
//
// Grounded on the pack's nodestorage/v2 optimistic-concurrency update
// loop (load current version, attempt a conditional write, retry on
// conflict) and eventsync's per-document sequence-number assignment,
// reshaped from "retry on conflict" to "transform against conflict" since
// this spec is OT rather than optimistic-concurrency-with-retry.
package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"patches/change"
	"patches/ids"
	"patches/notify"
	"patches/patch"
	"patches/transform"
	"patches/version"
)

// Pipeline runs commitChanges/deleteDoc/undeleteDoc against a Store,
// emitting commit/delete notifications through a Notifier.
type Pipeline struct {
	store    Store
	notifier notify.Notifier
	registry *patch.Registry
	locks    *docLocks
	opts     *PipelineOptions
}

// NewPipeline constructs a Pipeline. opts may be nil for defaults.
func NewPipeline(store Store, notifier notify.Notifier, opts *PipelineOptions) *Pipeline {
	return &Pipeline{
		store:    store,
		notifier: notifier,
		registry: patch.DefaultRegistry(),
		locks:    newDocLocks(),
		opts:     opts.withDefaults(),
	}
}

// CommitChanges implements spec §4.4's commitChanges operation.
func (p *Pipeline) CommitChanges(ctx context.Context, docID ids.DocID, incoming []change.ChangeInput, originClientID ids.ClientID) ([]change.Change, []change.Change, error) {
	if len(incoming) == 0 {
		return nil, nil, nil
	}

	unlock := p.locks.lock(docID.String())
	defer unlock()

	if ts, ok := p.store.(TombstoneStore); ok {
		tomb, err := ts.GetTombstone(ctx, docID)
		if err != nil {
			return nil, nil, err
		}
		if tomb != nil {
			return nil, nil, ErrDocDeleted{DocID: docID.String()}
		}
	}

	headRev, err := p.store.GetHeadRev(ctx, docID)
	if err != nil {
		return nil, nil, err
	}

	baseRev, err := normalizeBaseRev(incoming, headRev, docID.String())
	if err != nil {
		return nil, nil, err
	}
	if baseRev > headRev {
		return nil, nil, ErrClientAhead{DocID: docID.String(), BaseRev: baseRev, HeadRev: headRev}
	}

	stateAtBaseRev, err := p.store.GetStateAtRevision(ctx, docID, baseRev)
	if err != nil {
		return nil, nil, err
	}

	if baseRev == 0 && headRev > 0 {
		rootAddReplace := batchTouchesRoot(incoming)
		explicitInitialBatch := headRev > 1 && batchHasBatchID(incoming)
		if rootAddReplace && !explicitInitialBatch {
			return nil, nil, ErrDocExists{DocID: docID.String()}
		}
		incoming = rebaseToHead(incoming, stateAtBaseRev)
		baseRev = headRev
		stateAtBaseRev, err = p.store.GetStateAtRevision(ctx, docID, baseRev)
		if err != nil {
			return nil, nil, err
		}
	}

	batchID := firstBatchID(incoming)
	concurrentCommitted, err := p.store.ListChanges(ctx, docID, ListOptions{StartAfter: baseRev, WithoutBatchID: batchID})
	if err != nil {
		return nil, nil, err
	}

	priorCommitted, newChanges := partitionByIdempotency(incoming, concurrentCommitted)
	if len(newChanges) == 0 {
		return priorCommitted, nil, nil
	}

	offline := batchHasBatchID(newChanges) || p.opts.Now().Sub(firstCreatedAt(newChanges)) > p.opts.SessionTimeout
	var origin change.Origin = change.OriginMain
	if offline && len(concurrentCommitted) > 0 {
		origin = change.OriginOfflineBranch
	}

	committedAt := p.opts.Now()
	transformedChanges, err := p.transformAndAssignRevs(stateAtBaseRev, concurrentCommitted, newChanges, headRev, baseRev, committedAt, originClientID)
	if err != nil {
		return nil, nil, err
	}

	records := version.BuildRecords(transformedChanges, p.opts.versionerOptions(), origin, offline)
	if vs, ok := p.store.(VersionStore); ok && len(records) > 0 {
		if err := vs.SaveVersionRecords(ctx, docID, records); err != nil {
			return nil, nil, err
		}
	}

	if len(transformedChanges) > 0 {
		if err := p.store.SaveChanges(ctx, docID, transformedChanges); err != nil {
			return nil, nil, err
		}
	}

	p.notifier.OnChangesCommitted(ctx, docID, transformedChanges, originClientID)

	return priorCommitted, transformedChanges, nil
}

// transformAndAssignRevs implements spec §4.4 step 6: each new change is
// transformed against the concurrent committed history (not against earlier
// changes of the same batch, which the client authored in sequence), then
// assigned the next head revision. A change whose ops transform to empty is
// dropped unless ForceCommit is set.
func (p *Pipeline) transformAndAssignRevs(
	stateAtBaseRev interface{},
	concurrentCommitted []change.Change,
	newChanges []change.ChangeInput,
	headRev, baseRev int64,
	committedAt time.Time,
	originClientID ids.ClientID,
) ([]change.Change, error) {
	concurrentOps := flattenOps(concurrentCommitted)
	nextRev := headRev + 1
	out := make([]change.Change, 0, len(newChanges))

	for _, ci := range newChanges {
		transformedOps, err := transform.Transform(p.registry, stateAtBaseRev, concurrentOps, ci.Ops)
		if err != nil {
			return nil, err
		}
		if len(transformedOps) == 0 && !p.opts.ForceCommit {
			continue
		}

		createdAt := ci.CreatedAt
		if createdAt.After(committedAt) {
			createdAt = committedAt
		}

		clientID := ci.ClientID
		if clientID.IsZero() {
			clientID = originClientID
		}

		out = append(out, change.Change{
			ID:          ci.ID,
			DocID:       ci.DocID,
			Ops:         transformedOps,
			BaseRev:     baseRev,
			Rev:         nextRev,
			CreatedAt:   createdAt,
			CommittedAt: committedAt,
			BatchID:     ci.BatchID,
			ClientID:    clientID,
			Metadata:    ci.Metadata,
		})
		nextRev++
	}
	return out, nil
}

// DeleteDoc implements spec §4.4's deleteDoc: writes a tombstone if the
// store supports it and emits onDocDeleted.
func (p *Pipeline) DeleteDoc(ctx context.Context, docID ids.DocID, originClientID ids.ClientID) error {
	unlock := p.locks.lock(docID.String())
	defer unlock()

	ts, ok := p.store.(TombstoneStore)
	if ok {
		headRev, err := p.store.GetHeadRev(ctx, docID)
		if err != nil {
			return err
		}
		if err := ts.CreateTombstone(ctx, docID, p.opts.Now(), headRev); err != nil {
			return err
		}
	} else {
		p.opts.Logger.Warn("deleteDoc: store does not support tombstones", zap.String("docId", docID.String()))
	}

	p.notifier.OnDocDeleted(ctx, docID, originClientID)
	return nil
}

// UndeleteDoc implements spec §4.4's undeleteDoc: removes the tombstone if
// present, reporting whether one existed.
func (p *Pipeline) UndeleteDoc(ctx context.Context, docID ids.DocID) (bool, error) {
	unlock := p.locks.lock(docID.String())
	defer unlock()

	ts, ok := p.store.(TombstoneStore)
	if !ok {
		return false, nil
	}
	existing, err := ts.GetTombstone(ctx, docID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := ts.RemoveTombstone(ctx, docID); err != nil {
		return false, err
	}
	return true, nil
}

func normalizeBaseRev(incoming []change.ChangeInput, headRev int64, docID string) (int64, error) {
	var baseRev int64 = -1
	missing := false
	for _, ci := range incoming {
		if ci.BaseRev == nil {
			missing = true
			continue
		}
		if baseRev == -1 {
			baseRev = *ci.BaseRev
		} else if *ci.BaseRev != baseRev {
			return 0, ErrInconsistentBaseRev{DocID: docID}
		}
	}
	if baseRev == -1 {
		baseRev = headRev
	}
	if missing {
		for i := range incoming {
			if incoming[i].BaseRev == nil {
				br := baseRev
				incoming[i].BaseRev = &br
			}
		}
	}
	return baseRev, nil
}

func batchTouchesRoot(incoming []change.ChangeInput) bool {
	for _, ci := range incoming {
		for _, op := range ci.Ops {
			if op.Path == "" && (op.Op == patch.KindAdd || op.Op == patch.KindReplace) {
				return true
			}
		}
	}
	return false
}

func batchHasBatchID(incoming []change.ChangeInput) bool {
	for _, ci := range incoming {
		if ci.BatchID != "" {
			return true
		}
	}
	return false
}

func firstBatchID(incoming []change.ChangeInput) string {
	for _, ci := range incoming {
		if ci.BatchID != "" {
			return ci.BatchID
		}
	}
	return ""
}

func firstCreatedAt(incoming []change.ChangeInput) time.Time {
	first := incoming[0].CreatedAt
	for _, ci := range incoming[1:] {
		if ci.CreatedAt.Before(first) {
			first = ci.CreatedAt
		}
	}
	return first
}

// rebaseToHead implements spec §4.4 step 3's non-DocExists branch: drop
// soft ops and implicit empty-container adds whose target already exists
// at head, then drop any change whose ops list becomes empty.
func rebaseToHead(incoming []change.ChangeInput, stateAtHead interface{}) []change.ChangeInput {
	out := make([]change.ChangeInput, 0, len(incoming))
	for _, ci := range incoming {
		filtered := make(patch.Patch, 0, len(ci.Ops))
		for _, op := range ci.Ops {
			if op.Soft && patch.Exists(stateAtHead, op.Path) {
				continue
			}
			if op.Op == patch.KindAdd && isEmptyContainer(op.Value) && patch.Exists(stateAtHead, op.Path) {
				continue
			}
			filtered = append(filtered, op)
		}
		if len(filtered) == 0 {
			continue
		}
		ci.Ops = filtered
		out = append(out, ci)
	}
	return out
}

func isEmptyContainer(v interface{}) bool {
	switch c := v.(type) {
	case map[string]interface{}:
		return len(c) == 0
	case []interface{}:
		return len(c) == 0
	default:
		return false
	}
}

func partitionByIdempotency(incoming []change.ChangeInput, concurrentCommitted []change.Change) (prior []change.Change, fresh []change.ChangeInput) {
	byID := make(map[ids.ChangeID]change.Change, len(concurrentCommitted))
	for _, c := range concurrentCommitted {
		byID[c.ID] = c
	}
	for _, ci := range incoming {
		if c, ok := byID[ci.ID]; ok {
			prior = append(prior, c)
			continue
		}
		fresh = append(fresh, ci)
	}
	return prior, fresh
}

func flattenOps(changes []change.Change) patch.Patch {
	var out patch.Patch
	for _, c := range changes {
		out = append(out, c.Ops...)
	}
	return out
}
