// Package batch implements the change-batching/splitter of spec §4.3:
// keeping individual stored changes under a byte budget, chunking an
// oversized inline-text delta, and packing a change sequence into
// payload-sized groups sharing a batchId.
//
// Grounded on the pack's nodestorage/v2 size-aware diff logging
// (storage_impl.go's generateDiff measures the JSON/BSON patch size before
// deciding what to persist) generalized from "measure and log" to "measure
// and split".
package batch

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"patches/change"
	"patches/ids"
	"patches/patch"
	"patches/patch/delta"
)

// Splitter, if registered for a Kind, knows how to break one oversized
// Operation of that kind into several smaller same-kind Operations whose
// sequential application is equivalent (spec §4.3's per-kind splitter
// hook). The default registry only wires @txt; other kinds fall back to
// "emit untouched with a warning" per spec.
type Splitter func(op patch.Operation, maxBytes int) []patch.Operation

// Options configures BreakChange/BreakIntoBatches.
type Options struct {
	SizeCalculator SizeCalculator
	Splitters      map[patch.Kind]Splitter
	NewID          func() string
	Logger         *zap.Logger
}

// DefaultOptions returns JSON-size budgeting, the built-in @txt splitter,
// uuid change ids, and a no-op logger.
func DefaultOptions() *Options {
	return &Options{
		SizeCalculator: JSONSize,
		Splitters:      map[patch.Kind]Splitter{patch.KindTxt: splitTxt},
		NewID:          func() string { return uuid.NewString() },
		Logger:         zap.NewNop(),
	}
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.SizeCalculator == nil {
		out.SizeCalculator = JSONSize
	}
	if out.Splitters == nil {
		out.Splitters = map[patch.Kind]Splitter{patch.KindTxt: splitTxt}
	}
	if out.NewID == nil {
		out.NewID = func() string { return uuid.NewString() }
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}

// splitTxt implements the @txt branch of spec §4.3's splitter contract via
// patch/delta's Chunk, preserving Path and assigning no Rev (the
// caller assigns rev to each resulting Change, not each resulting op).
func splitTxt(op patch.Operation, maxBytes int) []patch.Operation {
	ops, err := deltaOpsOf(op.Value)
	if err != nil {
		return nil
	}
	chunks := delta.Chunk(ops, maxBytes)
	if len(chunks) <= 1 {
		return nil
	}
	out := make([]patch.Operation, len(chunks))
	for i, c := range chunks {
		out[i] = patch.Operation{Op: patch.KindTxt, Path: op.Path, Value: c}
	}
	return out
}

func deltaOpsOf(v interface{}) ([]delta.Op, error) {
	if ops, ok := v.([]delta.Op); ok {
		return ops, nil
	}
	return nil, errors.New("batch: @txt value is not a []delta.Op")
}

// BreakChange implements spec §4.3's breakChange: returns a list of Changes
// whose concatenated Ops reproduce c.Ops in order (an op that was split
// appears as its consecutive pieces), or a single-element list containing c
// unchanged if it already fits within maxBytes or nothing could be split
// further. Whole ops are packed into groups measured with the
// SizeCalculator. The pieces are not all guaranteed to be ≤ maxBytes: the
// @txt splitter uses maxBytes as a budget of delta length in runes rather
// than of serialised size, so a piece carrying a chunk near that length
// serialises to more than maxBytes; an op that alone exceeds maxBytes and
// has no applicable Splitter is emitted as its own oversized piece.
func BreakChange(c change.Change, maxBytes int, opts *Options) ([]change.Change, error) {
	opts = opts.withDefaults()

	size, err := opts.SizeCalculator(c)
	if err != nil {
		return nil, err
	}
	if size <= maxBytes {
		return []change.Change{c}, nil
	}

	groups := groupOps(c.Ops, maxBytes, opts)
	if len(groups) <= 1 {
		opts.Logger.Warn("batch: change exceeds maxBytes and could not be split further",
			zap.Int("size", size), zap.Int("maxBytes", maxBytes))
		return []change.Change{c}, nil
	}

	batchID := c.BatchID
	if batchID == "" {
		batchID = opts.NewID()
	}

	out := make([]change.Change, len(groups))
	for i, ops := range groups {
		piece := c
		piece.ID = ids.ChangeID(opts.NewID())
		piece.Ops = ops
		piece.Rev = c.Rev + int64(i)
		piece.BatchID = batchID
		out[i] = piece
	}
	return out, nil
}

// groupOps packs c's ops into size-bounded groups, invoking a registered
// Splitter when a single op alone exceeds maxBytes.
func groupOps(ops patch.Patch, maxBytes int, opts *Options) []patch.Patch {
	var groups []patch.Patch
	var current patch.Patch

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
	}

	measure := func(p patch.Patch) int {
		size, err := opts.SizeCalculator(change.Change{Ops: p})
		if err != nil {
			return maxBytes + 1
		}
		return size
	}

	for _, op := range ops {
		trial := append(append(patch.Patch{}, current...), op)
		if measure(trial) > maxBytes && len(current) > 0 {
			flush()
		}

		single := patch.Patch{op}
		if measure(single) > maxBytes {
			if splitter, ok := opts.Splitters[op.Op]; ok {
				if pieces := splitter(op, maxBytes); len(pieces) > 1 {
					flush()
					for _, piece := range pieces {
						groups = append(groups, patch.Patch{piece})
					}
					continue
				}
			}
			opts.Logger.Warn("batch: single operation exceeds maxBytes with no applicable splitter",
				zap.String("op", string(op.Op)), zap.String("path", string(op.Path)))
			flush()
			groups = append(groups, patch.Patch{op})
			continue
		}

		current = append(current, op)
	}
	flush()
	return groups
}

// BreakIntoBatches implements spec §4.3's breakIntoBatches: packs changes
// into payload-sized groups. Splitting any one change (via BreakChange)
// assigns all its resulting pieces, and every other change in that payload
// group, a shared batchId so the server can recognise intra-batch ordering
// (spec §4.3, §4.4 step 4's withoutBatchId filter).
func BreakIntoBatches(changes []change.Change, maxPayloadBytes int, opts *Options) ([][]change.Change, error) {
	opts = opts.withDefaults()

	var batches [][]change.Change
	var current []change.Change
	currentSize := 0
	splitOccurred := false
	sharedID := ""

	flush := func() {
		if len(current) == 0 {
			return
		}
		if splitOccurred {
			if sharedID == "" {
				sharedID = opts.NewID()
			}
			for i := range current {
				current[i].BatchID = sharedID
			}
		}
		batches = append(batches, current)
		current = nil
		currentSize = 0
		splitOccurred = false
	}

	for _, c := range changes {
		pieces, err := BreakChange(c, maxPayloadBytes, opts)
		if err != nil {
			return nil, err
		}
		split := len(pieces) > 1
		if split && sharedID == "" {
			sharedID = pieces[0].BatchID
		}
		for _, piece := range pieces {
			if split {
				piece.BatchID = sharedID
			}
			pieceSize, err := opts.SizeCalculator(piece)
			if err != nil {
				return nil, err
			}
			if currentSize > 0 && currentSize+pieceSize > maxPayloadBytes {
				flush()
			}
			if split {
				splitOccurred = true
			}
			current = append(current, piece)
			currentSize += pieceSize
		}
	}
	flush()
	return batches, nil
}
