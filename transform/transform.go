// Package transform implements the single-forward-pass OT engine of spec
// §4.2: Transform(state, serverOps, clientOps) rewrites clientOps so that
// applying them after serverOps (which have already landed) preserves the
// intent clientOps carried when authored against the pre-serverOps state.
//
// Grounded on the pack's luvjson/crdtpatch patch-application loop
// (Patch.Apply iterating operations against a Document), generalized from
// CRDT logical-timestamp ordering to the explicit forward-pass-with-
// breakAfter design spec §4.2 names.
package transform

import "patches/patch"

// Transform computes clientOps' per spec §4.2's contract. state is the
// document as of the common ancestor both serverOps and clientOps were
// authored against. registry resolves each operation's Kind to its Handler.
func Transform(registry *patch.Registry, state interface{}, serverOps, clientOps patch.Patch) (patch.Patch, error) {
	if len(serverOps) == 0 {
		return clientOps.Clone(), nil
	}

	cur := state
	ops := clientOps.Clone()

	for _, serverOp := range serverOps {
		serverHandler, ok := registry.Lookup(serverOp.Op)
		if !ok {
			return nil, patch.ErrUnknownKind{Kind: serverOp.Op}
		}

		candidates := ops
		if serverOp.Op == patch.KindRemove {
			candidates = dropRemovedSubtree(ops, serverOp)
		}

		rewritten := make(patch.Patch, 0, len(candidates))
		for _, op := range candidates {
			if op.Path != "" && op.From != "" && op.Path == op.From {
				continue
			}
			opHandler, ok := registry.Lookup(op.Op)
			if !ok {
				return nil, patch.ErrUnknownKind{Kind: op.Op}
			}
			rw, err := opHandler.Transform(cur, serverOp, op)
			if err != nil {
				return nil, err
			}
			if rw == nil {
				continue
			}
			rewritten = append(rewritten, *rw)
		}
		ops = rewritten

		next, err := serverHandler.Apply(cur, serverOp)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	final := make(patch.Patch, 0, len(ops))
	for _, op := range ops {
		if op.Soft && patch.Exists(cur, op.Path) {
			continue
		}
		final = append(final, op)
	}
	return final, nil
}

// dropRemovedSubtree implements spec §4.2's "path rewriting under structural
// change": every client op whose path or from equals P, or lies under P,
// is dropped — unless a later client op in the same list re-establishes P
// with an add or replace, in which case the engine "break-after"s: ops from
// that point on survive this removal (they still run through the normal
// Transform rewrite below, against this same serverOp).
func dropRemovedSubtree(ops patch.Patch, serverOp patch.Operation) patch.Patch {
	breakIdx := -1
	for i, op := range ops {
		if op.Path == serverOp.Path && (op.Op == patch.KindAdd || op.Op == patch.KindReplace) {
			breakIdx = i
			break
		}
	}

	out := make(patch.Patch, 0, len(ops))
	for i, op := range ops {
		underRemoved := op.Path.HasPrefix(serverOp.Path) ||
			(op.From != "" && op.From.HasPrefix(serverOp.Path))
		if underRemoved && (breakIdx == -1 || i < breakIdx) {
			continue
		}
		out = append(out, op)
	}
	return out
}
