package patch

// transformStructural implements the pairwise rewrite rules of spec §4.2
// shared by add/replace/remove/copy: array index shifting around a server
// insertion/removal, the same-path tie-break for replace/replace and the
// open-question tie-break this implementation settles for add/add on an
// object key (see DESIGN.md), and move's subtree relocation. Dropping a
// client op whose path/from sits at or under a server *remove* (including
// the "break-after" re-creation rule) is lookahead-dependent and is handled
// one level up, by the transform engine, before this function is ever
// called for such ops.
//
// Note: array-vs-object-key disambiguation here is syntactic (a numeric
// final token is treated as an array index) rather than by consulting
// state's actual container type. This mirrors JSON Pointer's own ambiguity
// and is good enough outside of documents that deliberately use numeric
// object keys, which this engine does not attempt to distinguish.
func transformStructural(state interface{}, against, op Operation) (*Operation, error) {
	if op.Path != "" && op.From != "" && op.Path == op.From {
		return nil, nil
	}

	switch against.Op {
	case KindRemove:
		if c, i, ok := arrayContainerAndIndex(against.Path); ok {
			op = shiftForRemove(op, c, i)
		}
	case KindAdd, KindCopy:
		if c, i, ok := arrayContainerAndIndex(against.Path); ok {
			op = shiftForInsert(op, c, i)
		} else if against.Path == op.Path && op.Op == KindAdd {
			// Two concurrent adds at the same object key: server wins.
			return nil, nil
		}
	case KindReplace:
		if against.Path == op.Path && op.Op == KindReplace {
			return nil, nil
		}
	case KindMove:
		op = relocateUnderMove(op, against)
		if c, i, ok := arrayContainerAndIndex(against.From); ok {
			op = shiftForRemove(op, c, i)
		}
		if c, i, ok := arrayContainerAndIndex(against.Path); ok {
			op = shiftForInsert(op, c, i)
		}
	}
	return &op, nil
}

// transformMove is moveHandler's Transform: a move is a remove at From
// composed with an add at Path, so it reuses the same rewrite rules.
func transformMove(state interface{}, against, op Operation) (*Operation, error) {
	return transformStructural(state, against, op)
}

func relocateUnderMove(op Operation, against Operation) Operation {
	op.Path = relocatePointer(op.Path, against.From, against.Path)
	if op.From != "" {
		op.From = relocatePointer(op.From, against.From, against.Path)
	}
	return op
}

func relocatePointer(p Pointer, from Pointer, to Pointer) Pointer {
	if from == "" {
		return p
	}
	if p == from {
		return to
	}
	if p.HasPrefix(from) {
		suffix := string(p)[len(string(from)):]
		return to + Pointer(suffix)
	}
	return p
}
