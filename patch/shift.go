package patch

// shiftForInsert rewrites op's Path/From for a server insertion of one
// element at container/index (spec §4.2 "Array index adjustment"): any
// client op addressing container/j with j >= index moves to container/(j+1).
func shiftForInsert(op Operation, container Pointer, index int) Operation {
	op.Path = shiftPointer(op.Path, container, index, +1)
	if op.From != "" {
		op.From = shiftPointer(op.From, container, index, +1)
	}
	return op
}

// shiftForRemove rewrites op's Path/From for a server removal of one
// element at container/index: any client op addressing container/j with
// j > index moves to container/(j-1).
func shiftForRemove(op Operation, container Pointer, index int) Operation {
	op.Path = shiftPointerStrict(op.Path, container, index, -1)
	if op.From != "" {
		op.From = shiftPointerStrict(op.From, container, index, -1)
	}
	return op
}

// shiftPointer shifts p if it addresses container/j with j >= atIndex.
func shiftPointer(p Pointer, container Pointer, atIndex int, delta int) Pointer {
	idx, rest, ok := arrayIndexPrefix(p, container)
	if !ok || idx < atIndex {
		return p
	}
	return rebuildIndexedPointer(container, idx+delta, rest)
}

// shiftPointerStrict shifts p if it addresses container/j with j > atIndex
// (used after a removal: the removed index itself is handled by the
// subtree-drop pass, not by shifting).
func shiftPointerStrict(p Pointer, container Pointer, atIndex int, delta int) Pointer {
	idx, rest, ok := arrayIndexPrefix(p, container)
	if !ok || idx <= atIndex {
		return p
	}
	return rebuildIndexedPointer(container, idx+delta, rest)
}

func rebuildIndexedPointer(container Pointer, index int, rest Pointer) Pointer {
	toks := container.Tokens()
	toks = append(toks, itoa(index))
	toks = append(toks, rest.Tokens()...)
	return FromTokens(toks)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// arrayContainerAndIndex splits a non-root pointer into its parent container
// pointer and trailing index, if the last token is numeric (i.e. p
// addresses an array element directly, as opposed to a path nested further
// under one).
func arrayContainerAndIndex(p Pointer) (container Pointer, index int, ok bool) {
	parent, key, has := p.Parent()
	if !has {
		return "", 0, false
	}
	idx, isNum := parseIndex(key)
	if !isNum {
		return "", 0, false
	}
	return parent, idx, true
}
