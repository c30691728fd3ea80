// Package delta implements the inline-text delta model of spec §4.1's
// "@txt" operation: a sequence of retain/insert/delete runs, applied against
// a plain string, composed, and transformed against a concurrent delta with
// "right-wins" tie-break on same-index inserts (spec §4.1, §8 S4 and the
// Open Question on insert/insert ties in spec §9).
//
// Grounded on the pack's luvjson/crdt text-node model in spirit (a CRDT
// text type built from inserted runs), generalized here to the OT delta
// shape this spec names explicitly.
package delta

// Op is one element of a delta. Exactly one of Insert, Delete, or Retain is
// meaningful per element; Attributes only ever applies to Insert or Retain.
type Op struct {
	Retain     int                    `json:"retain,omitempty"`
	Insert     string                 `json:"insert,omitempty"`
	Delete     int                    `json:"delete,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (o Op) isInsert() bool { return o.Insert != "" }
func (o Op) isDelete() bool { return o.Delete > 0 }
func (o Op) isRetain() bool { return !o.isInsert() && !o.isDelete() }

func (o Op) length() int {
	switch {
	case o.isInsert():
		return len([]rune(o.Insert))
	case o.isDelete():
		return o.Delete
	default:
		return o.Retain
	}
}

// Apply runs ops against text and returns the resulting string. Per the
// standard delta convention (the one Compose/Transform's trailing-retain
// trimming already assumes), a delta implicitly retains whatever text its
// ops don't otherwise mention past the end of the list.
func Apply(text string, ops []Op) (string, error) {
	runes := []rune(text)
	cursor := 0
	out := make([]rune, 0, len(runes))
	for _, op := range ops {
		switch {
		case op.isInsert():
			out = append(out, []rune(op.Insert)...)
		case op.isDelete():
			if cursor+op.Delete > len(runes) {
				return "", ErrOutOfRange{Cursor: cursor, Length: op.Delete, TextLen: len(runes)}
			}
			cursor += op.Delete
		default:
			if op.Retain <= 0 {
				continue
			}
			if cursor+op.Retain > len(runes) {
				return "", ErrOutOfRange{Cursor: cursor, Length: op.Retain, TextLen: len(runes)}
			}
			out = append(out, runes[cursor:cursor+op.Retain]...)
			cursor += op.Retain
		}
	}
	if cursor < len(runes) {
		out = append(out, runes[cursor:]...)
	}
	return string(out), nil
}

// ErrOutOfRange is returned by Apply when a retain or delete run reaches
// past the end of the text being operated on.
type ErrOutOfRange struct {
	Cursor  int
	Length  int
	TextLen int
}

func (e ErrOutOfRange) Error() string {
	return "delta: retain/delete past end of text"
}

// Compose merges a followed by b into a single equivalent delta (spec
// §4.1's "apply uses standard delta composition").
func Compose(a, b []Op) []Op {
	ai := newIterator(a)
	bi := newIterator(b)
	var out []Op
	for ai.hasNext() || bi.hasNext() {
		if bi.peekIsInsert() {
			out = push(out, bi.next(0))
			continue
		}
		if ai.peekIsDelete() {
			out = push(out, ai.next(0))
			continue
		}
		length := minInt(ai.peekLength(), bi.peekLength())
		aOp := ai.next(length)
		bOp := bi.next(length)
		switch {
		case bOp.isDelete():
			if !aOp.isInsert() {
				out = push(out, bOp)
			}
			// a's insert immediately deleted by b: both vanish.
		case aOp.isInsert():
			out = push(out, Op{Insert: aOp.Insert, Attributes: mergeAttrs(aOp.Attributes, bOp.Attributes)})
		default:
			out = push(out, Op{Retain: length, Attributes: mergeAttrs(aOp.Attributes, bOp.Attributes)})
		}
	}
	return trimTrailingRetain(out)
}

// Transform rewrites b to apply after a, given both were authored against
// the same base text. bPriority selects which side's insert survives first
// when both insert at the same index with no retain between them;
// bPriority=true is "right-wins" (spec §4.1 default for @txt), false is
// "left-wins" (server-priority, used nowhere in this spec but kept
// symmetrical for callers that need it).
func Transform(a, b []Op, bPriority bool) []Op {
	ai := newIterator(a)
	bi := newIterator(b)
	var out []Op
	for ai.hasNext() || bi.hasNext() {
		if ai.peekIsInsert() && (!bPriority || !bi.peekIsInsert()) {
			out = push(out, Op{Retain: ai.next(0).length()})
			continue
		}
		if bi.peekIsInsert() {
			out = push(out, bi.next(0))
			continue
		}
		length := minInt(ai.peekLength(), bi.peekLength())
		aOp := ai.next(length)
		bOp := bi.next(length)
		switch {
		case aOp.isDelete():
			// a already removed this span; b's matching op is moot.
		case bOp.isDelete():
			out = push(out, bOp)
		default:
			out = push(out, Op{Retain: length})
		}
	}
	return trimTrailingRetain(out)
}

func mergeAttrs(a, b map[string]interface{}) map[string]interface{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func push(ops []Op, op Op) []Op {
	if op.Retain == 0 && op.Insert == "" && op.Delete == 0 {
		return ops
	}
	if len(ops) > 0 {
		last := &ops[len(ops)-1]
		if last.isRetain() && op.isRetain() && attrsEqual(last.Attributes, op.Attributes) {
			last.Retain += op.Retain
			return ops
		}
		if last.isDelete() && op.isDelete() {
			last.Delete += op.Delete
			return ops
		}
		if last.isInsert() && op.isInsert() && attrsEqual(last.Attributes, op.Attributes) {
			last.Insert += op.Insert
			return ops
		}
	}
	return append(ops, op)
}

func attrsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// trimTrailingRetain drops a trailing plain retain (no attributes), which
// carries no information since it only extends to the end of the text.
func trimTrailingRetain(ops []Op) []Op {
	if len(ops) == 0 {
		return ops
	}
	last := ops[len(ops)-1]
	if last.isRetain() && len(last.Attributes) == 0 {
		return ops[:len(ops)-1]
	}
	return ops
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Chunk splits ops into a sequence of deltas, each no more than maxRunes of
// cumulative retain/insert/delete length, such that applying the chunks in
// order reproduces applying ops as a whole (spec §4.3's "@txt" splitting
// rule, exercised by §8 S4). Every chunk after the first gets a leading
// Retain equal to the output length every prior chunk already produced, so
// it skips past text the earlier chunks already emitted into the document.
func Chunk(ops []Op, maxRunes int) [][]Op {
	if maxRunes <= 0 {
		maxRunes = 1
	}
	raw := splitRaw(ops, maxRunes)
	if len(raw) <= 1 {
		return raw
	}

	out := make([][]Op, len(raw))
	producedSoFar := 0
	for i, group := range raw {
		var chunk []Op
		if i > 0 && producedSoFar > 0 {
			chunk = append(chunk, Op{Retain: producedSoFar})
		}
		chunk = append(chunk, group...)
		out[i] = chunk
		producedSoFar += outputLength(group)
	}
	return out
}

// outputLength is how much text a chunk (before any leading-retain rewrite)
// contributes to the document: inserted and retained runs both produce
// output; deletes don't.
func outputLength(ops []Op) int {
	total := 0
	for _, op := range ops {
		if op.isDelete() {
			continue
		}
		total += op.length()
	}
	return total
}

// splitRaw greedily packs ops into groups of at most maxRunes cumulative
// length, splitting any single op that alone exceeds the budget.
func splitRaw(ops []Op, maxRunes int) [][]Op {
	var groups [][]Op
	var current []Op
	curLen := 0

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
		}
		current = nil
		curLen = 0
	}

	for _, op := range ops {
		remaining := op
		for remaining.length() > 0 {
			available := maxRunes - curLen
			if available <= 0 {
				flush()
				available = maxRunes
			}
			if remaining.length() <= available {
				current = append(current, remaining)
				curLen += remaining.length()
				break
			}
			piece, leftover := splitOp(remaining, available)
			current = append(current, piece)
			curLen += piece.length()
			flush()
			remaining = leftover
		}
	}
	flush()
	return groups
}

func splitOp(op Op, n int) (piece, leftover Op) {
	switch {
	case op.isInsert():
		runes := []rune(op.Insert)
		return Op{Insert: string(runes[:n]), Attributes: op.Attributes},
			Op{Insert: string(runes[n:]), Attributes: op.Attributes}
	case op.isDelete():
		return Op{Delete: n}, Op{Delete: op.Delete - n}
	default:
		return Op{Retain: n, Attributes: op.Attributes}, Op{Retain: op.Retain - n, Attributes: op.Attributes}
	}
}

type iterator struct {
	ops    []Op
	index  int
	offset int
}

func newIterator(ops []Op) *iterator { return &iterator{ops: ops} }

func (it *iterator) hasNext() bool { return it.index < len(it.ops) }

func (it *iterator) peekIsInsert() bool {
	return it.index < len(it.ops) && it.ops[it.index].isInsert()
}

func (it *iterator) peekIsDelete() bool {
	return it.index < len(it.ops) && it.ops[it.index].isDelete()
}

const infiniteLength = int(^uint(0) >> 1)

func (it *iterator) peekLength() int {
	if it.index >= len(it.ops) {
		return infiniteLength
	}
	return it.ops[it.index].length() - it.offset
}

// next consumes up to length units from the current op (0 means "consume
// the rest of the current op"). Past the end of ops it synthesizes an
// infinite retain, matching the convention that an OT delta implicitly
// retains everything beyond what it mentions.
func (it *iterator) next(length int) Op {
	if it.index >= len(it.ops) {
		return Op{Retain: length}
	}
	op := it.ops[it.index]
	remaining := op.length() - it.offset
	if length <= 0 || length > remaining {
		length = remaining
	}
	var result Op
	switch {
	case op.isInsert():
		runes := []rune(op.Insert)
		result = Op{Insert: string(runes[it.offset : it.offset+length]), Attributes: op.Attributes}
	case op.isDelete():
		result = Op{Delete: length}
	default:
		result = Op{Retain: length, Attributes: op.Attributes}
	}
	it.offset += length
	if it.offset >= op.length() {
		it.index++
		it.offset = 0
	}
	return result
}
