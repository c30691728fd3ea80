package client

import (
	"fmt"

	"patches/patch"
	"patches/patch/delta"
)

// Path builds a Pointer from a mix of string (object key) and int (array
// index) tokens — the runtime-builder substitute for the source's
// property-access proxy (spec §9 "Path proxy for mutators").
func Path(tokens ...interface{}) patch.Pointer {
	toks := make([]string, len(tokens))
	for i, t := range tokens {
		switch v := t.(type) {
		case string:
			toks[i] = v
		case int:
			toks[i] = fmt.Sprintf("%d", v)
		default:
			toks[i] = fmt.Sprintf("%v", v)
		}
	}
	return patch.FromTokens(toks)
}

// Mutator accumulates Operations for one local edit (spec §4.6's
// change(mutator)). A mutator is only valid for the duration of the
// Change() call that created it.
type Mutator struct {
	ops patch.Patch
}

func (m *Mutator) Add(path patch.Pointer, value interface{}) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindAdd, Path: path, Value: value})
}

// SoftAdd adds only if path does not already resolve (spec §3 "soft=true").
func (m *Mutator) SoftAdd(path patch.Pointer, value interface{}) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindAdd, Path: path, Value: value, Soft: true})
}

func (m *Mutator) Replace(path patch.Pointer, value interface{}) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindReplace, Path: path, Value: value})
}

func (m *Mutator) Remove(path patch.Pointer) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindRemove, Path: path})
}

func (m *Mutator) Move(from, to patch.Pointer) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindMove, Path: to, From: from})
}

func (m *Mutator) Copy(from, to patch.Pointer) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindCopy, Path: to, From: from})
}

func (m *Mutator) Inc(path patch.Pointer, delta float64) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindInc, Path: path, Value: delta})
}

func (m *Mutator) Bit(path patch.Pointer, index int, set bool) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindBit, Path: path, Value: patch.BitValue{Index: index, Set: set}})
}

func (m *Mutator) Min(path patch.Pointer, value float64) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindMin, Path: path, Value: value})
}

func (m *Mutator) Max(path patch.Pointer, value float64) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindMax, Path: path, Value: value})
}

func (m *Mutator) Txt(path patch.Pointer, ops []delta.Op) {
	m.ops = append(m.ops, patch.Operation{Op: patch.KindTxt, Path: path, Value: ops})
}
