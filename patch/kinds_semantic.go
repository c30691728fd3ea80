package patch

import "patches/patch/delta"

// incHandler implements "@inc": x := (x ?? 0) + v (spec §4.1).
type incHandler struct{}

func (incHandler) Like() Like { return LikeCustom }

func (incHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	amount, err := toFloat(op.Value)
	if err != nil {
		return nil, err
	}
	cur := 0.0
	exists := Exists(state, op.Path)
	if exists {
		v, _ := Get(state, op.Path)
		n, err := toFloat(v)
		if err != nil {
			return nil, ErrBadPath{Path: string(op.Path), Message: "@inc target is not numeric"}
		}
		cur = n
	}
	next := cur + amount
	if exists {
		return SetReplace(state, op.Path, next)
	}
	return SetAdd(state, op.Path, next)
}

// Transform: summed with a concurrent @inc on the same path is the natural
// effect of applying both in sequence (addition commutes), so the op passes
// through unchanged; it is dropped once a concurrent replace on the same
// path wins, or once a structural ancestor is removed.
func (incHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformSemanticValue(state, against, op)
}

// Compose merges two concurrent @inc ops on the same path by summing their
// deltas, matching spec §4.1's "summed with concurrent @inc" language.
func (incHandler) Compose(_ interface{}, a, b Operation) (*Operation, bool) {
	if a.Path != b.Path {
		return nil, false
	}
	av, err1 := toFloat(a.Value)
	bv, err2 := toFloat(b.Value)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	composed := Operation{Op: KindInc, Path: a.Path, Value: av + bv}
	return &composed, true
}

// BitValue is the value carried by an "@bit" operation: flip bitIndex on
// (Set=true, an OR) or off (Set=false, an AND NOT).
type BitValue struct {
	Index int  `json:"index"`
	Set   bool `json:"set"`
}

// bitHandler implements "@bit": OR/AND a single bit of an integer bitmask.
// Commutative with other @bit ops, so no special-casing is needed beyond
// the rules shared by every value-carrying semantic op.
type bitHandler struct{}

func (bitHandler) Like() Like { return LikeCustom }

func (bitHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	bv, err := toBitValue(op.Value)
	if err != nil {
		return nil, err
	}
	cur := int64(0)
	exists := Exists(state, op.Path)
	if exists {
		v, _ := Get(state, op.Path)
		n, err := toFloat(v)
		if err != nil {
			return nil, ErrBadPath{Path: string(op.Path), Message: "@bit target is not numeric"}
		}
		cur = int64(n)
	}
	mask := int64(1) << uint(bv.Index)
	if bv.Set {
		cur |= mask
	} else {
		cur &^= mask
	}
	if exists {
		return SetReplace(state, op.Path, float64(cur))
	}
	return SetAdd(state, op.Path, float64(cur))
}

func (bitHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformSemanticValue(state, against, op)
}

func (bitHandler) Compose(_ interface{}, _, _ Operation) (*Operation, bool) {
	return nil, false
}

// minHandler implements "@min": an idempotent reduction to the lesser value.
type minHandler struct{}

func (minHandler) Like() Like { return LikeCustom }

func (minHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	return applyReduction(state, op, func(cur, v float64) float64 {
		if v < cur {
			return v
		}
		return cur
	})
}

func (minHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformSemanticValue(state, against, op)
}

func (minHandler) Compose(_ interface{}, a, b Operation) (*Operation, bool) {
	return composeReduction(a, b, KindMin, func(x, y float64) float64 {
		if y < x {
			return y
		}
		return x
	})
}

// maxHandler implements "@max": an idempotent reduction to the greater value.
type maxHandler struct{}

func (maxHandler) Like() Like { return LikeCustom }

func (maxHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	return applyReduction(state, op, func(cur, v float64) float64 {
		if v > cur {
			return v
		}
		return cur
	})
}

func (maxHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformSemanticValue(state, against, op)
}

func (maxHandler) Compose(_ interface{}, a, b Operation) (*Operation, bool) {
	return composeReduction(a, b, KindMax, func(x, y float64) float64 {
		if y > x {
			return y
		}
		return x
	})
}

func applyReduction(state interface{}, op Operation, reduce func(cur, v float64) float64) (interface{}, error) {
	v, err := toFloat(op.Value)
	if err != nil {
		return nil, err
	}
	exists := Exists(state, op.Path)
	if !exists {
		return SetAdd(state, op.Path, v)
	}
	cur, _ := Get(state, op.Path)
	curN, err := toFloat(cur)
	if err != nil {
		return nil, ErrBadPath{Path: string(op.Path), Message: "reduction target is not numeric"}
	}
	return SetReplace(state, op.Path, reduce(curN, v))
}

func composeReduction(a, b Operation, kind Kind, reduce func(x, y float64) float64) (*Operation, bool) {
	if a.Path != b.Path {
		return nil, false
	}
	av, err1 := toFloat(a.Value)
	bv, err2 := toFloat(b.Value)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	composed := Operation{Op: kind, Path: a.Path, Value: reduce(av, bv)}
	return &composed, true
}

// txtHandler implements "@txt": an inline-text delta applied against the
// string at Path, per the patch/delta package.
type txtHandler struct{}

func (txtHandler) Like() Like { return LikeCustom }

func (txtHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	ops, err := toDeltaOps(op.Value)
	if err != nil {
		return nil, err
	}
	text := ""
	exists := Exists(state, op.Path)
	if exists {
		v, _ := Get(state, op.Path)
		s, ok := v.(string)
		if !ok {
			return nil, ErrBadPath{Path: string(op.Path), Message: "@txt target is not a string"}
		}
		text = s
	}
	next, err := delta.Apply(text, ops)
	if err != nil {
		return nil, err
	}
	if exists {
		return SetReplace(state, op.Path, next)
	}
	return SetAdd(state, op.Path, next)
}

// Transform rewrites the inline delta with real text OT when against is
// another @txt at the same path ("right-wins" at concurrent same-index
// inserts, per spec §4.1); otherwise it falls back to the rules shared by
// every value-carrying semantic op.
func (txtHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	if against.Op == KindRemove && op.Path.HasPrefix(against.Path) {
		return nil, nil
	}
	if against.Path == op.Path {
		switch against.Op {
		case KindReplace, KindAdd:
			return nil, nil
		case KindTxt:
			againstOps, err := toDeltaOps(against.Value)
			if err != nil {
				return nil, err
			}
			opOps, err := toDeltaOps(op.Value)
			if err != nil {
				return nil, err
			}
			out := op
			out.Value = delta.Transform(againstOps, opOps, true)
			return &out, nil
		}
	}
	return transformSemanticValue(state, against, op)
}

func (txtHandler) Compose(_ interface{}, a, b Operation) (*Operation, bool) {
	if a.Path != b.Path {
		return nil, false
	}
	aOps, err1 := toDeltaOps(a.Value)
	bOps, err2 := toDeltaOps(b.Value)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	composed := Operation{Op: KindTxt, Path: a.Path, Value: delta.Compose(aOps, bOps)}
	return &composed, true
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, ErrInvalidOperation{Message: "expected a numeric value"}
	}
}

func toBitValue(v interface{}) (BitValue, error) {
	switch bv := v.(type) {
	case BitValue:
		return bv, nil
	case map[string]interface{}:
		idx, err := toFloat(bv["index"])
		if err != nil {
			return BitValue{}, ErrInvalidOperation{Message: "@bit value requires a numeric index"}
		}
		set, _ := bv["set"].(bool)
		return BitValue{Index: int(idx), Set: set}, nil
	default:
		return BitValue{}, ErrInvalidOperation{Message: "@bit value must be a BitValue or {index,set} map"}
	}
}

func toDeltaOps(v interface{}) ([]delta.Op, error) {
	switch ops := v.(type) {
	case []delta.Op:
		return ops, nil
	case []interface{}:
		out := make([]delta.Op, 0, len(ops))
		for _, raw := range ops {
			m, ok := raw.(map[string]interface{})
			if !ok {
				return nil, ErrInvalidOperation{Message: "@txt delta element must be an object"}
			}
			var op delta.Op
			if r, ok := m["retain"]; ok {
				n, err := toFloat(r)
				if err != nil {
					return nil, ErrInvalidOperation{Message: "@txt retain must be numeric"}
				}
				op.Retain = int(n)
			}
			if s, ok := m["insert"].(string); ok {
				op.Insert = s
			}
			if d, ok := m["delete"]; ok {
				n, err := toFloat(d)
				if err != nil {
					return nil, ErrInvalidOperation{Message: "@txt delete must be numeric"}
				}
				op.Delete = int(n)
			}
			if attrs, ok := m["attributes"].(map[string]interface{}); ok {
				op.Attributes = attrs
			}
			out = append(out, op)
		}
		return out, nil
	default:
		return nil, ErrInvalidOperation{Message: "@txt value must be a delta op list"}
	}
}
