// Package patch implements the operation model of spec §3–§4.1: a tagged
// Operation record, a Patch (ordered operation list), and a Kind registry
// whose handlers supply Apply/Transform/Compose/Like.
//
// Grounded on the pack's luvjson/crdtpatch operation dispatch
// (MakeOperation's switch over common.OperationType) and luvjson/crdt node
// model, generalized from CRDT logical-timestamp nodes to plain JSON values
// addressed by JSON Pointer, per spec §3.
package patch

// Kind identifies an operation's behaviour. Structural kinds partition JSON
// Pointer-addressed trees; semantic kinds carry custom merge behaviour.
type Kind string

const (
	KindAdd     Kind = "add"
	KindReplace Kind = "replace"
	KindRemove  Kind = "remove"
	KindMove    Kind = "move"
	KindCopy    Kind = "copy"

	KindInc Kind = "@inc"
	KindBit Kind = "@bit"
	KindMin Kind = "@min"
	KindMax Kind = "@max"
	KindTxt Kind = "@txt"
)

// Like classifies a Kind's structural effect for the generic transform
// engine (spec §4.1 "like: one of add|replace|remove|move|copy|custom").
type Like string

const (
	LikeAdd     Like = "add"
	LikeReplace Like = "replace"
	LikeRemove  Like = "remove"
	LikeMove    Like = "move"
	LikeCopy    Like = "copy"
	LikeCustom  Like = "custom"
)

// Operation is one element of a Patch (spec §3).
type Operation struct {
	Op    Kind        `json:"op" bson:"op"`
	Path  Pointer     `json:"path" bson:"path"`
	Value interface{} `json:"value,omitempty" bson:"value,omitempty"`
	From  Pointer     `json:"from,omitempty" bson:"from,omitempty"`
	Soft  bool        `json:"soft,omitempty" bson:"soft,omitempty"`
	Ts    int64       `json:"ts,omitempty" bson:"ts,omitempty"`
}

// Patch is an ordered sequence of Operations applied left-to-right.
type Patch []Operation

// Clone returns a shallow copy of the patch (the Operation values themselves
// are copied; Value is shared, since handlers never mutate it in place).
func (p Patch) Clone() Patch {
	if p == nil {
		return nil
	}
	out := make(Patch, len(p))
	copy(out, p)
	return out
}

// IsStructural reports whether k is one of the structural kinds
// (add|replace|remove|move|copy) as opposed to a semantic kind.
func (k Kind) IsStructural() bool {
	switch k {
	case KindAdd, KindReplace, KindRemove, KindMove, KindCopy:
		return true
	default:
		return false
	}
}
