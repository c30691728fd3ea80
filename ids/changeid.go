package ids

import (
	"github.com/bwmarrin/snowflake"
)

// ChangeID is the client-generated, globally unique identifier of a Change
// (spec §3: "id is client-generated, globally unique; used for idempotency").
// It must never be rewritten by transform or rebase.
type ChangeID string

// ChangeIDGenerator mints ChangeIDs for locally-authored changes. Each
// connected client owns one generator, keyed to its own snowflake node so
// that concurrently editing clients never collide even when offline.
//
// The teacher's go.mod lists bwmarrin/snowflake but no package in the
// teacher ever imports it; we give it the job its own author never found
// for it.
type ChangeIDGenerator struct {
	node *snowflake.Node
}

// NewChangeIDGenerator creates a generator bound to nodeID, which must be in
// [0, 1023]. Callers typically derive nodeID from a low-cardinality hash of
// the ClientID so restarts of the same client reuse the same node.
func NewChangeIDGenerator(nodeID int64) (*ChangeIDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &ChangeIDGenerator{node: node}, nil
}

// Next returns the next ChangeID. Safe for concurrent use.
func (g *ChangeIDGenerator) Next() ChangeID {
	return ChangeID(g.node.Generate().String())
}
