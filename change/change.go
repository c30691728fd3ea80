// Package change defines the Change/ChangeInput/Tombstone/VersionRecord
// entities of spec §3, shared by the server commit pipeline, the session
// versioner, and the client reconciliation core.
//
// Grounded on the pack's eventsync.Event record (document id + sequence
// number + diff + timestamps), reshaped from an event-sourced CRDT diff into
// an OT Change: ops plus baseRev/rev instead of a vector clock.
package change

import (
	"time"

	"patches/ids"
	"patches/patch"
)

// Change is the canonical, server-assigned record of spec §3.
type Change struct {
	ID          ids.ChangeID           `bson:"_id" json:"id"`
	DocID       ids.DocID              `bson:"docId" json:"docId"`
	Ops         patch.Patch            `bson:"ops" json:"ops"`
	BaseRev     int64                  `bson:"baseRev" json:"baseRev"`
	Rev         int64                  `bson:"rev" json:"rev"`
	CreatedAt   time.Time              `bson:"createdAt" json:"createdAt"`
	CommittedAt time.Time              `bson:"committedAt" json:"committedAt"`
	BatchID     string                 `bson:"batchId,omitempty" json:"batchId,omitempty"`
	ClientID    ids.ClientID           `bson:"clientId,omitempty" json:"clientId,omitempty"`
	Metadata    map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// ChangeInput is the client-submitted shape of spec §3: same fields minus
// Rev and CommittedAt; BaseRev is a pointer so its absence ("apply to
// head") is distinguishable from an explicit 0.
type ChangeInput struct {
	ID        ids.ChangeID           `json:"id"`
	DocID     ids.DocID              `json:"docId"`
	Ops       patch.Patch            `json:"ops"`
	BaseRev   *int64                 `json:"baseRev,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	BatchID   string                 `json:"batchId,omitempty"`
	ClientID  ids.ClientID           `json:"clientId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Tombstone marks a document as deleted (spec §4.4, "DocDeleted").
type Tombstone struct {
	DocID     ids.DocID `bson:"docId" json:"docId"`
	DeletedAt time.Time `bson:"deletedAt" json:"deletedAt"`
	AtRev     int64     `bson:"atRev" json:"atRev"`
}

// VersionRecord is a node in the session/offline-versioning DAG emitted by
// the version package (spec §4.5).
type VersionRecord struct {
	ID        string    `bson:"_id" json:"id"`
	DocID     ids.DocID `bson:"docId" json:"docId"`
	GroupID   string    `bson:"groupId" json:"groupId"`
	ParentID  string    `bson:"parentId,omitempty" json:"parentId,omitempty"`
	Origin    Origin    `bson:"origin" json:"origin"`
	IsOffline bool      `bson:"isOffline" json:"isOffline"`
	FromRev   int64     `bson:"fromRev" json:"fromRev"`
	ToRev     int64     `bson:"toRev" json:"toRev"`
	StartedAt time.Time `bson:"startedAt" json:"startedAt"`
	EndedAt   time.Time `bson:"endedAt" json:"endedAt"`
}

// Origin classifies how a VersionRecord's changes reached the server.
type Origin string

const (
	// OriginMain is a session with no concurrent commits at the head it
	// was authored against.
	OriginMain Origin = "main"
	// OriginOfflineBranch is a session whose head had concurrent commits
	// by the time it landed (spec §4.5, S5).
	OriginOfflineBranch Origin = "offline-branch"
)

// Clone returns a deep-enough copy of c for safe concurrent reads: Ops is
// cloned, Metadata is shared (callers must not mutate it after handing a
// Change to this package).
func (c Change) Clone() Change {
	c.Ops = c.Ops.Clone()
	return c
}
