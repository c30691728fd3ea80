// Package mongostore is a server.Store (plus TombstoneStore and
// VersionStore) backed by MongoDB, with revision uniqueness enforced by a
// unique (docId, rev) index the same way the pack's eventsync indexes
// (document_id, sequence_num) and nodestorage/v2 enforces its VersionField.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"patches/change"
	"patches/ids"
	"patches/patch"
	"patches/server"
)

// Options configures logging for a Store.
type Options struct {
	Logger *zap.Logger
}

// DefaultOptions returns a no-op-logging Options.
func DefaultOptions() *Options {
	return &Options{Logger: zap.NewNop()}
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}

// Store implements server.Store against three MongoDB collections: one for
// the append-only change log, one for version records, one for tombstones.
type Store struct {
	changes    *mongo.Collection
	versions   *mongo.Collection
	tombstones *mongo.Collection
	logger     *zap.Logger
}

// New wraps three collections. Call EnsureIndexes once at startup before
// serving traffic.
func New(changes, versions, tombstones *mongo.Collection, opts *Options) *Store {
	opts = opts.withDefaults()
	return &Store{changes: changes, versions: versions, tombstones: tombstones, logger: opts.Logger}
}

// EnsureIndexes creates the unique (docId, rev) index on the change log and
// a docId index on the version/tombstone collections.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.changes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "docId", Value: 1}, {Key: "rev", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongostore: create changes index: %w", err)
	}
	_, err = s.versions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "docId", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create versions index: %w", err)
	}
	_, err = s.tombstones.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "docId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongostore: create tombstones index: %w", err)
	}
	return nil
}

// mongoChange is the on-wire shape for change.Change: ids are stored as
// their string form rather than relying on a bson codec for ids.DocID.
type mongoChange struct {
	ID          string                 `bson:"_id"`
	DocID       string                 `bson:"docId"`
	Ops         patch.Patch            `bson:"ops"`
	BaseRev     int64                  `bson:"baseRev"`
	Rev         int64                  `bson:"rev"`
	CreatedAt   time.Time              `bson:"createdAt"`
	CommittedAt time.Time              `bson:"committedAt"`
	BatchID     string                 `bson:"batchId,omitempty"`
	ClientID    string                 `bson:"clientId,omitempty"`
	Metadata    map[string]interface{} `bson:"metadata,omitempty"`
}

func toMongoChange(c change.Change) mongoChange {
	return mongoChange{
		ID:          string(c.ID),
		DocID:       c.DocID.String(),
		Ops:         c.Ops,
		BaseRev:     c.BaseRev,
		Rev:         c.Rev,
		CreatedAt:   c.CreatedAt,
		CommittedAt: c.CommittedAt,
		BatchID:     c.BatchID,
		ClientID:    c.ClientID.String(),
		Metadata:    c.Metadata,
	}
}

func fromMongoChange(m mongoChange) (change.Change, error) {
	docID, err := ids.ParseDocID(m.DocID)
	if err != nil {
		return change.Change{}, fmt.Errorf("mongostore: decode docId: %w", err)
	}
	var clientID ids.ClientID
	if m.ClientID != "" {
		if err := clientID.UnmarshalText([]byte(m.ClientID)); err != nil {
			return change.Change{}, fmt.Errorf("mongostore: decode clientId: %w", err)
		}
	}
	return change.Change{
		ID:          ids.ChangeID(m.ID),
		DocID:       docID,
		Ops:         m.Ops,
		BaseRev:     m.BaseRev,
		Rev:         m.Rev,
		CreatedAt:   m.CreatedAt,
		CommittedAt: m.CommittedAt,
		BatchID:     m.BatchID,
		ClientID:    clientID,
		Metadata:    m.Metadata,
	}, nil
}

// GetHeadRev implements server.Store.
func (s *Store) GetHeadRev(ctx context.Context, docID ids.DocID) (int64, error) {
	opt := options.FindOne().SetSort(bson.D{{Key: "rev", Value: -1}})
	var m mongoChange
	err := s.changes.FindOne(ctx, bson.M{"docId": docID.String()}, opt).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mongostore: get head rev: %w", err)
	}
	return m.Rev, nil
}

// GetStateAtRevision implements server.Store by replaying every committed
// change up to and including rev from the empty document.
func (s *Store) GetStateAtRevision(ctx context.Context, docID ids.DocID, rev int64) (interface{}, error) {
	cur, err := s.changes.Find(ctx,
		bson.M{"docId": docID.String(), "rev": bson.M{"$lte": rev}},
		options.Find().SetSort(bson.D{{Key: "rev", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: get state at revision: %w", err)
	}
	defer cur.Close(ctx)

	registry := patch.DefaultRegistry()
	var state interface{}
	for cur.Next(ctx) {
		var m mongoChange
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("mongostore: decode change: %w", err)
		}
		next, err := patch.Apply(registry, state, m.Ops)
		if err != nil {
			return nil, err
		}
		state = next
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return state, nil
}

// ListChanges implements server.Store.
func (s *Store) ListChanges(ctx context.Context, docID ids.DocID, opts server.ListOptions) ([]change.Change, error) {
	filter := bson.M{"docId": docID.String()}
	revFilter := bson.M{}
	if opts.StartAfter != 0 {
		revFilter["$gt"] = opts.StartAfter
	}
	if opts.EndBefore != 0 {
		revFilter["$lt"] = opts.EndBefore
	}
	if len(revFilter) > 0 {
		filter["rev"] = revFilter
	}
	if opts.WithoutBatchID != "" {
		filter["batchId"] = bson.M{"$ne": opts.WithoutBatchID}
	}

	sortDir := 1
	if opts.Reverse {
		sortDir = -1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "rev", Value: sortDir}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.changes.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list changes: %w", err)
	}
	defer cur.Close(ctx)

	var out []change.Change
	for cur.Next(ctx) {
		var m mongoChange
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("mongostore: decode change: %w", err)
		}
		c, err := fromMongoChange(m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

// SaveChanges implements server.Store: an ordered bulk insert. The unique
// (docId, rev) index turns a racing concurrent commit into a duplicate-key
// error instead of silent corruption, even though the pipeline's per-doc
// lock (spec §5) should already make that unreachable in-process.
func (s *Store) SaveChanges(ctx context.Context, _ ids.DocID, changes []change.Change) error {
	if len(changes) == 0 {
		return nil
	}
	docs := make([]interface{}, len(changes))
	for i, c := range changes {
		docs[i] = toMongoChange(c)
	}
	ordered := true
	_, err := s.changes.InsertMany(ctx, docs, &options.InsertManyOptions{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("mongostore: save changes: %w", err)
	}
	return nil
}

type mongoVersionRecord struct {
	ID        string    `bson:"_id"`
	DocID     string    `bson:"docId"`
	GroupID   string    `bson:"groupId"`
	ParentID  string    `bson:"parentId,omitempty"`
	Origin    string    `bson:"origin"`
	IsOffline bool      `bson:"isOffline"`
	FromRev   int64     `bson:"fromRev"`
	ToRev     int64     `bson:"toRev"`
	StartedAt time.Time `bson:"startedAt"`
	EndedAt   time.Time `bson:"endedAt"`
}

// SaveVersionRecords implements server.VersionStore.
func (s *Store) SaveVersionRecords(ctx context.Context, docID ids.DocID, records []change.VersionRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = mongoVersionRecord{
			ID:        r.ID,
			DocID:     docID.String(),
			GroupID:   r.GroupID,
			ParentID:  r.ParentID,
			Origin:    string(r.Origin),
			IsOffline: r.IsOffline,
			FromRev:   r.FromRev,
			ToRev:     r.ToRev,
			StartedAt: r.StartedAt,
			EndedAt:   r.EndedAt,
		}
	}
	_, err := s.versions.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("mongostore: save version records: %w", err)
	}
	return nil
}

type mongoTombstone struct {
	DocID     string    `bson:"docId"`
	DeletedAt time.Time `bson:"deletedAt"`
	AtRev     int64     `bson:"atRev"`
}

// CreateTombstone implements server.TombstoneStore.
func (s *Store) CreateTombstone(ctx context.Context, docID ids.DocID, deletedAt time.Time, atRev int64) error {
	_, err := s.tombstones.UpdateOne(ctx,
		bson.M{"docId": docID.String()},
		bson.M{"$set": mongoTombstone{DocID: docID.String(), DeletedAt: deletedAt, AtRev: atRev}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: create tombstone: %w", err)
	}
	return nil
}

// GetTombstone implements server.TombstoneStore.
func (s *Store) GetTombstone(ctx context.Context, docID ids.DocID) (*change.Tombstone, error) {
	var m mongoTombstone
	err := s.tombstones.FindOne(ctx, bson.M{"docId": docID.String()}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get tombstone: %w", err)
	}
	return &change.Tombstone{DocID: docID, DeletedAt: m.DeletedAt, AtRev: m.AtRev}, nil
}

// RemoveTombstone implements server.TombstoneStore.
func (s *Store) RemoveTombstone(ctx context.Context, docID ids.DocID) error {
	_, err := s.tombstones.DeleteOne(ctx, bson.M{"docId": docID.String()})
	if err != nil {
		return fmt.Errorf("mongostore: remove tombstone: %w", err)
	}
	return nil
}
