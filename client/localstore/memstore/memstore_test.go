package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"patches/change"
	"patches/client"
	"patches/client/localstore/memstore"
	"patches/ids"
)

func TestStore_SnapshotRoundTrip(t *testing.T) {
	s := memstore.New()
	docID := ids.NewDocID()
	ctx := context.Background()

	got, err := s.LoadSnapshot(ctx, docID)
	require.NoError(t, err)
	require.Nil(t, got)

	snap := client.Snapshot{State: map[string]interface{}{"a": float64(1)}, Rev: 3}
	require.NoError(t, s.SaveSnapshot(ctx, docID, snap))

	got, err = s.LoadSnapshot(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, snap, *got)
}

func TestStore_CommittedAndPendingAreIndependent(t *testing.T) {
	s := memstore.New()
	docID := ids.NewDocID()
	ctx := context.Background()

	pending := []change.Change{{ID: ids.ChangeID("p1"), DocID: docID, BaseRev: 0, Rev: 1}}
	require.NoError(t, s.SavePending(ctx, docID, pending))

	got, err := s.ListPending(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, pending, got)

	committed := []change.Change{{ID: ids.ChangeID("p1"), DocID: docID, BaseRev: 0, Rev: 1}}
	require.NoError(t, s.SaveCommittedAndDropPending(ctx, docID, committed, nil))

	gotCommitted, err := s.ListCommitted(ctx, docID, 0)
	require.NoError(t, err)
	require.Equal(t, committed, gotCommitted)

	gotPending, err := s.ListPending(ctx, docID)
	require.NoError(t, err)
	require.Empty(t, gotPending)
}

func TestStore_ListCommittedFiltersByAfterRev(t *testing.T) {
	s := memstore.New()
	docID := ids.NewDocID()
	ctx := context.Background()

	all := []change.Change{
		{ID: ids.ChangeID("c1"), DocID: docID, Rev: 1},
		{ID: ids.ChangeID("c2"), DocID: docID, Rev: 2},
		{ID: ids.ChangeID("c3"), DocID: docID, Rev: 3},
	}
	require.NoError(t, s.SaveCommittedAndDropPending(ctx, docID, all, nil))

	got, err := s.ListCommitted(ctx, docID, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, ids.ChangeID("c2"), got[0].ID)
	require.Equal(t, ids.ChangeID("c3"), got[1].ID)
}

func TestStore_SendingPendingAtomicPair(t *testing.T) {
	s := memstore.New()
	docID := ids.NewDocID()
	ctx := context.Background()

	pending := []change.Change{
		{ID: ids.ChangeID("p1"), DocID: docID, Rev: 1},
		{ID: ids.ChangeID("p2"), DocID: docID, Rev: 2},
	}
	require.NoError(t, s.SavePending(ctx, docID, pending))

	sending, err := s.LoadSending(ctx, docID)
	require.NoError(t, err)
	require.Nil(t, sending)

	require.NoError(t, s.SaveSendingAndDropPending(ctx, docID, pending[:1], pending[1:]))

	gotSending, err := s.LoadSending(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, pending[:1], gotSending)

	gotPending, err := s.ListPending(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, pending[1:], gotPending)

	require.NoError(t, s.ClearSending(ctx, docID))
	gotSending, err = s.LoadSending(ctx, docID)
	require.NoError(t, err)
	require.Nil(t, gotSending)
}

func TestStore_TombstoneLifecycle(t *testing.T) {
	s := memstore.New()
	docID := ids.NewDocID()
	ctx := context.Background()

	got, err := s.GetTombstone(ctx, docID)
	require.NoError(t, err)
	require.Nil(t, got)

	tomb := &change.Tombstone{DocID: docID, AtRev: 5}
	require.NoError(t, s.SetTombstone(ctx, docID, tomb))

	got, err = s.GetTombstone(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, tomb, got)

	require.NoError(t, s.ClearTombstone(ctx, docID))
	got, err = s.GetTombstone(ctx, docID)
	require.NoError(t, err)
	require.Nil(t, got)
}
