package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"patches/change"
	"patches/client"
	"patches/client/localstore/memstore"
	"patches/ids"
)

func newDoc(t *testing.T) (*client.Doc, ids.DocID, ids.ClientID) {
	t.Helper()
	docID := ids.NewDocID()
	clientID := ids.NewClientID()
	idGen, err := ids.NewChangeIDGenerator(1)
	require.NoError(t, err)

	store := memstore.New()
	require.NoError(t, store.SaveSnapshot(context.Background(), docID, client.Snapshot{
		State: map[string]interface{}{"count": float64(0)},
		Rev:   0,
	}))

	d, err := client.Open(context.Background(), docID, clientID, store, idGen, nil)
	require.NoError(t, err)
	return d, docID, clientID
}

func TestDoc_ChangeAppendsPending(t *testing.T) {
	d, _, _ := newDoc(t)

	c, err := d.Change(context.Background(), func(m *client.Mutator) {
		m.Inc(client.Path("count"), 1)
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.Equal(t, int64(0), c.BaseRev)
	require.Equal(t, int64(1), c.Rev)

	pending := d.GetPendingChanges()
	require.Len(t, pending, 1)
	require.Equal(t, c.ID, pending[0].ID)
}

func TestDoc_ApplyChangesDropsAckedPending(t *testing.T) {
	d, docID, clientID := newDoc(t)

	c, err := d.Change(context.Background(), func(m *client.Mutator) {
		m.Inc(client.Path("count"), 1)
	})
	require.NoError(t, err)

	committed := change.Change{
		ID:          c.ID,
		DocID:       docID,
		Ops:         c.Ops,
		BaseRev:     0,
		Rev:         1,
		CreatedAt:   time.Now(),
		CommittedAt: time.Now(),
		ClientID:    clientID,
	}
	require.NoError(t, d.ApplyChanges(context.Background(), []change.Change{committed}))

	require.Empty(t, d.GetPendingChanges())

	snap, err := d.GetDoc(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Rev)
	state := snap.State.(map[string]interface{})
	require.Equal(t, float64(1), state["count"])
}

func TestDoc_ApplyChangesRejectsGap(t *testing.T) {
	d, docID, clientID := newDoc(t)

	committed := change.Change{
		ID:       ids.ChangeID("remote-1"),
		DocID:    docID,
		BaseRev:  0,
		Rev:      2,
		ClientID: clientID,
	}
	err := d.ApplyChanges(context.Background(), []change.Change{committed})
	require.Error(t, err)
	var missing client.ErrMissingChanges
	require.ErrorAs(t, err, &missing)
	require.Equal(t, int64(1), missing.Expected)
	require.Equal(t, int64(2), missing.Got)
}

func TestDoc_SaveSendingChangeIsIdempotent(t *testing.T) {
	d, _, _ := newDoc(t)

	_, err := d.Change(context.Background(), func(m *client.Mutator) {
		m.Inc(client.Path("count"), 1)
	})
	require.NoError(t, err)

	batch1, err := d.SaveSendingChange(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, batch1, 1)
	// The change now sits in the sending slot, which GetPendingChanges
	// reports ahead of the (now empty) pending queue.
	require.Equal(t, batch1, d.GetPendingChanges())

	batch2, err := d.SaveSendingChange(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, batch1, batch2)

	require.NoError(t, d.ConfirmSendingChange(context.Background()))
	pendingAfterConfirm, err := d.SaveSendingChange(context.Background(), 0)
	require.NoError(t, err)
	require.Nil(t, pendingAfterConfirm)
}

func TestDoc_DeleteDocBlocksFurtherChanges(t *testing.T) {
	d, _, _ := newDoc(t)

	require.NoError(t, d.DeleteDoc(context.Background(), time.Now()))

	_, err := d.Change(context.Background(), func(m *client.Mutator) {
		m.Inc(client.Path("count"), 1)
	})
	require.Error(t, err)
	var deleted client.ErrDocDeleted
	require.ErrorAs(t, err, &deleted)

	require.NoError(t, d.ConfirmDeleteDoc(context.Background()))
	_, err = d.Change(context.Background(), func(m *client.Mutator) {
		m.Inc(client.Path("count"), 1)
	})
	require.NoError(t, err)
}
