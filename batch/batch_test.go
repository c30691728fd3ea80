package batch_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"patches/batch"
	"patches/change"
	"patches/ids"
	"patches/patch"
	"patches/patch/delta"
)

func TestBreakChange_FitsWithinBudgetUnchanged(t *testing.T) {
	c := change.Change{
		ID:  ids.ChangeID("c1"),
		Ops: patch.Patch{{Op: patch.KindReplace, Path: "/a", Value: 1}},
	}
	out, err := batch.BreakChange(c, 10_000, nil)
	require.NoError(t, err)
	require.Equal(t, []change.Change{c}, out)
}

func TestBreakChange_SplitsOversizedTxt(t *testing.T) {
	ops := []delta.Op{
		{Retain: 10},
		{Insert: strings.Repeat("a", 5000)},
		{Retain: 5},
		{Insert: " END"},
	}
	c := change.Change{
		ID:  ids.ChangeID("c1"),
		Rev: 5,
		Ops: patch.Patch{{Op: patch.KindTxt, Path: "/body", Value: ops}},
	}

	out, err := batch.BreakChange(c, 300, nil)
	require.NoError(t, err)
	require.Greater(t, len(out), 1)

	sharedBatch := out[0].BatchID
	require.NotEmpty(t, sharedBatch)
	for i, piece := range out {
		require.Equal(t, sharedBatch, piece.BatchID)
		require.Equal(t, c.Rev+int64(i), piece.Rev)
		require.Len(t, piece.Ops, 1)
		require.Equal(t, patch.KindTxt, piece.Ops[0].Op)
	}

	// Reassembling every piece's delta ops and applying in sequence to the
	// same base text must reproduce what applying the original ops would.
	base := strings.Repeat("x", 10) + strings.Repeat("b", 5)
	want, err := delta.Apply(base, ops)
	require.NoError(t, err)

	got := base
	for _, piece := range out {
		pieceOps := piece.Ops[0].Value.([]delta.Op)
		next, err := delta.Apply(got, pieceOps)
		require.NoError(t, err)
		got = next
	}
	require.Equal(t, want, got)
}

func TestBreakChange_OversizedNonSplittableKindWarnsAndKeepsWhole(t *testing.T) {
	c := change.Change{
		ID:  ids.ChangeID("c1"),
		Ops: patch.Patch{{Op: patch.KindAdd, Path: "/blob", Value: strings.Repeat("z", 2000)}},
	}
	out, err := batch.BreakChange(c, 100, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, c.Ops, out[0].Ops)
}

func TestBreakIntoBatches_PacksBySize(t *testing.T) {
	changes := []change.Change{
		{ID: ids.ChangeID("a"), Ops: patch.Patch{{Op: patch.KindReplace, Path: "/a", Value: 1}}},
		{ID: ids.ChangeID("b"), Ops: patch.Patch{{Op: patch.KindReplace, Path: "/b", Value: 2}}},
		{ID: ids.ChangeID("c"), Ops: patch.Patch{{Op: patch.KindReplace, Path: "/c", Value: 3}}},
	}
	batches, err := batch.BreakIntoBatches(changes, 10_000, nil)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 3)
	for _, c := range batches[0] {
		require.Empty(t, c.BatchID)
	}
}

func TestBreakIntoBatches_AssignsSharedBatchIDOnlyWhenSplit(t *testing.T) {
	ops := []delta.Op{{Insert: strings.Repeat("a", 5000)}}
	changes := []change.Change{
		{ID: ids.ChangeID("a"), Rev: 1, Ops: patch.Patch{{Op: patch.KindTxt, Path: "/body", Value: ops}}},
	}
	batches, err := batch.BreakIntoBatches(changes, 300, nil)
	require.NoError(t, err)
	// Each piece alone serialises to more than 300 bytes, so every piece
	// lands in its own payload batch; all of them carry one shared batchId.
	require.Greater(t, len(batches), 1)
	sharedBatch := batches[0][0].BatchID
	require.NotEmpty(t, sharedBatch)
	for _, b := range batches {
		for _, c := range b {
			require.Equal(t, sharedBatch, c.BatchID)
		}
	}
}

func TestJSONSize_MatchesMarshaledLength(t *testing.T) {
	c := change.Change{ID: ids.ChangeID("c1"), Ops: patch.Patch{{Op: patch.KindReplace, Path: "/a", Value: 1}}}
	size, err := batch.JSONSize(c)
	require.NoError(t, err)
	require.Greater(t, size, 0)
}

func TestGzipSize_SmallerThanJSONForRepetitiveData(t *testing.T) {
	c := change.Change{
		ID:  ids.ChangeID("c1"),
		Ops: patch.Patch{{Op: patch.KindAdd, Path: "/blob", Value: strings.Repeat("a", 10_000)}},
	}
	jsonSize, err := batch.JSONSize(c)
	require.NoError(t, err)
	gzipSize, err := batch.GzipSize(c)
	require.NoError(t, err)
	require.Less(t, gzipSize, jsonSize)
}
