package diff_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"patches/patch"
	"patches/patch/diff"
)

func apply(t *testing.T, state interface{}, ops patch.Patch) interface{} {
	t.Helper()
	out, err := patch.Apply(patch.DefaultRegistry(), state, ops)
	require.NoError(t, err)
	return out
}

func TestDiff_NoChangeReturnsEmptyPatch(t *testing.T) {
	state := map[string]interface{}{"a": float64(1)}
	ops, err := diff.Diff(state, map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)
	require.Empty(t, ops)
}

func TestDiff_ObjectAddRemoveReplace(t *testing.T) {
	oldState := map[string]interface{}{
		"keep":    "same",
		"change":  "before",
		"removed": "gone",
	}
	newState := map[string]interface{}{
		"keep":   "same",
		"change": "after",
		"added":  "new",
	}

	ops, err := diff.Diff(oldState, newState)
	require.NoError(t, err)
	require.NotEmpty(t, ops)

	got := apply(t, oldState, ops)
	require.Equal(t, newState, got)
}

func TestDiff_ArrayGrowAndReplace(t *testing.T) {
	oldState := map[string]interface{}{"items": []interface{}{"a", "b", "c"}}
	newState := map[string]interface{}{"items": []interface{}{"a", "x", "c", "d"}}

	ops, err := diff.Diff(oldState, newState)
	require.NoError(t, err)

	got := apply(t, oldState, ops)
	require.Equal(t, newState, got)
}

func TestDiff_ArrayShrinks(t *testing.T) {
	oldState := map[string]interface{}{"items": []interface{}{"a", "b", "c", "d"}}
	newState := map[string]interface{}{"items": []interface{}{"a", "b"}}

	ops, err := diff.Diff(oldState, newState)
	require.NoError(t, err)

	got := apply(t, oldState, ops)
	require.Equal(t, newState, got)
}

func TestDiff_NestedObjects(t *testing.T) {
	oldState := map[string]interface{}{
		"profile": map[string]interface{}{"name": "alice", "age": float64(30)},
	}
	newState := map[string]interface{}{
		"profile": map[string]interface{}{"name": "alice", "age": float64(31)},
	}

	ops, err := diff.Diff(oldState, newState)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, patch.KindReplace, ops[0].Op)
	require.Equal(t, patch.Pointer("/profile/age"), ops[0].Path)

	got := apply(t, oldState, ops)
	require.Equal(t, newState, got)
}
