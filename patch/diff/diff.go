// Package diff derives a Patch from a before/after pair of document states.
// It is a convenience/test helper, not on the commit hot path: the server
// never diffs states, it only ever applies client-submitted ops.
//
// Grounded on the pack's nodestorage/v2 generateDiff (storage_impl.go),
// which marshals old/new documents to JSON and calls
// jsonpatch.CreateMergePatch purely to detect whether anything changed
// before paying for a full BSON patch; we reuse exactly that "cheap
// equality check" use of evanphx/json-patch and do the structural walk
// ourselves, since CreateMergePatch's RFC 7396 merge-patch shape has no
// array-index semantics and cannot express the JSON-Pointer ops this
// module's Patch needs.
package diff

import (
	"encoding/json"
	"sort"

	jsonpatch "github.com/evanphx/json-patch"

	"patches/patch"
)

// Diff returns the Patch of add/replace/remove Operations that, applied to
// oldState in order, produces newState. Returns an empty Patch if the two
// states are equivalent.
func Diff(oldState, newState interface{}) (patch.Patch, error) {
	oldJSON, err := json.Marshal(oldState)
	if err != nil {
		return nil, err
	}
	newJSON, err := json.Marshal(newState)
	if err != nil {
		return nil, err
	}
	if jsonpatch.Equal(oldJSON, newJSON) {
		return nil, nil
	}

	var ops patch.Patch
	walk(patch.Pointer(""), oldState, newState, &ops)
	return ops, nil
}

func walk(at patch.Pointer, oldVal, newVal interface{}, ops *patch.Patch) {
	oldMap, oldIsMap := oldVal.(map[string]interface{})
	newMap, newIsMap := newVal.(map[string]interface{})
	if oldIsMap && newIsMap {
		walkObject(at, oldMap, newMap, ops)
		return
	}

	oldSlice, oldIsSlice := oldVal.([]interface{})
	newSlice, newIsSlice := newVal.([]interface{})
	if oldIsSlice && newIsSlice {
		walkArray(at, oldSlice, newSlice, ops)
		return
	}

	if !equalScalar(oldVal, newVal) {
		*ops = append(*ops, patch.Operation{Op: patch.KindReplace, Path: at, Value: newVal})
	}
}

func walkObject(at patch.Pointer, oldMap, newMap map[string]interface{}, ops *patch.Patch) {
	keys := make([]string, 0, len(oldMap)+len(newMap))
	seen := make(map[string]bool, len(oldMap)+len(newMap))
	for k := range oldMap {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range newMap {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		oldChild, inOld := oldMap[k]
		newChild, inNew := newMap[k]
		child := at.Append(k)
		switch {
		case inOld && !inNew:
			*ops = append(*ops, patch.Operation{Op: patch.KindRemove, Path: child})
		case !inOld && inNew:
			*ops = append(*ops, patch.Operation{Op: patch.KindAdd, Path: child, Value: newChild})
		default:
			walk(child, oldChild, newChild, ops)
		}
	}
}

// walkArray diffs element-by-element over the shared prefix, then emits a
// trailing run of removes (old longer) or appends (new longer). This is not
// a minimal-edit-distance diff — it is the same "compare what's there,
// patch the tail" approach the pack's BSON patch path takes for array
// fields, which is sufficient for this package's role as a test/convenience
// helper rather than a compression-grade differ.
func walkArray(at patch.Pointer, oldSlice, newSlice []interface{}, ops *patch.Patch) {
	n := len(oldSlice)
	if len(newSlice) < n {
		n = len(newSlice)
	}
	for i := 0; i < n; i++ {
		walk(at.Append(itoa(i)), oldSlice[i], newSlice[i], ops)
	}
	for i := len(oldSlice) - 1; i >= n; i-- {
		*ops = append(*ops, patch.Operation{Op: patch.KindRemove, Path: at.Append(itoa(i))})
	}
	for i := n; i < len(newSlice); i++ {
		*ops = append(*ops, patch.Operation{Op: patch.KindAdd, Path: at.Append("-"), Value: newSlice[i]})
	}
}

func equalScalar(a, b interface{}) bool {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return jsonpatch.Equal(aJSON, bJSON)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
