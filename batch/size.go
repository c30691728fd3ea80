package batch

import (
	"bytes"
	"encoding/json"

	"github.com/klauspost/compress/gzip"

	"patches/change"
)

// SizeCalculator measures the serialised size in bytes of a Change, so
// breakChange/breakIntoBatches can budget against whatever the storage
// backend actually bills (spec §4.3 "lets callers measure post-compression
// size").
type SizeCalculator func(c change.Change) (int, error)

// JSONSize is the default SizeCalculator: the length of the change's JSON
// encoding, the same measure the pack's nodestorage/v2 logs alongside
// its BSON patch sizes when deciding whether a diff is worth storing.
func JSONSize(c change.Change) (int, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// GzipSize compresses the change's JSON encoding and reports the compressed
// length, for callers whose storage backend (or wire transport) transparently
// gzips payloads — grounded on klauspost/compress, present in the pack's
// dependency graph transitively via badger but never exercised directly by
// it; this is its home in this module.
func GzipSize(c change.Change) (int, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(raw); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
