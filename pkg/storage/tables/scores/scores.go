// Package scores implements the one-row-per-model scores table: an
// opaque blob of classifier scoring metadata keyed directly by model id,
// written alongside the model row and swept on model deletion.
package scores

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("scores")

// Scores is one model's scoring metadata. Inner is the caller's opaque,
// already-serialized payload; the thresholds and weights inside it belong
// to the scoring engine, not this store.
type Scores struct {
	ModelID uint32
	Inner   []byte
}

func key(modelID uint32) []byte { return codec.BE32(nil, modelID) }

func decode(k, v []byte) (Scores, error) {
	if len(k) != 4 {
		return Scores{}, fmt.Errorf("scores: malformed key: %w", dberr.ErrCorrupt)
	}
	return Scores{ModelID: codec.DecodeBE32(k), Inner: append([]byte(nil), v...)}, nil
}

// Table is the scores table.
type Table struct {
	t *table.Table[Scores]
}

// Open wraps the scores bucket.
func Open(db *bolt.DB) (*Table, error) {
	t, err := table.Open[Scores](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t}, nil
}

// Get returns the scores row for modelID, if present.
func (tb *Table) Get(modelID uint32) (Scores, bool, error) {
	return tb.t.Get(key(modelID))
}

// Overwrite inserts or replaces the single row for s.ModelID.
func (tb *Table) Overwrite(s Scores) error {
	return tb.t.Put(key(s.ModelID), append([]byte(nil), s.Inner...))
}

// Delete removes the row for modelID. Deleting an absent row is not an
// error.
func (tb *Table) Delete(modelID uint32) error {
	return tb.t.Delete(key(modelID))
}
