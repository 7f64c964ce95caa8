// Package batchinfo implements the per-model, time-bucketed batch_info
// table: keyed by (model_id, batch_id), it records the span and sensor
// set of one classifier run so the store facade can seed, overwrite, and
// sweep it per model.
package batchinfo

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("batch_info")

// BatchInfo is one row: the batch's id, time span, record count, and the
// sensors that contributed to it.
type BatchInfo struct {
	ModelID  uint32
	BatchID  uint64
	Earliest int64
	Latest   int64
	Size     uint64
	Sensors  []string
}

func key(modelID uint32, batchID uint64) []byte {
	k := codec.BE32(nil, modelID)
	return codec.BE64(k, batchID)
}

func decode(k, v []byte) (BatchInfo, error) {
	if len(k) != 12 {
		return BatchInfo{}, fmt.Errorf("batchinfo: malformed key: %w", dberr.ErrCorrupt)
	}
	b := BatchInfo{
		ModelID: codec.DecodeBE32(k[0:4]),
		BatchID: codec.DecodeBE64(k[4:12]),
	}
	buf := v
	b.Earliest = int64(codec.DecodeLE64(buf))
	buf = buf[8:]
	b.Latest = int64(codec.DecodeLE64(buf))
	buf = buf[8:]
	b.Size = codec.DecodeLE64(buf)
	buf = buf[8:]
	n := codec.DecodeLE32(buf)
	buf = buf[4:]
	b.Sensors = make([]string, n)
	for i := uint32(0); i < n; i++ {
		b.Sensors[i], buf = codec.ReadString(buf)
	}
	return b, nil
}

func (b BatchInfo) encode() []byte {
	var buf []byte
	buf = codec.LE64(buf, uint64(b.Earliest))
	buf = codec.LE64(buf, uint64(b.Latest))
	buf = codec.LE64(buf, b.Size)
	buf = codec.LE32(buf, uint32(len(b.Sensors)))
	for _, s := range b.Sensors {
		buf = codec.String(buf, s)
	}
	return buf
}

// Table is the batch_info table.
type Table struct {
	t *table.Table[BatchInfo]
}

// Open wraps the batch_info bucket.
func Open(db *bolt.DB) (*Table, error) {
	t, err := table.Open[BatchInfo](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t}, nil
}

// Get returns the batch_info row for (modelID, batchID), if present.
func (tb *Table) Get(modelID uint32, batchID uint64) (BatchInfo, bool, error) {
	return tb.t.Get(key(modelID, batchID))
}

// Upsert inserts or overwrites one row.
func (tb *Table) Upsert(b BatchInfo) error {
	return tb.t.Put(key(b.ModelID, b.BatchID), b.encode())
}

// GetAllFor returns every batch_info row for modelID.
func (tb *Table) GetAllFor(modelID uint32) ([]BatchInfo, error) {
	var rows []BatchInfo
	err := tb.t.PrefixIter(codec.BE32(nil, modelID), kv.Forward, func(b BatchInfo) bool {
		rows = append(rows, b)
		return true
	})
	return rows, err
}

// Count returns the number of batch_info rows for modelID.
func (tb *Table) Count(modelID uint32) (int, error) {
	rows, err := tb.GetAllFor(modelID)
	return len(rows), err
}

// DeleteAllFor removes every batch_info row for modelID, used by the
// store facade's model-deletion sweep. It returns the number of rows
// deleted.
func (tb *Table) DeleteAllFor(modelID uint32) (int, error) {
	rows, err := tb.GetAllFor(modelID)
	if err != nil {
		return 0, err
	}
	for i, b := range rows {
		if err := tb.t.Delete(key(b.ModelID, b.BatchID)); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}
