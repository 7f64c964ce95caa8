// Package timeseries implements the `time_series` table: per-model,
// per-cluster binned counts over time, keyed by (model_id, cluster_id,
// time, count_index) so the model-deletion sweep can prefix-scan a
// model's rows in one pass. Trend analysis over these rows happens
// elsewhere; this table only stores and sweeps them.
package timeseries

import (
	"fmt"
	"math"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("time_series")

// noCountIndex is the key-space sentinel for CountIndex == nil, meaning the
// row counts raw events rather than a specific column's distinct values.
const noCountIndex = math.MaxUint32

// TimeSeries is one binned count of a cluster's events (or of one column's
// values, when CountIndex is set) over a time window.
type TimeSeries struct {
	ModelID    uint32
	ClusterID  uint32
	Time       int64 // bucket start, nanoseconds
	Value      int64 // underlying column/event timestamp, nanoseconds
	CountIndex *uint32
	Count      uint64
}

func key(modelID, clusterID uint32, time int64, countIndex *uint32) []byte {
	k := codec.BE32(nil, modelID)
	k = codec.BE32(k, clusterID)
	k = codec.BEI64(k, time)
	idx := uint32(noCountIndex)
	if countIndex != nil {
		idx = *countIndex
	}
	return codec.BE32(k, idx)
}

func decode(k, v []byte) (TimeSeries, error) {
	if len(k) != 20 {
		return TimeSeries{}, fmt.Errorf("timeseries: malformed key: %w", dberr.ErrCorrupt)
	}
	ts := TimeSeries{
		ModelID:   codec.DecodeBE32(k[0:4]),
		ClusterID: codec.DecodeBE32(k[4:8]),
		Time:      codec.DecodeBEI64(k[8:16]),
	}
	idx := codec.DecodeBE32(k[16:20])
	if idx != noCountIndex {
		ts.CountIndex = &idx
	}
	buf := v
	ts.Value = int64(codec.DecodeLE64(buf))
	buf = buf[8:]
	ts.Count = codec.DecodeLE64(buf)
	return ts, nil
}

func (ts TimeSeries) encode() []byte {
	var buf []byte
	buf = codec.LE64(buf, uint64(ts.Value))
	buf = codec.LE64(buf, ts.Count)
	return buf
}

// Table is the time_series table.
type Table struct {
	t *table.Table[TimeSeries]
}

// Open wraps the time_series bucket.
func Open(db *bolt.DB) (*Table, error) {
	t, err := table.Open[TimeSeries](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t}, nil
}

// Upsert inserts or overwrites one row.
func (tb *Table) Upsert(ts TimeSeries) error {
	return tb.t.Put(key(ts.ModelID, ts.ClusterID, ts.Time, ts.CountIndex), ts.encode())
}

// GetAllFor returns every row for modelID.
func (tb *Table) GetAllFor(modelID uint32) ([]TimeSeries, error) {
	var rows []TimeSeries
	err := tb.t.PrefixIter(codec.BE32(nil, modelID), kv.Forward, func(ts TimeSeries) bool {
		rows = append(rows, ts)
		return true
	})
	return rows, err
}

// DeleteAllFor removes every row for modelID. It returns the number of
// rows deleted.
func (tb *Table) DeleteAllFor(modelID uint32) (int, error) {
	rows, err := tb.GetAllFor(modelID)
	if err != nil {
		return 0, err
	}
	for i, ts := range rows {
		if err := tb.t.Delete(key(ts.ModelID, ts.ClusterID, ts.Time, ts.CountIndex)); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}
