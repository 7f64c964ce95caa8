// Package outlierinfo implements the `outlier_info` table: events a
// model flagged as not belonging to any cluster, keyed by
// (model_id, outlier_id) so the model-deletion sweep can prefix-scan and
// remove a model's outliers in one pass.
package outlierinfo

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("outliers")

// OutlierInfo is one row: the raw event bytes that didn't match any
// cluster, the event ids it covers, and how many times it was seen.
type OutlierInfo struct {
	ModelID   uint32
	OutlierID uint64
	RawEvent  []byte
	EventIDs  []uint64
	Size      uint64
}

func key(modelID uint32, outlierID uint64) []byte {
	k := codec.BE32(nil, modelID)
	return codec.BE64(k, outlierID)
}

func decode(k, v []byte) (OutlierInfo, error) {
	if len(k) != 12 {
		return OutlierInfo{}, fmt.Errorf("outlierinfo: malformed key: %w", dberr.ErrCorrupt)
	}
	o := OutlierInfo{
		ModelID:   codec.DecodeBE32(k[0:4]),
		OutlierID: codec.DecodeBE64(k[4:12]),
	}
	buf := v
	o.RawEvent, buf = codec.ReadBytes(buf)
	n := codec.DecodeLE32(buf)
	buf = buf[4:]
	o.EventIDs = make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		o.EventIDs[i] = codec.DecodeLE64(buf)
		buf = buf[8:]
	}
	o.Size = codec.DecodeLE64(buf)
	return o, nil
}

func (o OutlierInfo) encode() []byte {
	var buf []byte
	buf = codec.Bytes(buf, o.RawEvent)
	buf = codec.LE32(buf, uint32(len(o.EventIDs)))
	for _, id := range o.EventIDs {
		buf = codec.LE64(buf, id)
	}
	buf = codec.LE64(buf, o.Size)
	return buf
}

// Table is the outlier_info table.
type Table struct {
	t *table.Table[OutlierInfo]
}

// Open wraps the outlier_info bucket.
func Open(db *bolt.DB) (*Table, error) {
	t, err := table.Open[OutlierInfo](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t}, nil
}

// Get returns the row for (modelID, outlierID), if present.
func (tb *Table) Get(modelID uint32, outlierID uint64) (OutlierInfo, bool, error) {
	return tb.t.Get(key(modelID, outlierID))
}

// Upsert inserts or overwrites one row, e.g. to bump Size when the same
// outlier recurs.
func (tb *Table) Upsert(o OutlierInfo) error {
	return tb.t.Put(key(o.ModelID, o.OutlierID), o.encode())
}

// Delete removes one outlier by (modelID, outlierID).
func (tb *Table) Delete(modelID uint32, outlierID uint64) error {
	return tb.t.Delete(key(modelID, outlierID))
}

// GetAllFor returns every outlier row for modelID.
func (tb *Table) GetAllFor(modelID uint32) ([]OutlierInfo, error) {
	var rows []OutlierInfo
	err := tb.t.PrefixIter(codec.BE32(nil, modelID), kv.Forward, func(o OutlierInfo) bool {
		rows = append(rows, o)
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
	for i, o := range rows {
		if err := tb.t.Delete(key(o.ModelID, o.OutlierID)); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}
