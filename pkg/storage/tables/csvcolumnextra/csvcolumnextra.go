// Package csvcolumnextra implements the `csv_column_extra` table:
// per-model, per-column display metadata (friendly column name and the
// top-N width used when rendering column statistics), keyed by
// (model_id, column_index) so the model-deletion sweep can prefix-scan
// and remove a model's columns in one pass.
package csvcolumnextra

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("csv_column_extras")

// CsvColumnExtra is one row: the display name and top-N width of a single
// CSV column within a model.
type CsvColumnExtra struct {
	ModelID     uint32
	ColumnIndex uint32
	ColumnName  string
	ColumnTopN  uint32
}

func key(modelID, columnIndex uint32) []byte {
	k := codec.BE32(nil, modelID)
	return codec.BE32(k, columnIndex)
}

func decode(k, v []byte) (CsvColumnExtra, error) {
	if len(k) != 8 {
		return CsvColumnExtra{}, fmt.Errorf("csvcolumnextra: malformed key: %w", dberr.ErrCorrupt)
	}
	c := CsvColumnExtra{
		ModelID:     codec.DecodeBE32(k[0:4]),
		ColumnIndex: codec.DecodeBE32(k[4:8]),
	}
	buf := v
	c.ColumnName, buf = codec.ReadString(buf)
	c.ColumnTopN = codec.DecodeLE32(buf)
	return c, nil
}

func (c CsvColumnExtra) encode() []byte {
	var buf []byte
	buf = codec.String(buf, c.ColumnName)
	buf = codec.LE32(buf, c.ColumnTopN)
	return buf
}

// Table is the csv_column_extra table.
type Table struct {
	t *table.Table[CsvColumnExtra]
}

// Open wraps the csv_column_extra bucket.
func Open(db *bolt.DB) (*Table, error) {
	t, err := table.Open[CsvColumnExtra](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t}, nil
}

// Get returns the row for (modelID, columnIndex), if present.
func (tb *Table) Get(modelID, columnIndex uint32) (CsvColumnExtra, bool, error) {
	return tb.t.Get(key(modelID, columnIndex))
}

// Upsert inserts or overwrites one row.
func (tb *Table) Upsert(c CsvColumnExtra) error {
	return tb.t.Put(key(c.ModelID, c.ColumnIndex), c.encode())
}

// GetAllFor returns every row for modelID, ordered by column index.
func (tb *Table) GetAllFor(modelID uint32) ([]CsvColumnExtra, error) {
	var rows []CsvColumnExtra
	err := tb.t.PrefixIter(codec.BE32(nil, modelID), kv.Forward, func(c CsvColumnExtra) bool {
		rows = append(rows, c)
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
	for i, c := range rows {
		if err := tb.t.Delete(key(c.ModelID, c.ColumnIndex)); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}
