// Package model implements the `models` indexed table: the row that
// anchors a classifier's name to the integer model id used throughout
// cluster, batch_info, scores, and column_stats keys.
package model

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
)

var bucket = []byte("models")

// Model is one row of the models table.
type Model struct {
	ID                uint32
	Name              string
	Kind              string
	ClassifierVersion uint32
	MaxEventIDNum     uint32 // cap on each cluster's merged event_id list
	CreationTime      int64
}

func (m Model) UniqueKey() []byte { return []byte(m.Name) }

func (m Model) Value() []byte {
	var buf []byte
	buf = codec.String(buf, m.Kind)
	buf = codec.LE32(buf, m.ClassifierVersion)
	buf = codec.LE32(buf, m.MaxEventIDNum)
	buf = codec.LE64(buf, uint64(m.CreationTime))
	return buf
}

func decode(key, value []byte) (Model, error) {
	m := Model{Name: string(key)}
	buf := value
	m.Kind, buf = codec.ReadString(buf)
	m.ClassifierVersion = codec.DecodeLE32(buf)
	buf = buf[4:]
	m.MaxEventIDNum = codec.DecodeLE32(buf)
	buf = buf[4:]
	m.CreationTime = int64(codec.DecodeLE64(buf))
	return m, nil
}

// update replaces the mutable fields of a model while preserving ID and
// name, used by Table.Update.
type update struct {
	expected Model
	next     Model
}

func (u update) Verify(stored Model) bool {
	expected := u.expected
	expected.ID = stored.ID
	return stored == expected
}
func (u update) Apply(stored Model) Model {
	next := u.next
	next.Name = stored.Name
	return next
}

// Table is the models table.
type Table struct {
	m *indexedmap.Map[Model]
}

// Open wraps the models bucket.
func Open(db *bolt.DB) (*Table, error) {
	m, err := indexedmap.Open[Model](db, bucket, decode, nil)
	if err != nil {
		return nil, err
	}
	return &Table{m: m}, nil
}

// Insert assigns a new model id, writing ID into the returned row.
func (tb *Table) Insert(m Model) (Model, error) {
	id, err := tb.m.Insert(m)
	if err != nil {
		return Model{}, err
	}
	m.ID = id
	return m, nil
}

// GetByID reads a model by its assigned id.
func (tb *Table) GetByID(id uint32) (Model, error) {
	m, err := tb.m.GetByID(id)
	if err != nil {
		return Model{}, err
	}
	m.ID = id
	return m, nil
}

// GetByName looks up the active model row with the given name.
func (tb *Table) GetByName(name string) (Model, bool, error) {
	id, ok, err := tb.m.FindID([]byte(name))
	if err != nil || !ok {
		return Model{}, false, err
	}
	m, err := tb.m.GetByID(id)
	if err != nil {
		return Model{}, false, err
	}
	m.ID = id
	return m, true, nil
}

// Update replaces the row at id, keeping ID and Name fixed, after
// verifying the stored value matches expected.
func (tb *Table) Update(id uint32, expected, next Model) error {
	return tb.m.Update(id, update{expected: expected, next: next})
}

// Remove deletes the model row, returning its name.
func (tb *Table) Remove(id uint32) ([]byte, error) { return tb.m.Remove(id) }
