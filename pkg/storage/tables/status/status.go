// Package status mirrors category's seeded indexed table for cluster
// review statuses ("review", "reviewed", ...).
package status

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
	"github.com/quietloop/sentineldb/pkg/storage/tables/seeded"
)

var bucket = []byte("statuses")

var defaultDescriptions = []string{"review", "reviewed"}

// Status is one row of the status table.
type Status struct {
	Description string
}

func (s Status) UniqueKey() []byte { return []byte(s.Description) }
func (s Status) Value() []byte     { return []byte(s.Description) }

func decode(key, value []byte) (Status, error) {
	return Status{Description: string(value)}, nil
}

// Table is the status lookup table.
type Table struct {
	m *indexedmap.Map[Status]
}

// Open wraps the status bucket and seeds it if empty.
func Open(db *bolt.DB) (*Table, error) {
	m, err := indexedmap.Open[Status](db, bucket, decode, nil)
	if err != nil {
		return nil, err
	}
	defaults := make([]Status, len(defaultDescriptions))
	for i, d := range defaultDescriptions {
		defaults[i] = Status{Description: d}
	}
	if err := seeded.Seed(m, Status{Description: "__probe__"}, defaults); err != nil {
		return nil, err
	}
	return &Table{m: m}, nil
}

func (t *Table) GetByID(id uint32) (Status, error) { return t.m.GetByID(id) }
func (t *Table) Insert(desc string) (uint32, error) { return t.m.Insert(Status{Description: desc}) }
func (t *Table) Remove(id uint32) ([]byte, error) { return t.m.Remove(id) }
func (t *Table) Count() (int, error) { return t.m.Count() }
