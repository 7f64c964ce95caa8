// Package qualifier mirrors category's seeded indexed table for cluster
// qualifiers ("unqualified", "benign", "suspicious", ...).
package qualifier

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
	"github.com/quietloop/sentineldb/pkg/storage/tables/seeded"
)

var bucket = []byte("qualifiers")

var defaultDescriptions = []string{"unqualified", "benign"}

// Qualifier is one row of the qualifier table.
type Qualifier struct {
	Description string
}

func (q Qualifier) UniqueKey() []byte { return []byte(q.Description) }
func (q Qualifier) Value() []byte     { return []byte(q.Description) }

func decode(key, value []byte) (Qualifier, error) {
	return Qualifier{Description: string(value)}, nil
}

// Table is the qualifier lookup table.
type Table struct {
	m *indexedmap.Map[Qualifier]
}

// Open wraps the qualifier bucket and seeds it if empty.
func Open(db *bolt.DB) (*Table, error) {
	m, err := indexedmap.Open[Qualifier](db, bucket, decode, nil)
	if err != nil {
		return nil, err
	}
	defaults := make([]Qualifier, len(defaultDescriptions))
	for i, d := range defaultDescriptions {
		defaults[i] = Qualifier{Description: d}
	}
	if err := seeded.Seed(m, Qualifier{Description: "__probe__"}, defaults); err != nil {
		return nil, err
	}
	return &Table{m: m}, nil
}

func (t *Table) GetByID(id uint32) (Qualifier, error) { return t.m.GetByID(id) }
func (t *Table) Insert(desc string) (uint32, error) { return t.m.Insert(Qualifier{Description: desc}) }
func (t *Table) Remove(id uint32) ([]byte, error) { return t.m.Remove(id) }
func (t *Table) Count() (int, error) { return t.m.Count() }
