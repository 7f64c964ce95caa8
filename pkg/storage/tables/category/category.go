// Package category implements the seeded "category" indexed table: a
// name-keyed lookup table pre-populated with defaults at canonical IDs,
// ID 0 reserved as a deactivated sentinel.
package category

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
	"github.com/quietloop/sentineldb/pkg/storage/tables/seeded"
)

var bucket = []byte("category")

// defaultNames is the seed order; position i lands at ID i+1. Cluster
// rows created by batch updates default to category 1, so "uncategorized"
// must stay first.
var defaultNames = []string{"uncategorized", "malicious"}

// Category is one row of the category table.
type Category struct {
	Name string
}

func (c Category) UniqueKey() []byte { return []byte(c.Name) }
func (c Category) Value() []byte     { return []byte(c.Name) }

func decode(key, value []byte) (Category, error) {
	return Category{Name: string(value)}, nil
}

// Table is the category lookup table.
type Table struct {
	m *indexedmap.Map[Category]
}

// Open wraps the category bucket and seeds it if empty.
func Open(db *bolt.DB) (*Table, error) {
	m, err := indexedmap.Open[Category](db, bucket, decode, nil)
	if err != nil {
		return nil, err
	}
	defaults := make([]Category, len(defaultNames))
	for i, n := range defaultNames {
		defaults[i] = Category{Name: n}
	}
	if err := seeded.Seed(m, Category{Name: "__probe__"}, defaults); err != nil {
		return nil, err
	}
	return &Table{m: m}, nil
}

func (t *Table) GetByID(id uint32) (Category, error) { return t.m.GetByID(id) }
func (t *Table) Insert(name string) (uint32, error) { return t.m.Insert(Category{Name: name}) }
func (t *Table) Remove(id uint32) ([]byte, error) { return t.m.Remove(id) }
func (t *Table) Count() (int, error) { return t.m.Count() }
