// Package modelindicator implements the `model_indicator` table: a
// named, per-model set of detection tokens, keyed directly by name
// rather than by model id. Names are the caller-facing identity; the
// model id is carried as a field so the model-deletion sweep can filter
// a full scan by it.
package modelindicator

import (
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("model_indicators")

// ModelIndicator is one row: a human-authored description and token set
// used to flag matching events for a model.
type ModelIndicator struct {
	Name                 string
	Description          string
	ModelID              uint32
	Tokens               [][]string
	LastModificationTime int64
}

func key(name string) []byte { return []byte(name) }

func decode(k, v []byte) (ModelIndicator, error) {
	m := ModelIndicator{Name: string(k)}
	buf := v
	m.Description, buf = codec.ReadString(buf)
	m.ModelID = codec.DecodeLE32(buf)
	buf = buf[4:]
	n := codec.DecodeLE32(buf)
	buf = buf[4:]
	m.Tokens = make([][]string, n)
	for i := uint32(0); i < n; i++ {
		tn := codec.DecodeLE32(buf)
		buf = buf[4:]
		tok := make([]string, tn)
		for j := uint32(0); j < tn; j++ {
			tok[j], buf = codec.ReadString(buf)
		}
		m.Tokens[i] = tok
	}
	m.LastModificationTime = int64(codec.DecodeLE64(buf))
	return m, nil
}

func (m ModelIndicator) encode() []byte {
	var buf []byte
	buf = codec.String(buf, m.Description)
	buf = codec.LE32(buf, m.ModelID)
	buf = codec.LE32(buf, uint32(len(m.Tokens)))
	for _, tok := range m.Tokens {
		buf = codec.LE32(buf, uint32(len(tok)))
		for _, s := range tok {
			buf = codec.String(buf, s)
		}
	}
	buf = codec.LE64(buf, uint64(m.LastModificationTime))
	return buf
}

// Table is the model_indicator table.
type Table struct {
	t *table.Table[ModelIndicator]
}

// Open wraps the model_indicator bucket.
func Open(db *bolt.DB) (*Table, error) {
	t, err := table.Open[ModelIndicator](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t}, nil
}

// Get returns the indicator with the given name, if present.
func (tb *Table) Get(name string) (ModelIndicator, bool, error) {
	return tb.t.Get(key(name))
}

// Upsert inserts or replaces the indicator by name.
func (tb *Table) Upsert(m ModelIndicator) error {
	return tb.t.Put(key(m.Name), m.encode())
}

// Remove deletes the named indicators, returning the names actually
// requested (removing an absent name is not an error).
func (tb *Table) Remove(names []string) ([]string, error) {
	for _, name := range names {
		if err := tb.t.Delete(key(name)); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// List returns every indicator, sorted by name.
func (tb *Table) List() ([]ModelIndicator, error) {
	var rows []ModelIndicator
	err := tb.t.IterForward(func(m ModelIndicator) bool {
		rows = append(rows, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

// DeleteAllFor removes every indicator belonging to modelID. It returns
// the names removed.
func (tb *Table) DeleteAllFor(modelID uint32) ([]string, error) {
	all, err := tb.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range all {
		if m.ModelID == modelID {
			names = append(names, m.Name)
		}
	}
	for _, name := range names {
		if err := tb.t.Delete(key(name)); err != nil {
			return names, err
		}
	}
	return names, nil
}
