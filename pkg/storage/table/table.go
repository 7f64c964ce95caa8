package table

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
)

// Decoder reconstructs a record from its stored key/value pair.
type Decoder[T any] func(key, value []byte) (T, error)

// Table is a typed, non-indexed column family: entities addressed
// directly by their composite key (clusters, column statistics, events),
// with no separate integer ID.
type Table[T any] struct {
	rows   *kv.Map
	decode Decoder[T]
}

// Open wraps bucket as a typed table.
func Open[T any](db *bolt.DB, bucket []byte, decode Decoder[T]) (*Table[T], error) {
	rows, err := kv.Open(db, bucket)
	if err != nil {
		return nil, err
	}
	return &Table[T]{rows: rows, decode: decode}, nil
}

// Raw exposes the underlying kv.Map for entity-specific helpers (prefix
// scans, transactional compare-and-swap) that don't fit the generic shape.
func (t *Table[T]) Raw() *kv.Map { return t.rows }

// Get decodes the row at k, if present.
func (t *Table[T]) Get(k []byte) (T, bool, error) {
	var zero T
	v, ok, err := t.rows.Get(k)
	if err != nil || !ok {
		return zero, ok, err
	}
	r, err := t.decode(k, v)
	return r, true, err
}

// Put writes k=v unconditionally.
func (t *Table[T]) Put(k, v []byte) error {
	return t.rows.Put(k, v)
}

// Insert writes k=v, failing if k is already present.
func (t *Table[T]) Insert(k, v []byte) error {
	return t.rows.Insert(k, v)
}

// Delete removes the row at k.
func (t *Table[T]) Delete(k []byte) error {
	return t.rows.Delete(k)
}

// IterForward decodes and yields every row in ascending key order.
func (t *Table[T]) IterForward(walk func(T) bool) error {
	var decodeErr error
	err := t.rows.IterForward(func(p kv.Pair) bool {
		r, err := t.decode(p.Key, p.Value)
		if err != nil {
			decodeErr = err
			return false
		}
		return walk(r)
	})
	if decodeErr != nil {
		return decodeErr
	}
	return err
}

// PrefixIter decodes and yields every row whose key starts with prefix.
func (t *Table[T]) PrefixIter(prefix []byte, dir kv.Direction, walk func(T) bool) error {
	var decodeErr error
	err := t.rows.PrefixIter(prefix, dir, func(p kv.Pair) bool {
		r, err := t.decode(p.Key, p.Value)
		if err != nil {
			decodeErr = err
			return false
		}
		return walk(r)
	})
	if decodeErr != nil {
		return decodeErr
	}
	return err
}

// IndexedTable is a typed view over an indexedmap.Map: entities with a
// stable recyclable integer ID (categories, qualifiers, statuses, nodes,
// models).
type IndexedTable[T indexedmap.Record] struct {
	*indexedmap.Map[T]
}

// OpenIndexed wraps bucket as a typed indexed table.
func OpenIndexed[T indexedmap.Record](db *bolt.DB, bucket []byte, decode indexedmap.Decoder[T], key indexedmap.KeyPolicy) (*IndexedTable[T], error) {
	m, err := indexedmap.Open[T](db, bucket, decode, key)
	if err != nil {
		return nil, err
	}
	return &IndexedTable[T]{Map: m}, nil
}
