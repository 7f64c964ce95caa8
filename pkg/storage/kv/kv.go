// Package kv wraps one bbolt bucket as an ordered, transactional column
// family. It is the lowest layer of the storage engine: every indexed map,
// indexed set, and specialized table is built on top of a Map.
package kv

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

// IndexKey is the reserved key under which indexedmap stores a column
// family's KeyIndex. bbolt rejects blank keys, so the index lives at a
// single zero byte, which sorts before every record key. Map's own
// iterators skip it so callers never see the index row mixed in with
// data rows; record keys must be non-empty and must not equal IndexKey.
var IndexKey = []byte{0}

func isIndexKey(k []byte) bool { return bytes.Equal(k, IndexKey) }

// Map wraps a single bbolt bucket.
type Map struct {
	db     *bolt.DB
	bucket []byte
}

// Name returns the column family (bucket) name this Map wraps, for
// per-column-family logging and metrics.
func (m *Map) Name() string { return string(m.bucket) }

// Open creates (if needed) and wraps the named bucket.
func Open(db *bolt.DB, bucket []byte) (*Map, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("kv: open bucket %s: %w", bucket, err)
	}
	return &Map{db: db, bucket: bucket}, nil
}

// Direction selects iteration order.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Pair is a single key/value row.
type Pair struct {
	Key   []byte
	Value []byte
}

// Get reads one value. It returns (nil, false, nil) when the key is absent.
func (m *Map) Get(k []byte) (value []byte, ok bool, err error) {
	err = m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		if b == nil {
			return nil
		}
		v := b.Get(k)
		if v != nil {
			value = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

// Put writes k=v unconditionally. The key must be non-empty.
func (m *Map) Put(k, v []byte) error {
	if len(k) == 0 {
		return fmt.Errorf("kv: empty key: %w", dberr.ErrInvalidInput)
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		return b.Put(k, v)
	})
}

// Insert writes k=v, failing with dberr.ErrAlreadyExists if k is present.
func (m *Map) Insert(k, v []byte) error {
	if len(k) == 0 {
		return fmt.Errorf("kv: empty key: %w", dberr.ErrInvalidInput)
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		if b.Get(k) != nil {
			return dberr.ErrAlreadyExists
		}
		return b.Put(k, v)
	})
}

// Delete removes k. Deleting an absent key is not an error.
func (m *Map) Delete(k []byte) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		return b.Delete(k)
	})
}

// Update performs a transactional compare-and-swap: the stored value at
// old.Key must equal old.Value (dberr.ErrConflict otherwise), then the
// old row is deleted (if its key differs from new.Key) and
// new.Key/new.Value is written, in one transaction.
func (m *Map) Update(old, new Pair) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		cur := b.Get(old.Key)
		if cur == nil || !bytes.Equal(cur, old.Value) {
			return dberr.ErrConflict
		}
		if !bytes.Equal(old.Key, new.Key) {
			if err := b.Delete(old.Key); err != nil {
				return err
			}
		}
		return b.Put(new.Key, new.Value)
	})
}

// ReplaceAll deletes every existing pair then writes newPairs, in one
// transaction.
func (m *Map) ReplaceAll(newPairs []Pair) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		for _, p := range newPairs {
			if err := b.Put(p.Key, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// IterForward yields every pair in ascending key order, skipping the index
// key, until walk returns false or iteration is exhausted.
func (m *Map) IterForward(walk func(Pair) bool) error {
	return m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if isIndexKey(k) {
				continue
			}
			if !walk(Pair{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
				break
			}
		}
		return nil
	})
}

// IterBackward yields every pair in descending key order, skipping the
// index key.
func (m *Map) IterBackward(walk func(Pair) bool) error {
	return m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if isIndexKey(k) {
				continue
			}
			if !walk(Pair{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
				break
			}
		}
		return nil
	})
}

// IterFrom positions the cursor at or after (Forward) / at or before
// (Backward) from, then iterates in the given direction.
func (m *Map) IterFrom(from []byte, dir Direction, walk func(Pair) bool) error {
	return m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		c := b.Cursor()
		k, v := c.Seek(from)
		if dir == Backward {
			if k == nil {
				k, v = c.Last()
			} else if !bytes.Equal(k, from) {
				k, v = c.Prev()
			}
			for ; k != nil; k, v = c.Prev() {
				if isIndexKey(k) {
					continue
				}
				if !walk(Pair{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
					break
				}
			}
			return nil
		}
		for ; k != nil; k, v = c.Next() {
			if isIndexKey(k) {
				continue
			}
			if !walk(Pair{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
				break
			}
		}
		return nil
	})
}

// PrefixIter constrains iteration to keys starting with prefix.
func (m *Map) PrefixIter(prefix []byte, dir Direction, walk func(Pair) bool) error {
	return m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(m.bucket)
		c := b.Cursor()
		if dir == Forward {
			for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
				if isIndexKey(k) {
					continue
				}
				if !walk(Pair{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
					break
				}
			}
			return nil
		}
		// Backward: seek past the prefix range, then walk back into it.
		upperBound := prefixUpperBound(prefix)
		var k, v []byte
		if upperBound == nil {
			k, v = c.Last()
		} else {
			k, v = c.Seek(upperBound)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			if isIndexKey(k) {
				continue
			}
			if !walk(Pair{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
				break
			}
		}
		return nil
	})
}

// prefixUpperBound returns the smallest key that sorts after every key with
// the given prefix, or nil if prefix is all 0xFF bytes (no finite bound).
func prefixUpperBound(prefix []byte) []byte {
	bound := append([]byte(nil), prefix...)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] != 0xFF {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

// View runs fn in a read-only bbolt transaction scoped to this bucket.
func (m *Map) View(fn func(b *bolt.Bucket) error) error {
	return m.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(m.bucket))
	})
}

// Batch runs fn in a read-write bbolt transaction scoped to this bucket.
// Multi-step writers (indexedmap, specialized tables) use this directly so
// the index read, row write, and index write commit atomically.
func (m *Map) Batch(fn func(b *bolt.Bucket) error) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(m.bucket))
	})
}
