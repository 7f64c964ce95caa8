package indexedmap

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	sdlog "github.com/quietloop/sentineldb/pkg/log"
	"github.com/quietloop/sentineldb/pkg/metrics"
	"github.com/quietloop/sentineldb/pkg/storage/keyindex"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
)

// Record is anything storable in an indexed map: it knows its own unique
// key and how to serialize its value.
type Record interface {
	UniqueKey() []byte
	Value() []byte
}

// Decoder reconstructs a record from its stored key/value pair.
type Decoder[T Record] func(key, value []byte) (T, error)

// KeyPolicy composes a record's unique key with its assigned ID to form
// the key actually written to the bucket. Most entities use IdentityKey
// (the unique key is already globally unique); entities whose unique key
// can repeat across IDs (e.g. network entries) use AppendIDKey.
type KeyPolicy func(key []byte, id uint32) []byte

// IdentityKey is the default policy: the indexed key is the unique key.
func IdentityKey(key []byte, _ uint32) []byte { return key }

// AppendIDKey appends a big-endian ID to the unique key, letting two
// records share a textual key as long as their IDs differ.
func AppendIDKey(key []byte, id uint32) []byte {
	out := make([]byte, len(key)+4)
	copy(out, key)
	out[len(key)] = byte(id >> 24)
	out[len(key)+1] = byte(id >> 16)
	out[len(key)+2] = byte(id >> 8)
	out[len(key)+3] = byte(id)
	return out
}

// Map is a generic indexed map over one bbolt bucket.
type Map[T Record] struct {
	rows   *kv.Map
	decode Decoder[T]
	key    KeyPolicy
}

// Open wraps bucket as an indexed map. decode reconstructs T from a
// stored (indexedKey, value) pair; key composes a record's unique key
// with its assigned ID.
func Open[T Record](db *bolt.DB, bucket []byte, decode Decoder[T], key KeyPolicy) (*Map[T], error) {
	rows, err := kv.Open(db, bucket)
	if err != nil {
		return nil, err
	}
	if key == nil {
		key = IdentityKey
	}
	return &Map[T]{rows: rows, decode: decode, key: key}, nil
}

func loadIndex(b *bolt.Bucket) (*keyindex.KeyIndex, error) {
	raw := b.Get(kv.IndexKey)
	if raw == nil {
		return keyindex.New(), nil
	}
	return keyindex.Decode(raw)
}

func storeIndex(b *bolt.Bucket, idx *keyindex.KeyIndex) error {
	return b.Put(kv.IndexKey, idx.Encode())
}

// observeIndex refreshes this map's occupancy gauges after a structural
// index change.
func (m *Map[T]) observeIndex(idx *keyindex.KeyIndex) {
	name := m.rows.Name()
	metrics.IndexedMapCount.WithLabelValues(name).Set(float64(idx.Count()))
	metrics.IndexedMapFreeListLength.WithLabelValues(name).Set(float64(idx.FreeLen()))
}

// Count returns the number of active records.
func (m *Map[T]) Count() (int, error) {
	var n int
	err := m.rows.View(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		n = idx.Count()
		return nil
	})
	return n, err
}

// FindID scans the index for the active ID currently holding uniqueKey,
// the same in-memory scan Overwrite uses to locate an existing record.
// Callers that need to look a record up by its unique key rather than by
// ID (e.g. get_model_by_name) build on this instead of re-deriving the
// indexed key, since AppendIDKey-policy entities can't reconstruct it
// without already knowing the ID.
func (m *Map[T]) FindID(uniqueKey []byte) (uint32, bool, error) {
	var id uint32
	var ok bool
	err := m.rows.View(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		for i, e := range idx.Entries {
			if e.Kind == keyindex.SlotKey && bytes.Equal(e.Key, uniqueKey) {
				id, ok = uint32(i), true
				return nil
			}
		}
		return nil
	})
	return id, ok, err
}

// Range decodes and visits every active record in ascending ID order,
// stopping early if visit returns false. Cascades that must sweep every
// row of an indexed table (tag-removal cleanups, delete_model) build on
// this instead of re-deriving the free-list scan themselves.
func (m *Map[T]) Range(visit func(id uint32, record T) (cont bool, err error)) error {
	return m.rows.View(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		for i, e := range idx.Entries {
			if e.Kind != keyindex.SlotKey {
				continue
			}
			id := uint32(i)
			indexedKey := m.key(e.Key, id)
			v := b.Get(indexedKey)
			if v == nil {
				return fmt.Errorf("indexedmap: index points to missing row for id %d: %w", id, dberr.ErrCorrupt)
			}
			record, err := m.decode(indexedKey, v)
			if err != nil {
				return err
			}
			cont, err := visit(id, record)
			if err != nil || !cont {
				return err
			}
		}
		return nil
	})
}

// Insert assigns a new ID to record, writes its row, and returns the ID.
// It fails with dberr.ErrAlreadyExists if the composed indexed key already
// has a row: under IdentityKey that rejects any duplicate unique key, while
// under AppendIDKey two records may share a textual key as long as their
// IDs differ.
func (m *Map[T]) Insert(record T) (uint32, error) {
	var id uint32
	err := m.rows.Batch(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		uk := record.UniqueKey()
		newID, err := idx.Allocate(uk)
		if err != nil {
			return err
		}
		indexedKey := m.key(uk, newID)
		if b.Get(indexedKey) != nil {
			return fmt.Errorf("indexedmap: key already exists: %w", dberr.ErrAlreadyExists)
		}
		if err := b.Put(indexedKey, record.Value()); err != nil {
			return err
		}
		if err := storeIndex(b, idx); err != nil {
			return err
		}
		m.observeIndex(idx)
		id = newID
		return nil
	})
	return id, err
}

// GetByID reads the index, constructs the indexed key, and decodes the
// stored row.
func (m *Map[T]) GetByID(id uint32) (T, error) {
	var zero T
	var result T
	err := m.rows.View(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		uk, ok := idx.Get(id)
		if !ok {
			return dberr.ErrNotFound
		}
		indexedKey := m.key(uk, id)
		v := b.Get(indexedKey)
		if v == nil {
			return fmt.Errorf("indexedmap: index points to missing row for id %d: %w", id, dberr.ErrCorrupt)
		}
		result, err = m.decode(indexedKey, v)
		return err
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Remove deletes the row for id and frees the ID for reuse, returning the
// unique key that was stored there.
func (m *Map[T]) Remove(id uint32) ([]byte, error) {
	var key []byte
	err := m.rows.Batch(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		uk, ok := idx.Get(id)
		if !ok {
			return dberr.ErrNotFound
		}
		indexedKey := m.key(uk, id)
		if err := b.Delete(indexedKey); err != nil {
			return err
		}
		key, err = idx.Remove(id)
		if err != nil {
			return err
		}
		if err := storeIndex(b, idx); err != nil {
			return err
		}
		m.observeIndex(idx)
		return nil
	})
	return key, err
}

// Deactivate deletes the row for id and tombstones the ID so it is not
// recycled until ClearInactive runs, returning the unique key.
func (m *Map[T]) Deactivate(id uint32) ([]byte, error) {
	var key []byte
	err := m.rows.Batch(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		uk, ok := idx.Get(id)
		if !ok {
			return dberr.ErrNotFound
		}
		indexedKey := m.key(uk, id)
		if err := b.Delete(indexedKey); err != nil {
			return err
		}
		key, err = idx.Deactivate(id)
		if err != nil {
			return err
		}
		if err := storeIndex(b, idx); err != nil {
			return err
		}
		m.observeIndex(idx)
		return nil
	})
	return key, err
}

// ClearInactive drains the inactive list into the free list.
func (m *Map[T]) ClearInactive() error {
	return m.rows.Batch(func(b *bolt.Bucket) error {
		idx, err := loadIndex(b)
		if err != nil {
			return err
		}
		idx.ClearInactive()
		if err := storeIndex(b, idx); err != nil {
			return err
		}
		m.observeIndex(idx)
		return nil
	})
}

// onRetry logs and counts one kv.Retry attempt against this map's column
// family.
func (m *Map[T]) onRetry() {
	cf := m.rows.Name()
	metrics.TransactionRetriesTotal.WithLabelValues(cf).Inc()
	logger := sdlog.WithColumnFamily(cf)
	logger.Warn().Msg("indexedmap: retrying conflicting transaction")
}

// Update verifies the stored value equals old (via IndexedUpdate.Verify),
// applies new to produce the replacement value, and re-keys the row if
// the unique key changes -- atomically with the index update. The verify
// step can observe a concurrent writer's commit, so the whole batch runs
// under kv.Retry.
func (m *Map[T]) Update(id uint32, update IndexedUpdate[T]) error {
	return kv.Retry(m.onRetry, func() error {
		return m.rows.Batch(func(b *bolt.Bucket) error {
			idx, err := loadIndex(b)
			if err != nil {
				return err
			}
			uk, ok := idx.Get(id)
			if !ok {
				return dberr.ErrNotFound
			}
			oldIndexedKey := m.key(uk, id)
			v := b.Get(oldIndexedKey)
			if v == nil {
				return fmt.Errorf("indexedmap: index points to missing row for id %d: %w", id, dberr.ErrCorrupt)
			}
			current, err := m.decode(oldIndexedKey, v)
			if err != nil {
				return err
			}
			if !update.Verify(current) {
				return dberr.ErrConflict
			}
			next := update.Apply(current)
			newKey := next.UniqueKey()
			newIndexedKey := m.key(newKey, id)
			if !bytes.Equal(newIndexedKey, oldIndexedKey) {
				if b.Get(newIndexedKey) != nil {
					return fmt.Errorf("indexedmap: re-key collision: %w", dberr.ErrAlreadyExists)
				}
				if err := b.Delete(oldIndexedKey); err != nil {
					return err
				}
				if err := idx.Rekey(id, newKey); err != nil {
					return err
				}
				if err := storeIndex(b, idx); err != nil {
					return err
				}
			}
			return b.Put(newIndexedKey, next.Value())
		})
	})
}

// Overwrite compare-and-swaps by unique key, for callers that need ID
// stability without an old-value check: it locates the active ID for
// record's unique key (inserting a fresh one if none exists) and replaces
// the stored row in place. Locating the ID and writing the row both run
// inside one kv.Retry attempt.
func (m *Map[T]) Overwrite(record T) (uint32, error) {
	var id uint32
	err := kv.Retry(m.onRetry, func() error {
		return m.rows.Batch(func(b *bolt.Bucket) error {
			idx, err := loadIndex(b)
			if err != nil {
				return err
			}
			uk := record.UniqueKey()
			for i, e := range idx.Entries {
				if e.Kind == keyindex.SlotKey && bytes.Equal(e.Key, uk) {
					id = uint32(i)
					return b.Put(m.key(uk, id), record.Value())
				}
			}
			newID, err := idx.Allocate(uk)
			if err != nil {
				return err
			}
			if err := b.Put(m.key(uk, newID), record.Value()); err != nil {
				return err
			}
			if err := storeIndex(b, idx); err != nil {
				return err
			}
			id = newID
			return nil
		})
	})
	return id, err
}

// IndexedUpdate composes a verify-then-apply step for Map.Update.
type IndexedUpdate[T Record] interface {
	// Verify reports whether stored matches the expected prior state.
	Verify(stored T) bool
	// Apply produces the replacement record from the stored one.
	Apply(stored T) T
}
