package indexedset

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/keyindex"
)

// Codec converts a member value to and from the bytes stored in a Slot.
type Codec[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) (T, error)
}

// Set is a generic indexed set stored at one key within a bucket.
type Set[T any] struct {
	db         *bolt.DB
	bucket     []byte
	storageKey []byte
	codec      Codec[T]
}

// Open wraps storageKey inside bucket as an indexed set.
func Open[T any](db *bolt.DB, bucket, storageKey []byte, codec Codec[T]) (*Set[T], error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Set[T]{db: db, bucket: bucket, storageKey: storageKey, codec: codec}, nil
}

func (s *Set[T]) load(b *bolt.Bucket) (*keyindex.KeyIndex, error) {
	raw := b.Get(s.storageKey)
	if raw == nil {
		return keyindex.New(), nil
	}
	return keyindex.Decode(raw)
}

func (s *Set[T]) store(b *bolt.Bucket, idx *keyindex.KeyIndex) error {
	return b.Put(s.storageKey, idx.Encode())
}

// Count returns the number of active members.
func (s *Set[T]) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		idx, err := s.load(tx.Bucket(s.bucket))
		if err != nil {
			return err
		}
		n = idx.Count()
		return nil
	})
	return n, err
}

// Insert adds value, returning its assigned ID.
func (s *Set[T]) Insert(value T) (uint32, error) {
	var id uint32
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		idx, err := s.load(b)
		if err != nil {
			return err
		}
		id, err = idx.Allocate(s.codec.Encode(value))
		if err != nil {
			return err
		}
		return s.store(b, idx)
	})
	return id, err
}

// GetByID returns the member stored at id.
func (s *Set[T]) GetByID(id uint32) (T, error) {
	var zero T
	var result T
	err := s.db.View(func(tx *bolt.Tx) error {
		idx, err := s.load(tx.Bucket(s.bucket))
		if err != nil {
			return err
		}
		raw, ok := idx.Get(id)
		if !ok {
			return dberr.ErrNotFound
		}
		result, err = s.codec.Decode(raw)
		return err
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Remove frees id, returning the member that was stored there.
func (s *Set[T]) Remove(id uint32) (T, error) {
	var zero T
	var result T
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		idx, err := s.load(b)
		if err != nil {
			return err
		}
		raw, err := idx.Remove(id)
		if err != nil {
			return err
		}
		result, err = s.codec.Decode(raw)
		if err != nil {
			return err
		}
		return s.store(b, idx)
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Deactivate tombstones id, returning the member that was stored there.
func (s *Set[T]) Deactivate(id uint32) (T, error) {
	var zero T
	var result T
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		idx, err := s.load(b)
		if err != nil {
			return err
		}
		raw, err := idx.Deactivate(id)
		if err != nil {
			return err
		}
		result, err = s.codec.Decode(raw)
		if err != nil {
			return err
		}
		return s.store(b, idx)
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Update replaces the member stored at id in place, preserving the ID.
func (s *Set[T]) Update(id uint32, value T) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		idx, err := s.load(b)
		if err != nil {
			return err
		}
		if err := idx.Rekey(id, s.codec.Encode(value)); err != nil {
			return err
		}
		return s.store(b, idx)
	})
}

// ClearInactive drains the inactive list into the free list.
func (s *Set[T]) ClearInactive() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		idx, err := s.load(b)
		if err != nil {
			return err
		}
		idx.ClearInactive()
		return s.store(b, idx)
	})
}

// Items returns every active (id, value) pair in ID order.
func (s *Set[T]) Items() ([]uint32, []T, error) {
	var ids []uint32
	var values []T
	err := s.db.View(func(tx *bolt.Tx) error {
		idx, err := s.load(tx.Bucket(s.bucket))
		if err != nil {
			return err
		}
		for id, e := range idx.Entries {
			if e.Kind != keyindex.SlotKey {
				continue
			}
			v, err := s.codec.Decode(e.Key)
			if err != nil {
				return err
			}
			ids = append(ids, uint32(id))
			values = append(values, v)
		}
		return nil
	})
	return ids, values, err
}
