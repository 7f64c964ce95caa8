// Package keyindex implements the free-list/tombstone-list structure
// shared by indexedmap and indexedset: a dense sequence of integer-ID
// slots, each either an active key, a free-list link, or an inactive
// (tombstoned) link.
package keyindex

import (
	"encoding/binary"
	"fmt"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

// None is the sentinel "no next slot" value for free/inactive list links.
// The assigned ID never exceeds 2^32-2, so this is never a valid ID.
const None uint32 = 0xFFFFFFFF

// SlotKind tags one entry in the KeyIndex.
type SlotKind uint8

const (
	SlotKey      SlotKind = 0 // active: holds the record's unique key
	SlotFree     SlotKind = 1 // free-list link: points to the next free ID
	SlotInactive SlotKind = 2 // tombstone link: points to the next inactive ID (or None)
)

// Slot is one entry in a KeyIndex, indexed by position (the ID).
type Slot struct {
	Kind SlotKind
	Key  []byte // valid when Kind == SlotKey
	Link uint32 // valid when Kind == SlotFree or SlotInactive
}

// KeyIndex is the structure stored at the reserved index key of an
// indexed column family (indexedmap) or at a caller-chosen key
// (indexedset).
type KeyIndex struct {
	Entries   []Slot
	Available uint32 // head of the free list
	Inactive  uint32 // head of the inactive (tombstoned) list
}

// New returns an empty KeyIndex.
func New() *KeyIndex {
	return &KeyIndex{Available: None, Inactive: None}
}

// FreeLen returns the length of the free list.
func (idx *KeyIndex) FreeLen() int {
	n := 0
	for head := idx.Available; head != None; head = idx.Entries[head].Link {
		n++
	}
	return n
}

// Count returns the number of active (SlotKey) entries.
func (idx *KeyIndex) Count() int {
	n := 0
	for _, e := range idx.Entries {
		if e.Kind == SlotKey {
			n++
		}
	}
	return n
}

// Allocate reuses a free slot if one exists, else appends a new one.
// Returns the assigned ID.
func (idx *KeyIndex) Allocate(key []byte) (uint32, error) {
	if idx.Available != None {
		id := idx.Available
		slot := &idx.Entries[id]
		idx.Available = slot.Link
		*slot = Slot{Kind: SlotKey, Key: key}
		return id, nil
	}
	id := uint32(len(idx.Entries))
	if id >= None {
		return 0, fmt.Errorf("keyindex: index exhausted: %w", dberr.ErrInvalidInput)
	}
	idx.Entries = append(idx.Entries, Slot{Kind: SlotKey, Key: key})
	return id, nil
}

// Get returns the active key stored at id, if any.
func (idx *KeyIndex) Get(id uint32) ([]byte, bool) {
	if int(id) >= len(idx.Entries) {
		return nil, false
	}
	e := idx.Entries[id]
	if e.Kind != SlotKey {
		return nil, false
	}
	return e.Key, true
}

// Remove frees id onto the free list and returns the key that was stored
// there.
func (idx *KeyIndex) Remove(id uint32) ([]byte, error) {
	if int(id) >= len(idx.Entries) || idx.Entries[id].Kind != SlotKey {
		return nil, dberr.ErrNotFound
	}
	key := idx.Entries[id].Key
	idx.Entries[id] = Slot{Kind: SlotFree, Link: idx.Available}
	idx.Available = id
	return key, nil
}

// Deactivate tombstones id: it becomes Inactive(prevInactiveHead) and is
// not recycled until ClearInactive runs.
func (idx *KeyIndex) Deactivate(id uint32) ([]byte, error) {
	if int(id) >= len(idx.Entries) || idx.Entries[id].Kind != SlotKey {
		return nil, dberr.ErrNotFound
	}
	key := idx.Entries[id].Key
	idx.Entries[id] = Slot{Kind: SlotInactive, Link: idx.Inactive}
	idx.Inactive = id
	return key, nil
}

// ClearInactive drains the inactive list into the free list.
func (idx *KeyIndex) ClearInactive() {
	head := idx.Inactive
	for head != None {
		next := idx.Entries[head].Link
		idx.Entries[head] = Slot{Kind: SlotFree, Link: idx.Available}
		idx.Available = head
		head = next
	}
	idx.Inactive = None
}

// Rekey replaces the stored key for an active id in place, preserving the
// ID.
func (idx *KeyIndex) Rekey(id uint32, newKey []byte) error {
	if int(id) >= len(idx.Entries) || idx.Entries[id].Kind != SlotKey {
		return dberr.ErrNotFound
	}
	idx.Entries[id].Key = newKey
	return nil
}

// Encode serializes the KeyIndex to its canonical binary wire format:
//
//	available  uint32 LE
//	inactive   uint32 LE
//	count      uint32 LE
//	count × { kind byte, payload }
//	  SlotKey:      keyLen uint32 LE, key bytes
//	  SlotFree:     link uint32 LE
//	  SlotInactive: link uint32 LE
func (idx *KeyIndex) Encode() []byte {
	size := 12
	for _, e := range idx.Entries {
		size++
		if e.Kind == SlotKey {
			size += 4 + len(e.Key)
		} else {
			size += 4
		}
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], idx.Available)
	binary.LittleEndian.PutUint32(buf[4:8], idx.Inactive)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(idx.Entries)))
	off := 12
	for _, e := range idx.Entries {
		buf[off] = byte(e.Kind)
		off++
		switch e.Kind {
		case SlotKey:
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(e.Key)))
			off += 4
			copy(buf[off:], e.Key)
			off += len(e.Key)
		default:
			binary.LittleEndian.PutUint32(buf[off:off+4], e.Link)
			off += 4
		}
	}
	return buf
}

// Decode parses the wire format written by Encode.
func Decode(buf []byte) (*KeyIndex, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("keyindex: truncated index header: %w", dberr.ErrCorrupt)
	}
	idx := &KeyIndex{
		Available: binary.LittleEndian.Uint32(buf[0:4]),
		Inactive:  binary.LittleEndian.Uint32(buf[4:8]),
	}
	count := binary.LittleEndian.Uint32(buf[8:12])
	idx.Entries = make([]Slot, 0, count)
	off := 12
	for i := uint32(0); i < count; i++ {
		if off >= len(buf) {
			return nil, fmt.Errorf("keyindex: truncated slot %d: %w", i, dberr.ErrCorrupt)
		}
		kind := SlotKind(buf[off])
		off++
		switch kind {
		case SlotKey:
			if off+4 > len(buf) {
				return nil, fmt.Errorf("keyindex: truncated key length at slot %d: %w", i, dberr.ErrCorrupt)
			}
			klen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
			if off+klen > len(buf) {
				return nil, fmt.Errorf("keyindex: truncated key bytes at slot %d: %w", i, dberr.ErrCorrupt)
			}
			key := append([]byte(nil), buf[off:off+klen]...)
			off += klen
			idx.Entries = append(idx.Entries, Slot{Kind: SlotKey, Key: key})
		case SlotFree, SlotInactive:
			if off+4 > len(buf) {
				return nil, fmt.Errorf("keyindex: truncated link at slot %d: %w", i, dberr.ErrCorrupt)
			}
			link := binary.LittleEndian.Uint32(buf[off : off+4])
			off += 4
			idx.Entries = append(idx.Entries, Slot{Kind: kind, Link: link})
		default:
			return nil, fmt.Errorf("keyindex: unknown slot kind %d at %d: %w", kind, i, dberr.ErrCorrupt)
		}
	}
	return idx, nil
}
