// Package network implements the networks indexed table: named groups of
// IP/CIDR entries carrying tag references, swept by the network-tag
// removal cascade. Network names are not globally unique, so rows are
// stored under name-plus-ID keys.
package network

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
)

var bucket = []byte("networks")

// Network is one row: a named group of IP/CIDR entries and the tag IDs
// attached to it.
type Network struct {
	ID          uint32
	Name        string
	Description string
	Networks    []string // IP or CIDR literals; parsing/validation is a caller concern
	TagIDs      []uint32
}

func (n Network) UniqueKey() []byte { return []byte(n.Name) }

func (n Network) Value() []byte {
	var buf []byte
	buf = codec.String(buf, n.Description)
	buf = codec.LE32(buf, uint32(len(n.Networks)))
	for _, addr := range n.Networks {
		buf = codec.String(buf, addr)
	}
	buf = codec.LE32(buf, uint32(len(n.TagIDs)))
	for _, id := range n.TagIDs {
		buf = codec.LE32(buf, id)
	}
	return buf
}

func decode(key, value []byte) (Network, error) {
	// The stored key is the name with the assigned ID appended big-endian.
	if len(key) < 4 {
		return Network{}, fmt.Errorf("network: malformed key: %w", dberr.ErrCorrupt)
	}
	n := Network{
		Name: string(key[:len(key)-4]),
		ID:   codec.DecodeBE32(key[len(key)-4:]),
	}
	buf := value
	n.Description, buf = codec.ReadString(buf)
	nn := codec.DecodeLE32(buf)
	buf = buf[4:]
	n.Networks = make([]string, nn)
	for i := uint32(0); i < nn; i++ {
		n.Networks[i], buf = codec.ReadString(buf)
	}
	nt := codec.DecodeLE32(buf)
	buf = buf[4:]
	n.TagIDs = make([]uint32, nt)
	for i := uint32(0); i < nt; i++ {
		n.TagIDs[i] = codec.DecodeLE32(buf)
		buf = buf[4:]
	}
	return n, nil
}

type removeTagUpdate struct {
	expected Network
	tagID    uint32
}

func (u removeTagUpdate) Verify(stored Network) bool { return stored.Name == u.expected.Name }
func (u removeTagUpdate) Apply(stored Network) Network {
	kept := stored.TagIDs[:0]
	for _, id := range stored.TagIDs {
		if id != u.tagID {
			kept = append(kept, id)
		}
	}
	stored.TagIDs = kept
	return stored
}

// Table is the networks table.
type Table struct {
	m *indexedmap.Map[Network]
}

// Open wraps the networks bucket.
func Open(db *bolt.DB) (*Table, error) {
	m, err := indexedmap.Open[Network](db, bucket, decode, indexedmap.AppendIDKey)
	if err != nil {
		return nil, err
	}
	return &Table{m: m}, nil
}

func (tb *Table) Insert(n Network) (uint32, error) { return tb.m.Insert(n) }
func (tb *Table) GetByID(id uint32) (Network, error) { return tb.m.GetByID(id) }
func (tb *Table) Remove(id uint32) ([]byte, error) { return tb.m.Remove(id) }
func (tb *Table) Count() (int, error) { return tb.m.Count() }

// RemoveTag sweeps every network referencing tagID and drops it from
// their TagIDs list, the cascade run on network-tag removal.
func (tb *Table) RemoveTag(tagID uint32) error {
	var toUpdate []uint32
	err := tb.m.Range(func(id uint32, n Network) (bool, error) {
		for _, t := range n.TagIDs {
			if t == tagID {
				toUpdate = append(toUpdate, id)
				break
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, id := range toUpdate {
		n, err := tb.m.GetByID(id)
		if err != nil {
			continue
		}
		if err := tb.m.Update(id, removeTagUpdate{expected: n, tagID: tagID}); err != nil {
			return err
		}
	}
	return nil
}
