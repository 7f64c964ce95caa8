// Package eventlog is an append-only store keyed by a 128-bit
// (time, kind, nonce) composite so concurrent events sharing a timestamp
// and kind still get distinct, time-ordered keys via linear nonce probing.
package eventlog

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
)

var bucket = []byte("events")

// ErrTooManyCollisions is returned by Put when every nonce in the
// 32-bit space is already taken for a given (time, kind) pair.
var ErrTooManyCollisions = errors.New("too many events with the same timestamp")

// Event is one record to append. Value is the caller's own serialized
// payload; the event log treats it as an opaque blob.
type Event struct {
	Time  int64
	Kind  uint32
	Value []byte
}

// Key is the 16-byte composite key: time (bits 127..64, signed),
// kind (bits 63..32), nonce (bits 31..0), all big-endian.
type Key [16]byte

func encodeKey(t int64, kind, nonce uint32) Key {
	var k Key
	binary.BigEndian.PutUint64(k[0:8], uint64(t)^(1<<63))
	binary.BigEndian.PutUint32(k[8:12], kind)
	binary.BigEndian.PutUint32(k[12:16], nonce)
	return k
}

func decodeKey(b []byte) (time int64, kind uint32, nonce uint32, err error) {
	if len(b) != 16 {
		return 0, 0, 0, fmt.Errorf("eventlog: key is %d bytes, want 16: %w", len(b), dberr.ErrCorrupt)
	}
	time = int64(binary.BigEndian.Uint64(b[0:8]) ^ (1 << 63))
	kind = binary.BigEndian.Uint32(b[8:12])
	nonce = binary.BigEndian.Uint32(b[12:16])
	return time, kind, nonce, nil
}

func randomNonce() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Log is the event log table.
type Log struct {
	rows *kv.Map
}

// Open wraps the events bucket.
func Open(db *bolt.DB) (*Log, error) {
	rows, err := kv.Open(db, bucket)
	if err != nil {
		return nil, err
	}
	return &Log{rows: rows}, nil
}

// Put stores ev, trying nonce=0 first; on collision it seeds a random
// nonce and linearly probes until an empty slot is found. If probing
// wraps all the way back to the seed, the (time, kind) pair is full.
func (l *Log) Put(ev Event) (Key, error) {
	k := encodeKey(ev.Time, ev.Kind, 0)
	err := l.rows.Insert(k[:], ev.Value)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, dberr.ErrAlreadyExists) {
		return Key{}, err
	}

	seed := randomNonce()
	nonce := seed
	for {
		k = encodeKey(ev.Time, ev.Kind, nonce)
		err := l.rows.Insert(k[:], ev.Value)
		if err == nil {
			return k, nil
		}
		if !errors.Is(err, dberr.ErrAlreadyExists) {
			return Key{}, err
		}
		nonce++
		if nonce == seed {
			return Key{}, ErrTooManyCollisions
		}
	}
}

// Get reads the raw value at an exact key.
func (l *Log) Get(k Key) ([]byte, bool, error) {
	return l.rows.Get(k[:])
}

// Decoded is one event yielded by Iterate: either a successfully decoded
// (time, kind, value) triple, or a non-nil Err describing a corrupt key
// (values are opaque and never decoded); iteration does not stop at a
// bad record.
type Decoded struct {
	Time  int64
	Kind  uint32
	Nonce uint32
	Value []byte
	Err   error
}

// InvalidKeyError wraps a key-decode failure.
type InvalidKeyError struct{ Err error }

func (e *InvalidKeyError) Error() string { return "eventlog: invalid key: " + e.Err.Error() }
func (e *InvalidKeyError) Unwrap() error { return e.Err }

// Iterate walks every stored event in ascending key order (time, then
// kind, then nonce). A decode failure yields a Decoded with a non-nil
// Err instead of aborting the walk.
func (l *Log) Iterate(walk func(Decoded) bool) error {
	return l.rows.IterForward(func(p kv.Pair) bool {
		t, kind, nonce, err := decodeKey(p.Key)
		if err != nil {
			return walk(Decoded{Err: &InvalidKeyError{Err: err}})
		}
		return walk(Decoded{Time: t, Kind: kind, Nonce: nonce, Value: p.Value})
	})
}
