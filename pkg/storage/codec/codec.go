// Package codec holds the small wire-format helpers shared by every
// specialized table: big-endian key composition (so byte order matches
// numeric order) and the optional-field discriminant used inside record
// values.
package codec

import (
	"encoding/binary"
	"math"
)

func f64bits(v float64) uint64    { return math.Float64bits(v) }
func f64FromBits(b uint64) float64 { return math.Float64frombits(b) }

// BE32/BE64 append a big-endian integer to dst and return the result,
// following the conventional append-style encoder signature.
func BE32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func BE64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// BEI64 encodes a signed 64-bit integer (timestamps) by XOR-flipping the
// sign bit, so two's-complement negative values still sort below
// positives in big-endian byte order.
func BEI64(dst []byte, v int64) []byte {
	return BE64(dst, uint64(v)^(1<<63))
}

func DecodeBE32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func DecodeBE64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
func DecodeBEI64(b []byte) int64 { return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)) }

// LE32/LE64 encode little-endian integers for use inside record values.
func LE32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func LE64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func DecodeLE32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func DecodeLE64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// String length-prefixes s with a little-endian uint32 and appends it.
func String(dst []byte, s string) []byte {
	dst = LE32(dst, uint32(len(s)))
	return append(dst, s...)
}

// ReadString reads a length-prefixed string starting at buf[0], returning
// the value and the remaining buffer.
func ReadString(buf []byte) (string, []byte) {
	n := DecodeLE32(buf)
	return string(buf[4 : 4+n]), buf[4+n:]
}

// Bytes length-prefixes b with a little-endian uint32 and appends it.
func Bytes(dst []byte, b []byte) []byte {
	dst = LE32(dst, uint32(len(b)))
	return append(dst, b...)
}

func ReadBytes(buf []byte) ([]byte, []byte) {
	n := DecodeLE32(buf)
	return buf[4 : 4+n], buf[4+n:]
}

// SomeTag/NoneTag are the one-byte Option<T> discriminants.
const (
	NoneTag byte = 0
	SomeTag byte = 1
)

// OptionU32 encodes an optional uint32 as a discriminant byte plus,
// when present, a little-endian payload.
func OptionU32(dst []byte, v *uint32) []byte {
	if v == nil {
		return append(dst, NoneTag)
	}
	dst = append(dst, SomeTag)
	return LE32(dst, *v)
}

func ReadOptionU32(buf []byte) (*uint32, []byte) {
	tag := buf[0]
	buf = buf[1:]
	if tag == NoneTag {
		return nil, buf
	}
	v := DecodeLE32(buf)
	return &v, buf[4:]
}

// OptionString encodes an optional string the same way.
func OptionString(dst []byte, v *string) []byte {
	if v == nil {
		return append(dst, NoneTag)
	}
	dst = append(dst, SomeTag)
	return String(dst, *v)
}

func ReadOptionString(buf []byte) (*string, []byte) {
	tag := buf[0]
	buf = buf[1:]
	if tag == NoneTag {
		return nil, buf
	}
	s, rest := ReadString(buf)
	return &s, rest
}

// OptionF64 encodes an optional float64.
func OptionF64(dst []byte, v *float64) []byte {
	if v == nil {
		return append(dst, NoneTag)
	}
	dst = append(dst, SomeTag)
	return LE64(dst, f64bits(*v))
}

func ReadOptionF64(buf []byte) (*float64, []byte) {
	tag := buf[0]
	buf = buf[1:]
	if tag == NoneTag {
		return nil, buf
	}
	v := f64FromBits(DecodeLE64(buf))
	return &v, buf[8:]
}
