package eventlog

import (
	"sort"

	"github.com/quietloop/sentineldb/pkg/storage/codec"
)

// Envelope is a convenience payload shape for Event.Value: source and
// destination endpoints plus a free-form field bag. Callers that need a
// structured payload without committing to a kind-specific format encode
// one of these; the log itself never interprets the value.
type Envelope struct {
	Source      string
	Destination string
	Fields      map[string][]byte
}

// EncodeEnvelope serializes env to the bytes stored as an Event's Value.
func EncodeEnvelope(env Envelope) []byte {
	var buf []byte
	buf = codec.String(buf, env.Source)
	buf = codec.String(buf, env.Destination)
	buf = codec.LE32(buf, uint32(len(env.Fields)))
	keys := make([]string, 0, len(env.Fields))
	for k := range env.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = codec.String(buf, k)
		buf = codec.Bytes(buf, env.Fields[k])
	}
	return buf
}

// DecodeEnvelope reconstructs an Envelope from an Event's Value.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	buf := raw
	env.Source, buf = codec.ReadString(buf)
	env.Destination, buf = codec.ReadString(buf)
	n := codec.DecodeLE32(buf)
	buf = buf[4:]
	env.Fields = make(map[string][]byte, n)
	for i := uint32(0); i < n; i++ {
		var k string
		var v []byte
		k, buf = codec.ReadString(buf)
		v, buf = codec.ReadBytes(buf)
		env.Fields[k] = v
	}
	return env, nil
}
