package node

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var agentBucket = []byte("agents")

// Kind is one of the three logical agents a node can run.
type Kind string

const (
	KindPiglet     Kind = "piglet"
	KindHog        Kind = "hog"
	KindReconverge Kind = "reconverge"
)

// Settings is the TOML-serialized configuration shared by every agent
// kind: a small, caller-extensible key/value bag rather than one struct
// per kind, since this module only needs to round-trip the blob, not
// interpret it.
type Settings struct {
	GigantoIP   string            `toml:"giganto_ip,omitempty"`
	GigantoPort uint16            `toml:"giganto_port,omitempty"`
	Sensors     []string          `toml:"sensors,omitempty"`
	Extra       map[string]string `toml:"extra,omitempty"`
}

// EncodeSettings marshals s to its TOML wire form.
func EncodeSettings(s Settings) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("node: encode agent settings: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSettings parses a TOML settings blob.
func DecodeSettings(raw []byte) (Settings, error) {
	var s Settings
	if _, err := toml.Decode(string(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("node: decode agent settings: %w: %w", err, dberr.ErrCorrupt)
	}
	return s, nil
}

// Agent is one row of the agents table, keyed by (node_id, name).
type Agent struct {
	NodeID uint32
	Name   Kind
	Config []byte // TOML blob, active settings
	Draft  []byte // TOML blob, unpublished settings draft
}

func agentKey(nodeID uint32, name Kind) []byte {
	k := codec.BE32(nil, nodeID)
	return append(k, name...)
}

func decodeAgent(k, v []byte) (Agent, error) {
	if len(k) < 4 {
		return Agent{}, fmt.Errorf("node: malformed agent key: %w", dberr.ErrCorrupt)
	}
	a := Agent{NodeID: codec.DecodeBE32(k[0:4]), Name: Kind(k[4:])}
	buf := v
	a.Config, buf = codec.ReadBytes(buf)
	a.Draft, _ = codec.ReadBytes(buf)
	return a, nil
}

func (a Agent) encode() []byte {
	var buf []byte
	buf = codec.Bytes(buf, a.Config)
	buf = codec.Bytes(buf, a.Draft)
	return buf
}

type agentTable struct {
	t *table.Table[Agent]
}

func openAgents(db *bolt.DB) (*agentTable, error) {
	t, err := table.Open[Agent](db, agentBucket, decodeAgent)
	if err != nil {
		return nil, err
	}
	return &agentTable{t: t}, nil
}

func (a *agentTable) get(nodeID uint32, name Kind) (Agent, bool, error) {
	return a.t.Get(agentKey(nodeID, name))
}

func (a *agentTable) put(agent Agent) error {
	return a.t.Put(agentKey(agent.NodeID, agent.Name), agent.encode())
}

func (a *agentTable) remove(nodeID uint32, name Kind) error {
	return a.t.Delete(agentKey(nodeID, name))
}

func (a *agentTable) removeAllFor(nodeID uint32) error {
	prefix := codec.BE32(nil, nodeID)
	var keys [][]byte
	err := a.t.PrefixIter(prefix, kv.Forward, func(ag Agent) bool {
		keys = append(keys, agentKey(ag.NodeID, ag.Name))
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := a.t.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
