// Package node implements the Node and Agent tables: a node owns up to
// three logical agents (piglet, hog, reconverge) whose TOML settings
// blobs live in a separate agents table keyed by (node_id, name).
// Put/Update/Remove fan out to the agent table outside a single KV
// transaction; partial failures surface as InvalidAgents on read rather
// than blocking the call.
package node

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/indexedmap"
)

var nodeBucket = []byte("nodes")

// agentKinds is the fixed set of agents a node can host, in the order
// settings fan-out probes them.
var agentKinds = []Kind{KindPiglet, KindHog, KindReconverge}

// InnerNode is the row stored in the nodes bucket: just the node's
// identity, its agents' names, and shared settings -- the agents'
// settings blobs themselves live in the agents table.
type InnerNode struct {
	Name         string
	NameDraft    *string
	CustomerID   uint32
	Hostname     string
	AgentNames   []Kind
	CreationTime int64
}

func (n InnerNode) UniqueKey() []byte { return []byte(n.Name) }

func (n InnerNode) Value() []byte {
	var buf []byte
	buf = codec.OptionString(buf, n.NameDraft)
	buf = codec.LE32(buf, n.CustomerID)
	buf = codec.String(buf, n.Hostname)
	buf = codec.LE32(buf, uint32(len(n.AgentNames)))
	for _, k := range n.AgentNames {
		buf = codec.String(buf, string(k))
	}
	buf = codec.LE64(buf, uint64(n.CreationTime))
	return buf
}

func decodeInner(key, value []byte) (InnerNode, error) {
	n := InnerNode{Name: string(key)}
	buf := value
	n.NameDraft, buf = codec.ReadOptionString(buf)
	n.CustomerID = codec.DecodeLE32(buf)
	buf = buf[4:]
	n.Hostname, buf = codec.ReadString(buf)
	cnt := codec.DecodeLE32(buf)
	buf = buf[4:]
	n.AgentNames = make([]Kind, cnt)
	for i := uint32(0); i < cnt; i++ {
		var s string
		s, buf = codec.ReadString(buf)
		n.AgentNames[i] = Kind(s)
	}
	n.CreationTime = int64(codec.DecodeLE64(buf))
	return n, nil
}

// Node is the fully materialized, read-side view: InnerNode plus the
// fanned-out agent configs and the names of any agents the node lists
// that failed to load.
type Node struct {
	ID            uint32
	InnerNode     InnerNode
	Agents        []Agent
	InvalidAgents []Kind
}

// Table is the node table, plus the agent table it fans out to.
type Table struct {
	nodes  *indexedmap.Map[InnerNode]
	agents *agentTable
}

// Open wraps the nodes and agents buckets.
func Open(db *bolt.DB) (*Table, error) {
	nodes, err := indexedmap.Open[InnerNode](db, nodeBucket, decodeInner, nil)
	if err != nil {
		return nil, err
	}
	agents, err := openAgents(db)
	if err != nil {
		return nil, err
	}
	return &Table{nodes: nodes, agents: agents}, nil
}

// Count returns the number of nodes.
func (tb *Table) Count() (int, error) { return tb.nodes.Count() }

// GetByID materializes the node at id, fanning out into the agent table
// for each name in InnerNode.AgentNames. A missing agent row is recorded
// in InvalidAgents rather than failing the whole read.
func (tb *Table) GetByID(id uint32) (Node, error) {
	inner, err := tb.nodes.GetByID(id)
	if err != nil {
		return Node{}, err
	}
	out := Node{ID: id, InnerNode: inner}
	for _, name := range inner.AgentNames {
		agent, ok, err := tb.agents.get(id, name)
		if err != nil {
			return Node{}, err
		}
		if !ok {
			out.InvalidAgents = append(out.InvalidAgents, name)
			continue
		}
		out.Agents = append(out.Agents, agent)
	}
	return out, nil
}

// Put inserts a new node row and writes an agents-table row for each
// supplied agent config, returning the assigned ID. The two writes are
// not transactional with each other; a crash in between leaves agents
// the next read reports as invalid.
func (tb *Table) Put(inner InnerNode, configs map[Kind]Settings) (uint32, error) {
	id, err := tb.nodes.Insert(inner)
	if err != nil {
		return 0, err
	}
	if err := tb.putAgents(id, configs); err != nil {
		return id, err
	}
	return id, nil
}

func (tb *Table) putAgents(id uint32, configs map[Kind]Settings) error {
	for _, kind := range agentKinds {
		settings, ok := configs[kind]
		if !ok {
			continue
		}
		blob, err := EncodeSettings(settings)
		if err != nil {
			return err
		}
		if err := tb.agents.put(Agent{NodeID: id, Name: kind, Config: blob}); err != nil {
			return err
		}
	}
	return nil
}

type innerUpdate struct {
	expected InnerNode
	next     InnerNode
}

func (u innerUpdate) Verify(stored InnerNode) bool { return stored.Name == u.expected.Name }
func (u innerUpdate) Apply(stored InnerNode) InnerNode {
	next := u.next
	next.Name = stored.Name
	return next
}

// Update replaces the node row at id and re-fans-out any supplied agent
// configs.
func (tb *Table) Update(id uint32, expected, next InnerNode, configs map[Kind]Settings) error {
	if err := tb.nodes.Update(id, innerUpdate{expected: expected, next: next}); err != nil {
		return err
	}
	return tb.putAgents(id, configs)
}

// Remove deletes the node row and every agent row under it, returning the
// node's name.
func (tb *Table) Remove(id uint32) ([]byte, error) {
	name, err := tb.nodes.Remove(id)
	if err != nil {
		return nil, err
	}
	if err := tb.agents.removeAllFor(id); err != nil {
		return name, err
	}
	return name, nil
}
