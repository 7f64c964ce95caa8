// Package cluster implements the cluster table: keyed by
// (model_id, cluster_id), with batched merge-on-update and
// size-descending cursor pagination.
package cluster

import (
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("cluster")

// Cluster is one row of the cluster table.
type Cluster struct {
	ModelID              uint32
	ClusterID            uint32
	CategoryID           uint32
	DetectorID           uint32
	EventIDs             []uint64 // sorted descending, parallel to Sensors
	Sensors              []string
	Labels               *[]string
	QualifierID          uint32
	StatusID             uint32
	Signature            string
	Size                 uint64
	Score                *float64
	LastModificationTime int64
}

func key(model, clusterID uint32) []byte {
	k := codec.BE32(nil, model)
	return codec.BE32(k, clusterID)
}

func decode(k, v []byte) (Cluster, error) {
	if len(k) != 8 {
		return Cluster{}, fmt.Errorf("cluster: malformed key: %w", dberr.ErrCorrupt)
	}
	c := Cluster{
		ModelID:   codec.DecodeBE32(k[0:4]),
		ClusterID: codec.DecodeBE32(k[4:8]),
	}
	buf := v
	c.CategoryID = codec.DecodeLE32(buf)
	buf = buf[4:]
	c.DetectorID = codec.DecodeLE32(buf)
	buf = buf[4:]
	n := codec.DecodeLE32(buf)
	buf = buf[4:]
	c.EventIDs = make([]uint64, n)
	c.Sensors = make([]string, n)
	for i := uint32(0); i < n; i++ {
		c.EventIDs[i] = codec.DecodeLE64(buf)
		buf = buf[8:]
		c.Sensors[i], buf = codec.ReadString(buf)
	}
	var hasLabels bool
	tag := buf[0]
	buf = buf[1:]
	hasLabels = tag == codec.SomeTag
	if hasLabels {
		ln := codec.DecodeLE32(buf)
		buf = buf[4:]
		labels := make([]string, ln)
		for i := uint32(0); i < ln; i++ {
			labels[i], buf = codec.ReadString(buf)
		}
		c.Labels = &labels
	}
	c.QualifierID = codec.DecodeLE32(buf)
	buf = buf[4:]
	c.StatusID = codec.DecodeLE32(buf)
	buf = buf[4:]
	c.Signature, buf = codec.ReadString(buf)
	c.Size = codec.DecodeLE64(buf)
	buf = buf[8:]
	c.Score, buf = codec.ReadOptionF64(buf)
	c.LastModificationTime = int64(codec.DecodeLE64(buf))
	return c, nil
}

func (c Cluster) encode() []byte {
	var buf []byte
	buf = codec.LE32(buf, c.CategoryID)
	buf = codec.LE32(buf, c.DetectorID)
	buf = codec.LE32(buf, uint32(len(c.EventIDs)))
	for i, eid := range c.EventIDs {
		buf = codec.LE64(buf, eid)
		buf = codec.String(buf, c.Sensors[i])
	}
	if c.Labels == nil {
		buf = append(buf, codec.NoneTag)
	} else {
		buf = append(buf, codec.SomeTag)
		buf = codec.LE32(buf, uint32(len(*c.Labels)))
		for _, l := range *c.Labels {
			buf = codec.String(buf, l)
		}
	}
	buf = codec.LE32(buf, c.QualifierID)
	buf = codec.LE32(buf, c.StatusID)
	buf = codec.String(buf, c.Signature)
	buf = codec.LE64(buf, c.Size)
	buf = codec.OptionF64(buf, c.Score)
	buf = codec.LE64(buf, uint64(c.LastModificationTime))
	return buf
}

// Table is the cluster table.
type Table struct {
	t   *table.Table[Cluster]
	now func() int64
}

// Open wraps the cluster bucket. now supplies the clock used to stamp
// LastModificationTime (tests inject a fixed clock).
func Open(db *bolt.DB, now func() int64) (*Table, error) {
	t, err := table.Open[Cluster](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t, now: now}, nil
}

// Get reads one cluster by (model, id).
func (tb *Table) Get(model, id uint32) (Cluster, bool, error) {
	return tb.t.Get(key(model, id))
}

// DeleteAllFor removes every cluster belonging to model, used by the
// store facade's model-deletion sweep. It returns the number of rows
// deleted.
func (tb *Table) DeleteAllFor(model uint32) (int, error) {
	var keys [][]byte
	err := tb.t.PrefixIter(codec.BE32(nil, model), kv.Forward, func(c Cluster) bool {
		keys = append(keys, key(c.ModelID, c.ClusterID))
		return true
	})
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := tb.t.Delete(k); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

// CountClusters prefix-iterates model and filters by the optional sets.
func (tb *Table) CountClusters(model uint32, categories, detectors, qualifiers, statuses []uint32) (int, error) {
	n := 0
	err := tb.t.PrefixIter(codec.BE32(nil, model), kv.Forward, func(c Cluster) bool {
		if matches(c, categories, detectors, qualifiers, statuses) {
			n++
		}
		return true
	})
	return n, err
}

func matches(c Cluster, categories, detectors, qualifiers, statuses []uint32) bool {
	return inSetOrEmpty(c.CategoryID, categories) &&
		inSetOrEmpty(c.DetectorID, detectors) &&
		inSetOrEmpty(c.QualifierID, qualifiers) &&
		inSetOrEmpty(c.StatusID, statuses)
}

func inSetOrEmpty(v uint32, set []uint32) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// UpdateCluster patches category/qualifier/status on an existing cluster.
// At least one field is required.
func (tb *Table) UpdateCluster(model, id uint32, category, qualifier, status *uint32) error {
	if category == nil && qualifier == nil && status == nil {
		return fmt.Errorf("cluster: update_cluster requires at least one field: %w", dberr.ErrInvalidInput)
	}
	c, ok, err := tb.Get(model, id)
	if err != nil {
		return err
	}
	if !ok {
		return dberr.ErrNotFound
	}
	if category != nil {
		c.CategoryID = *category
	}
	if qualifier != nil {
		c.QualifierID = *qualifier
	}
	if status != nil {
		c.StatusID = *status
	}
	c.LastModificationTime = tb.now()
	return tb.t.Put(key(model, id), c.encode())
}

// Update is one incoming cluster observation to merge via UpdateClusters.
type Update struct {
	ClusterID  uint32
	DetectorID uint32
	EventIDs   []uint64
	Sensors    []string
	StatusID   uint32
	Signature  string
	Size       uint64
	Labels     *[]string
	Score      *float64
}

// UpdateClusters batches updates into model, merging each into any
// existing cluster or inserting a new one with category=1 ("uncategorized"
// by table convention) and qualifier=1, truncating the merged event_id
// list to cap entries sorted by event_id descending.
func (tb *Table) UpdateClusters(updates []Update, model uint32, capSize int) error {
	for _, u := range updates {
		existing, ok, err := tb.Get(model, u.ClusterID)
		if err != nil {
			return err
		}
		var merged Cluster
		if !ok {
			merged = Cluster{
				ModelID:     model,
				ClusterID:   u.ClusterID,
				CategoryID:  1,
				QualifierID: 1,
			}
		} else {
			merged = existing
		}
		merged.DetectorID = u.DetectorID
		type pair struct {
			id     uint64
			sensor string
		}
		pairs := make([]pair, 0, len(merged.EventIDs)+len(u.EventIDs))
		for i, id := range merged.EventIDs {
			pairs = append(pairs, pair{id: id, sensor: merged.Sensors[i]})
		}
		for i, id := range u.EventIDs {
			pairs = append(pairs, pair{id: id, sensor: u.Sensors[i]})
		}
		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].id > pairs[j].id })
		seen := make(map[uint64]bool, len(pairs))
		deduped := pairs[:0]
		for _, p := range pairs {
			if seen[p.id] {
				continue
			}
			seen[p.id] = true
			deduped = append(deduped, p)
		}
		if len(deduped) > capSize {
			deduped = deduped[:capSize]
		}
		merged.EventIDs = make([]uint64, len(deduped))
		merged.Sensors = make([]string, len(deduped))
		for i, p := range deduped {
			merged.EventIDs[i] = p.id
			merged.Sensors[i] = p.sensor
		}
		merged.StatusID = u.StatusID
		merged.Signature = u.Signature
		merged.Size += u.Size
		if u.Labels != nil {
			merged.Labels = u.Labels
		}
		if u.Score != nil {
			merged.Score = u.Score
		}
		merged.LastModificationTime = tb.now()

		if err := tb.t.Put(key(model, u.ClusterID), merged.encode()); err != nil {
			return err
		}
	}
	return nil
}

// Cursor is the pagination boundary for LoadClusters: (size, id).
type Cursor struct {
	Size uint64
	ID   uint32
}

// LoadClusters returns a page of clusters for model, ordered by size and
// then cluster id, both descending. after/before are strict exclusive boundaries: after drops entries with
// size > after.Size, or size == after.Size && id >= after.ID; before is
// symmetric on the low side.
// isFirst=true walks from the head in descending order; otherwise the
// tail is taken, which is already a descending suffix of the sorted slice
// and is returned as-is.
func (tb *Table) LoadClusters(model uint32, categories, detectors, qualifiers, statuses []uint32, after, before *Cursor, isFirst bool, limit int) ([]Cluster, error) {
	var all []Cluster
	err := tb.t.PrefixIter(codec.BE32(nil, model), kv.Forward, func(c Cluster) bool {
		if matches(c, categories, detectors, qualifiers, statuses) {
			all = append(all, c)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Size != all[j].Size {
			return all[i].Size > all[j].Size
		}
		return all[i].ClusterID > all[j].ClusterID
	})

	filtered := all[:0]
	for _, c := range all {
		if after != nil && (c.Size > after.Size || (c.Size == after.Size && c.ClusterID >= after.ID)) {
			continue
		}
		if before != nil && (c.Size < before.Size || (c.Size == before.Size && c.ClusterID <= before.ID)) {
			continue
		}
		filtered = append(filtered, c)
	}

	if isFirst {
		if len(filtered) > limit {
			filtered = filtered[:limit]
		}
		return filtered, nil
	}

	start := 0
	if len(filtered) > limit {
		start = len(filtered) - limit
	}
	return filtered[start:], nil
}
