// Package columnstats implements the column-statistics table: keyed by
// (cluster_id, batch_ts, column_index, model_id) so both (cluster, batch)
// and (cluster) prefix scans are possible, plus the top-N/IP aggregation
// helpers built on top of it.
package columnstats

import (
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/storage/codec"
	"github.com/quietloop/sentineldb/pkg/storage/kv"
	"github.com/quietloop/sentineldb/pkg/storage/table"
)

var bucket = []byte("column_stats")

// ColumnStatistics is one value-count histogram for one column in one
// (cluster, batch) bucket.
type ColumnStatistics struct {
	ColumnIndex uint32
	ModelID     uint32
	ColumnType  uint8 // mode, e.g. TypeIPAddress
	Counts      map[string]uint64
}

const TypeIPAddress uint8 = 1

// Row is one stored column-statistics row, keyed by its composite key.
type Row struct {
	ClusterID   uint32
	BatchTS     int64
	ColumnIndex uint32
	ModelID     uint32
	Stats       ColumnStatistics
}

func key(clusterID uint32, batchTS int64, columnIndex, modelID uint32) []byte {
	k := codec.BE32(nil, clusterID)
	k = codec.BEI64(k, batchTS)
	k = codec.BE32(k, columnIndex)
	return codec.BE32(k, modelID)
}

func decode(k, v []byte) (Row, error) {
	if len(k) != 20 {
		return Row{}, fmt.Errorf("columnstats: malformed key: %w", dberr.ErrCorrupt)
	}
	r := Row{
		ClusterID:   codec.DecodeBE32(k[0:4]),
		BatchTS:     codec.DecodeBEI64(k[4:12]),
		ColumnIndex: codec.DecodeBE32(k[12:16]),
		ModelID:     codec.DecodeBE32(k[16:20]),
	}
	buf := v
	r.Stats.ColumnIndex = r.ColumnIndex
	r.Stats.ModelID = r.ModelID
	r.Stats.ColumnType = buf[0]
	buf = buf[1:]
	n := codec.DecodeLE32(buf)
	buf = buf[4:]
	r.Stats.Counts = make(map[string]uint64, n)
	for i := uint32(0); i < n; i++ {
		var val string
		val, buf = codec.ReadString(buf)
		r.Stats.Counts[val] = codec.DecodeLE64(buf)
		buf = buf[8:]
	}
	return r, nil
}

func (r Row) encode() []byte {
	var buf []byte
	buf = append(buf, r.Stats.ColumnType)
	buf = codec.LE32(buf, uint32(len(r.Stats.Counts)))
	keys := make([]string, 0, len(r.Stats.Counts))
	for k := range r.Stats.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = codec.String(buf, k)
		buf = codec.LE64(buf, r.Stats.Counts[k])
	}
	return buf
}

// Table is the column-statistics table.
type Table struct {
	t *table.Table[Row]
}

// Open wraps the column_stats bucket.
func Open(db *bolt.DB) (*Table, error) {
	t, err := table.Open[Row](db, bucket, decode)
	if err != nil {
		return nil, err
	}
	return &Table{t: t}, nil
}

// InsertColumnStatistics inserts one row per column index, using the
// composite key.
func (tb *Table) InsertColumnStatistics(stats map[uint32][]ColumnStatistics, modelID uint32, batchTS int64) error {
	for clusterID, cols := range stats {
		for _, cs := range cols {
			row := Row{ClusterID: clusterID, BatchTS: batchTS, ColumnIndex: cs.ColumnIndex, ModelID: modelID, Stats: cs}
			if err := tb.t.Put(key(clusterID, batchTS, cs.ColumnIndex, modelID), row.encode()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get returns every row under the (cluster, batch_ts) prefix.
func (tb *Table) Get(clusterID uint32, batchTS int64) ([]Row, error) {
	prefix := codec.BE32(nil, clusterID)
	prefix = codec.BEI64(prefix, batchTS)
	var rows []Row
	err := tb.t.PrefixIter(prefix, kv.Forward, func(r Row) bool {
		rows = append(rows, r)
		return true
	})
	return rows, err
}

// GetColumnStatistics returns rows under the cluster prefix; if
// timestamps is non-empty, only rows matching one of them.
func (tb *Table) GetColumnStatistics(clusterID uint32, timestamps []int64) ([]Row, error) {
	if len(timestamps) == 0 {
		var rows []Row
		err := tb.t.PrefixIter(codec.BE32(nil, clusterID), kv.Forward, func(r Row) bool {
			rows = append(rows, r)
			return true
		})
		return rows, err
	}
	var rows []Row
	for _, ts := range timestamps {
		got, err := tb.Get(clusterID, ts)
		if err != nil {
			return nil, err
		}
		rows = append(rows, got...)
	}
	return rows, nil
}

// RemoveByModel scans every row and deletes those whose suffix matches
// modelID.
func (tb *Table) RemoveByModel(modelID uint32) error {
	var toDelete [][]byte
	err := tb.t.IterForward(func(r Row) bool {
		if r.ModelID == modelID {
			toDelete = append(toDelete, key(r.ClusterID, r.BatchTS, r.ColumnIndex, r.ModelID))
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range toDelete {
		if err := tb.t.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// topEntry is one (cluster, batch) candidate scored for the top-N picks.
type topEntry struct {
	clusterID uint32
	batchTS   int64
	topNLen   int
}

// Multimap is one chosen (cluster, batch) pair together with the top-N
// rows of the requested display columns.
type Multimap struct {
	ClusterID uint32
	BatchTS   int64
	Columns   []Row
}

// GetTopMultimapsOfModel picks, for each column in columnNBitmap, up to
// numberOfTopN (cluster, batch) pairs whose top-N length for that column
// is at least minTopN -- preferring larger top-N, then newer batches, then
// stable cluster-id order -- and returns the top-N of column1Bitmap's
// columns for each chosen pair. A non-nil timeCutoff restricts candidates
// to batches at or before it.
func (tb *Table) GetTopMultimapsOfModel(modelID uint32, clusterIDs []uint32, column1Bitmap, columnNBitmap []uint32, numberOfTopN, minTopN int, timeCutoff *int64) (map[uint32][]Multimap, error) {
	result := make(map[uint32][]Multimap)
	for _, col := range columnNBitmap {
		var candidates []topEntry
		for _, clusterID := range clusterIDs {
			rows, err := tb.GetColumnStatistics(clusterID, nil)
			if err != nil {
				return nil, err
			}
			for _, r := range rows {
				if r.ModelID != modelID || r.ColumnIndex != col {
					continue
				}
				if timeCutoff != nil && r.BatchTS > *timeCutoff {
					continue
				}
				if len(r.Stats.Counts) < minTopN {
					continue
				}
				candidates = append(candidates, topEntry{clusterID: clusterID, batchTS: r.BatchTS, topNLen: len(r.Stats.Counts)})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].topNLen != candidates[j].topNLen {
				return candidates[i].topNLen > candidates[j].topNLen
			}
			if candidates[i].batchTS != candidates[j].batchTS {
				return candidates[i].batchTS > candidates[j].batchTS
			}
			return candidates[i].clusterID < candidates[j].clusterID
		})
		if len(candidates) > numberOfTopN {
			candidates = candidates[:numberOfTopN]
		}
		maps := make([]Multimap, 0, len(candidates))
		for _, c := range candidates {
			pairRows, err := tb.Get(c.clusterID, c.batchTS)
			if err != nil {
				return nil, err
			}
			var cols []Row
			for _, r := range pairRows {
				if r.ModelID != modelID {
					continue
				}
				for _, c1 := range column1Bitmap {
					if r.ColumnIndex == c1 {
						cols = append(cols, r)
						break
					}
				}
			}
			maps = append(maps, Multimap{ClusterID: c.clusterID, BatchTS: c.batchTS, Columns: cols})
		}
		result[col] = maps
	}
	return result, nil
}

// GetTopColumnsOfModel sums counts per value per column across clusters,
// applies a per-column portion limit (sorted desc, kept until cumulative
// count reaches total*portion), then returns the global top-N per column.
// A non-nil timeCutoff restricts the sum to batches at or before it.
func (tb *Table) GetTopColumnsOfModel(modelID uint32, clusterIDs []uint32, topNBitmap []uint32, numberOfTopN int, timeCutoff *int64, portion float64) (map[uint32][]ValueCount, error) {
	sums := make(map[uint32]map[string]uint64)
	for _, clusterID := range clusterIDs {
		rows, err := tb.GetColumnStatistics(clusterID, nil)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.ModelID != modelID {
				continue
			}
			if timeCutoff != nil && r.BatchTS > *timeCutoff {
				continue
			}
			inBitmap := false
			for _, c := range topNBitmap {
				if c == r.ColumnIndex {
					inBitmap = true
					break
				}
			}
			if !inBitmap {
				continue
			}
			if sums[r.ColumnIndex] == nil {
				sums[r.ColumnIndex] = make(map[string]uint64)
			}
			for v, n := range r.Stats.Counts {
				sums[r.ColumnIndex][v] += n
			}
		}
	}

	result := make(map[uint32][]ValueCount)
	for col, counts := range sums {
		result[col] = applyPortionAndTopN(counts, portion, numberOfTopN)
	}
	return result, nil
}

// ValueCount is one (value, count) pair in a top-N result.
type ValueCount struct {
	Value string
	Count uint64
}

func applyPortionAndTopN(counts map[string]uint64, portion float64, n int) []ValueCount {
	vcs := make([]ValueCount, 0, len(counts))
	var total uint64
	for v, c := range counts {
		vcs = append(vcs, ValueCount{Value: v, Count: c})
		total += c
	}
	sort.SliceStable(vcs, func(i, j int) bool {
		if vcs[i].Count != vcs[j].Count {
			return vcs[i].Count > vcs[j].Count
		}
		return vcs[i].Value < vcs[j].Value
	})
	if portion > 0 && portion < 1 {
		threshold := uint64(float64(total) * portion)
		var cumulative uint64
		kept := vcs[:0]
		for _, vc := range vcs {
			kept = append(kept, vc)
			cumulative += vc.Count
			if cumulative >= threshold {
				break
			}
		}
		vcs = kept
	}
	if len(vcs) > n {
		vcs = vcs[:n]
	}
	return vcs
}

// GetTopIPAddressesOfModel is GetTopColumnsOfModel restricted to the
// subset of the requested columns whose stored mode is TypeIPAddress.
func (tb *Table) GetTopIPAddressesOfModel(modelID uint32, clusterIDs []uint32, requested []uint32, numberOfTopN int, timeCutoff *int64, portion float64) (map[uint32][]ValueCount, error) {
	types, err := tb.GetColumnTypesOfModel(modelID)
	if err != nil {
		return nil, err
	}
	var ipColumns []uint32
	for _, col := range requested {
		if types[col] == TypeIPAddress {
			ipColumns = append(ipColumns, col)
		}
	}
	return tb.GetTopColumnsOfModel(modelID, clusterIDs, ipColumns, numberOfTopN, timeCutoff, portion)
}

// GetTopIPAddressesOfCluster restricts the aggregation to one cluster. A
// size of 0 yields an empty ValueCount slice for every requested column
// rather than omitting the column, so callers can tell "nothing there"
// from "not requested".
func (tb *Table) GetTopIPAddressesOfCluster(modelID, clusterID uint32, ipColumns []uint32, size int) (map[uint32][]ValueCount, error) {
	result, err := tb.GetTopColumnsOfModel(modelID, []uint32{clusterID}, ipColumns, size, nil, 1.0)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		for _, col := range ipColumns {
			result[col] = []ValueCount{}
		}
	}
	return result, nil
}

// CountRoundsByCluster returns the number of distinct batch_ts values
// under the cluster's prefix.
func (tb *Table) CountRoundsByCluster(clusterID uint32) (int, error) {
	seen := make(map[int64]bool)
	err := tb.t.PrefixIter(codec.BE32(nil, clusterID), kv.Forward, func(r Row) bool {
		seen[r.BatchTS] = true
		return true
	})
	return len(seen), err
}

// LoadRoundsByCluster returns the distinct batch_ts values under the
// cluster's prefix, paginated by offset/limit in ascending order.
func (tb *Table) LoadRoundsByCluster(clusterID uint32, offset, limit int) ([]int64, error) {
	seen := make(map[int64]bool)
	err := tb.t.PrefixIter(codec.BE32(nil, clusterID), kv.Forward, func(r Row) bool {
		seen[r.BatchTS] = true
		return true
	})
	if err != nil {
		return nil, err
	}
	rounds := make([]int64, 0, len(seen))
	for ts := range seen {
		rounds = append(rounds, ts)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i] < rounds[j] })
	if offset >= len(rounds) {
		return nil, nil
	}
	end := offset + limit
	if end > len(rounds) || limit <= 0 {
		end = len(rounds)
	}
	return rounds[offset:end], nil
}

// GetColumnTypesOfModel scans every row in one forward pass and collects
// (column_index, type_code) pairs from the rows belonging to model.
func (tb *Table) GetColumnTypesOfModel(modelID uint32) (map[uint32]uint8, error) {
	types := make(map[uint32]uint8)
	err := tb.t.IterForward(func(r Row) bool {
		if r.ModelID == modelID {
			types[r.ColumnIndex] = r.Stats.ColumnType
		}
		return true
	})
	return types, err
}
