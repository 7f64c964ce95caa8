package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

// kvEntry is one row of the KV backup manifest. bbolt has no
// backup-engine concept of its own, so this manifest plays that role:
// one monotonically increasing id per snapshot, stored alongside the
// snapshot files under backup_dir/states.db/.
type kvEntry struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

type kvManifest struct {
	NextID  uint64    `json:"next_id"`
	Entries []kvEntry `json:"entries"`
}

// kvEngine owns backup_dir/states.db: one bbolt snapshot file per backup
// id plus manifest.json recording id/timestamp/size.
type kvEngine struct {
	dir string
}

func openKVEngine(backupDir string) (*kvEngine, error) {
	dir := filepath.Join(backupDir, "states.db")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create %s: %w: %w", dir, err, dberr.ErrIo)
	}
	return &kvEngine{dir: dir}, nil
}

func (e *kvEngine) manifestPath() string {
	return filepath.Join(e.dir, "manifest.json")
}

func (e *kvEngine) load() (kvManifest, error) {
	data, err := os.ReadFile(e.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return kvManifest{NextID: 1}, nil
		}
		return kvManifest{}, fmt.Errorf("backup: read manifest: %w: %w", err, dberr.ErrIo)
	}
	var m kvManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return kvManifest{}, fmt.Errorf("backup: parse manifest: %w: %w", err, dberr.ErrCorrupt)
	}
	return m, nil
}

func (e *kvEngine) save(m kvManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode manifest: %w", err)
	}
	tmp := e.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("backup: write manifest: %w: %w", err, dberr.ErrIo)
	}
	if err := os.Rename(tmp, e.manifestPath()); err != nil {
		return fmt.Errorf("backup: rename manifest: %w: %w", err, dberr.ErrIo)
	}
	return nil
}

func (e *kvEngine) snapshotPath(id uint64) string {
	return filepath.Join(e.dir, fmt.Sprintf("%d.db", id))
}

// create records a snapshot the caller has already written at
// snapshotPath(NextID), returning the new manifest entry.
func (e *kvEngine) create(size int64) (kvEntry, error) {
	m, err := e.load()
	if err != nil {
		return kvEntry{}, err
	}
	entry := kvEntry{ID: m.NextID, Timestamp: time.Now(), Size: size}
	m.Entries = append(m.Entries, entry)
	m.NextID++
	if err := e.save(m); err != nil {
		return kvEntry{}, err
	}
	return entry, nil
}

// list returns every recorded backup, oldest first.
func (e *kvEngine) list() ([]kvEntry, error) {
	m, err := e.load()
	if err != nil {
		return nil, err
	}
	out := append([]kvEntry(nil), m.Entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// purge keeps the numToKeep newest entries, deleting the rest (manifest
// rows and snapshot files), and returns the ids removed.
func (e *kvEngine) purge(numToKeep int) ([]uint64, error) {
	m, err := e.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].ID < m.Entries[j].ID })
	if numToKeep < 0 {
		numToKeep = 0
	}
	if len(m.Entries) <= numToKeep {
		return nil, nil
	}
	cut := len(m.Entries) - numToKeep
	removed := m.Entries[:cut]
	kept := m.Entries[cut:]

	var removedIDs []uint64
	for _, r := range removed {
		if err := os.Remove(e.snapshotPath(r.ID)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("backup: remove snapshot %d: %w: %w", r.ID, err, dberr.ErrIo)
		}
		removedIDs = append(removedIDs, r.ID)
	}
	m.Entries = kept
	if err := e.save(m); err != nil {
		return nil, err
	}
	return removedIDs, nil
}
