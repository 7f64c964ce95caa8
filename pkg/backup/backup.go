// Package backup implements the backup coordinator: periodic/manual
// backup, list, restore, and recover across the embedded KV store and an
// adjacent relational database, kept in lock-step. A successful Create
// leaves both a KV snapshot id and a matching relational archive on
// disk; a failed phase is never rolled back, and the next PurgeOld or
// Create reconciles the two sides.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/config"
	"github.com/quietloop/sentineldb/pkg/dberr"
	sdlog "github.com/quietloop/sentineldb/pkg/log"
	"github.com/quietloop/sentineldb/pkg/metrics"
	"github.com/quietloop/sentineldb/pkg/migration"
	"github.com/quietloop/sentineldb/pkg/store"
)

// Info is one entry returned by List: a KV backup joined with the size
// of its matching relational archive.
type Info struct {
	ID          uint64
	Timestamp   time.Time
	KVSize      int64
	ArchiveSize int64 // 0 if the matching archive is missing on disk
	ArchivePath string
	HasArchive  bool
}

// Coordinator owns the live store handle, the KV snapshot engine, and the
// relational-DB config, and serializes create/restore/recover both
// in-process (store's RWMutex) and cross-process (a flock on backup_dir).
type Coordinator struct {
	dataDir       string
	classifierDir string
	pretrainedDir string
	backupDir     string
	cfg           config.BackupConfig
	dumper        RelationalDumper
	kv            *kvEngine

	st *store.Store
}

// New wires a Coordinator around an already-open Store. backupDir is
// cfg.BackupPath if cfg.BackupPath is empty this returns ErrInvalidInput.
func New(st *store.Store, dataDir, classifierDir, pretrainedDir string, cfg config.BackupConfig, dumper RelationalDumper) (*Coordinator, error) {
	if cfg.BackupPath == "" {
		return nil, fmt.Errorf("backup: BackupConfig.BackupPath is required: %w", dberr.ErrInvalidInput)
	}
	if dumper == nil {
		dumper = PgDumper{}
	}
	if err := os.MkdirAll(filepath.Join(cfg.BackupPath, "database.db"), 0o755); err != nil {
		return nil, fmt.Errorf("backup: create database.db dir: %w: %w", err, dberr.ErrIo)
	}
	if err := migration.InitVersion(cfg.BackupPath, ""); err != nil {
		return nil, err
	}
	kv, err := openKVEngine(cfg.BackupPath)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		dataDir:       dataDir,
		classifierDir: classifierDir,
		pretrainedDir: pretrainedDir,
		backupDir:     cfg.BackupPath,
		cfg:           cfg,
		dumper:        dumper,
		kv:            kv,
		st:            st,
	}, nil
}

// Store returns the currently live store. Restore and Recover may replace
// the underlying handle, so callers should always fetch it through here
// rather than holding their own copy across a restore/recover call.
func (c *Coordinator) Store() *store.Store { return c.st }

func (c *Coordinator) lockPath() string { return filepath.Join(c.backupDir, ".backup.lock") }

func (c *Coordinator) archivePath(id uint64) string {
	return filepath.Join(c.backupDir, "database.db", fmt.Sprintf("%d.bck", id))
}

// Create runs the three-phase sequence: snapshot the KV store (flushing
// first if flush is true), purge KV snapshots beyond numToKeep,
// dump+archive the relational database, then delete relational archives
// with no matching KV id. Any phase error is returned wrapped in a
// *dberr.BackupPhaseError identifying which phase failed; earlier phases
// are not undone (the next PurgeOld/Create reconciles).
func (c *Coordinator) Create(ctx context.Context, flush bool, numToKeep int) (Info, error) {
	fl := flock.New(c.lockPath())
	if err := fl.Lock(); err != nil {
		return Info{}, fmt.Errorf("backup: acquire lock: %w: %w", err, dberr.ErrIo)
	}
	defer fl.Unlock()

	timer := metrics.NewTimer()

	c.st.Lock()
	defer c.st.Unlock()

	if flush {
		if err := c.st.DB().Sync(); err != nil {
			metrics.BackupsTotal.WithLabelValues("kv", "error").Inc()
			return Info{}, &dberr.BackupPhaseError{Phase: "kv", Err: fmt.Errorf("flush: %w", err)}
		}
	}

	entry, err := c.snapshotKV()
	if err != nil {
		metrics.BackupsTotal.WithLabelValues("kv", "error").Inc()
		return Info{}, &dberr.BackupPhaseError{Phase: "kv", Err: err}
	}
	metrics.BackupsTotal.WithLabelValues("kv", "ok").Inc()

	if _, err := c.kv.purge(numToKeep); err != nil {
		metrics.BackupsTotal.WithLabelValues("purge", "error").Inc()
		return Info{}, &dberr.BackupPhaseError{Phase: "purge", Err: err}
	}

	kvIDs, err := c.kv.list()
	if err != nil {
		return Info{}, &dberr.BackupPhaseError{Phase: "kv", Err: err}
	}

	archive := c.archivePath(entry.ID)
	if err := c.dumpRelational(ctx, archive); err != nil {
		metrics.BackupsTotal.WithLabelValues("relational", "error").Inc()
		return Info{}, &dberr.BackupPhaseError{Phase: "relational", Err: err}
	}
	metrics.BackupsTotal.WithLabelValues("relational", "ok").Inc()

	if err := c.pruneOrphanArchives(kvIDs); err != nil {
		metrics.BackupsTotal.WithLabelValues("purge", "error").Inc()
		return Info{}, &dberr.BackupPhaseError{Phase: "purge", Err: err}
	}

	metrics.BackupLastSuccessTimestamp.Set(float64(time.Now().Unix()))
	timer.ObserveDuration(metrics.BackupDuration)
	createLog := sdlog.WithBackupID(strconv.FormatUint(entry.ID, 10))
	createLog.Info().Str("component", "backup").Msg("backup created")

	return Info{ID: entry.ID, Timestamp: entry.Timestamp, KVSize: entry.Size, ArchivePath: archive, HasArchive: true}, nil
}

// snapshotKV writes a new bbolt hot-backup snapshot via tx.WriteTo, the
// documented bbolt recipe this project uses as its backup engine.
func (c *Coordinator) snapshotKV() (kvEntry, error) {
	m, err := c.kv.load()
	if err != nil {
		return kvEntry{}, err
	}
	id := m.NextID
	path := c.kv.snapshotPath(id)

	var size int64
	err = c.st.DB().View(func(tx *bolt.Tx) error {
		f, ferr := os.Create(path)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		n, werr := tx.WriteTo(f)
		size = n
		return werr
	})
	if err != nil {
		return kvEntry{}, fmt.Errorf("backup: snapshot kv: %w: %w", err, dberr.ErrIo)
	}
	return c.kv.create(size)
}

func (c *Coordinator) dumpRelational(ctx context.Context, archive string) error {
	tmp, err := os.MkdirTemp(c.cfg.ReviewDataPath, "sentineldb-backup-*")
	if err != nil {
		return fmt.Errorf("backup: create temp dir: %w: %w", err, dberr.ErrIo)
	}
	defer os.RemoveAll(tmp)

	dataDir := filepath.Join(tmp, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("backup: create temp data dir: %w: %w", err, dberr.ErrIo)
	}
	dumpFile := filepath.Join(dataDir, "dump.pgdump")
	if err := c.dumper.Dump(ctx, c.cfg, dumpFile); err != nil {
		return err
	}
	return packArchive(tmp, archive)
}

// pruneOrphanArchives deletes any database.db/{id}.bck whose id is not
// present in kvIDs.
func (c *Coordinator) pruneOrphanArchives(kvIDs []kvEntry) error {
	want := make(map[uint64]bool, len(kvIDs))
	for _, e := range kvIDs {
		want[e.ID] = true
	}
	dir := filepath.Join(c.backupDir, "database.db")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("backup: list archives: %w: %w", err, dberr.ErrIo)
	}
	for _, e := range entries {
		id, ok := parseArchiveID(e.Name())
		if !ok || want[id] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("backup: remove orphan archive %s: %w: %w", e.Name(), err, dberr.ErrIo)
		}
	}
	return nil
}

func parseArchiveID(name string) (uint64, bool) {
	const suffix = ".bck"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return 0, false
	}
	var id uint64
	base := name[:len(name)-len(suffix)]
	_, err := fmt.Sscanf(base, "%d", &id)
	return id, err == nil
}

// List returns every recorded backup, newest first, each joined with the
// on-disk size of its matching relational archive (0 if the archive file
// is missing).
func (c *Coordinator) List() ([]Info, error) {
	entries, err := c.kv.list()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		info := Info{ID: e.ID, Timestamp: e.Timestamp, KVSize: e.Size, ArchivePath: c.archivePath(e.ID)}
		if st, err := os.Stat(info.ArchivePath); err == nil {
			info.ArchiveSize = st.Size()
			info.HasArchive = true
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Restore closes the live store, restores the KV snapshot (the chosen
// one, or the latest if id is nil), reopens it, then extracts and
// pg_restores the matching relational archive. The previous relational
// data directory lives inside the container named by cfg.Container, so
// rollback staging of it is left to the operator's container
// snapshot/volume tooling.
func (c *Coordinator) Restore(ctx context.Context, id *uint64) error {
	fl := flock.New(c.lockPath())
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("backup: acquire lock: %w: %w", err, dberr.ErrIo)
	}
	defer fl.Unlock()

	timer := metrics.NewTimer()

	entries, err := c.kv.list()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("backup: restore: no backups available: %w", dberr.ErrNotFound)
	}
	target := entries[len(entries)-1]
	if id != nil {
		found := false
		for _, e := range entries {
			if e.ID == *id {
				target = e
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("backup: restore: backup %d not found: %w", *id, dberr.ErrNotFound)
		}
	}

	archive := c.archivePath(target.ID)
	if _, err := os.Stat(archive); err != nil {
		return &dberr.BackupPhaseError{Phase: "relational", Err: fmt.Errorf("archive for backup %d missing: %w", target.ID, dberr.ErrNotFound)}
	}

	c.st.Lock()
	defer c.st.Unlock()

	if err := c.st.Close(); err != nil {
		return &dberr.BackupPhaseError{Phase: "kv", Err: err}
	}
	if err := restoreSnapshot(c.kv.snapshotPath(target.ID), filepath.Join(c.dataDir, "states.db")); err != nil {
		return &dberr.BackupPhaseError{Phase: "kv", Err: err}
	}
	newStore, err := store.Open(c.dataDir, c.classifierDir, c.pretrainedDir)
	if err != nil {
		return &dberr.BackupPhaseError{Phase: "kv", Err: err}
	}
	c.st = newStore

	if err := c.restoreRelational(ctx, archive); err != nil {
		return &dberr.BackupPhaseError{Phase: "relational", Err: err}
	}

	timer.ObserveDuration(metrics.RestoreDuration)
	restoreLog := sdlog.WithBackupID(strconv.FormatUint(target.ID, 10))
	restoreLog.Info().Str("component", "backup").Msg("restore complete")
	return nil
}

func (c *Coordinator) restoreRelational(ctx context.Context, archive string) error {
	tmp, err := os.MkdirTemp(c.cfg.ReviewDataPath, "sentineldb-restore-*")
	if err != nil {
		return fmt.Errorf("backup: create temp dir: %w: %w", err, dberr.ErrIo)
	}
	defer os.RemoveAll(tmp)

	if err := unpackArchive(archive, tmp); err != nil {
		return err
	}
	dumpFile := filepath.Join(tmp, "data", "dump.pgdump")
	return c.dumper.Restore(ctx, c.cfg, dumpFile)
}

func restoreSnapshot(snapshotPath, destPath string) error {
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("backup: read snapshot: %w: %w", err, dberr.ErrIo)
	}
	tmp := destPath + ".restoring"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("backup: stage snapshot: %w: %w", err, dberr.ErrIo)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return fmt.Errorf("backup: install snapshot: %w: %w", err, dberr.ErrIo)
	}
	return nil
}

// Recover tries opening the live store; on failure it walks KV backups
// newest-first, attempting restore+open until one succeeds, then
// restores the matching relational archive. Fall-through to an older
// backup happens only when a snapshot itself fails to restore or open: a
// snapshot that opens cleanly but has no relational archive is a hard
// error, since silently recovering KV state newer than the relational
// dump it pairs with would break the lock-step guarantee.
func (c *Coordinator) Recover(ctx context.Context) error {
	fl := flock.New(c.lockPath())
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("backup: acquire lock: %w: %w", err, dberr.ErrIo)
	}
	defer fl.Unlock()

	log := sdlog.WithComponent("backup")

	if st, err := store.Open(c.dataDir, c.classifierDir, c.pretrainedDir); err == nil {
		st.Close()
		log.Info().Msg("recover: store already opens cleanly")
		return nil
	}

	entries, err := c.kv.list()
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })

	var lastErr error
	for _, e := range entries {
		if err := restoreSnapshot(c.kv.snapshotPath(e.ID), filepath.Join(c.dataDir, "states.db")); err != nil {
			lastErr = err
			continue
		}
		newStore, err := store.Open(c.dataDir, c.classifierDir, c.pretrainedDir)
		if err != nil {
			lastErr = err
			continue
		}
		archive := c.archivePath(e.ID)
		if _, statErr := os.Stat(archive); statErr != nil {
			newStore.Close()
			return fmt.Errorf("backup: recover: archive for backup %d missing: %w", e.ID, dberr.ErrNotFound)
		}
		if err := c.restoreRelational(ctx, archive); err != nil {
			newStore.Close()
			return err
		}
		c.st = newStore
		recoverLog := sdlog.WithBackupID(strconv.FormatUint(e.ID, 10))
		recoverLog.Info().Str("component", "backup").Msg("recovered")
		return nil
	}
	if lastErr == nil {
		lastErr = dberr.ErrNotFound
	}
	return fmt.Errorf("backup: recover: no usable backup: %w", lastErr)
}

// PurgeOld keeps the numToKeep newest KV backups, then deletes relational
// archives with no matching surviving KV id.
func (c *Coordinator) PurgeOld(numToKeep int) error {
	if _, err := c.kv.purge(numToKeep); err != nil {
		return err
	}
	kvIDs, err := c.kv.list()
	if err != nil {
		return err
	}
	return c.pruneOrphanArchives(kvIDs)
}

// SchedulePeriodic creates a backup every interval, starting after init.
// On a receive from stop, it performs one final synchronous backup and
// then closes done as its ack.
func (c *Coordinator) SchedulePeriodic(ctx context.Context, init, interval time.Duration, numToKeep int, stop <-chan struct{}, done chan<- struct{}) {
	log := sdlog.WithComponent("backup")
	timer := time.NewTimer(init)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			if _, err := c.Create(ctx, false, numToKeep); err != nil {
				log.Error().Err(err).Msg("final periodic backup failed")
			}
			if done != nil {
				close(done)
			}
			return
		case <-timer.C:
			if _, err := c.Create(ctx, false, numToKeep); err != nil {
				log.Error().Err(err).Msg("periodic backup failed")
			}
			timer.Reset(interval)
		}
	}
}
