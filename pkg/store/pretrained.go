package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

// Pretrained manages the read-only pretrained-artifact directory: files
// named "{name}-{timestamp}.tmm", where the newest timestamp for a given
// name wins on Load.
type Pretrained struct {
	dir string
}

func newPretrained(dir string) (*Pretrained, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create pretrained dir %s: %w: %w", dir, err, dberr.ErrIo)
	}
	return &Pretrained{dir: dir}, nil
}

// Store writes a new pretrained artifact for name, stamped with timestampMs,
// without touching any earlier file for the same name.
func (p *Pretrained) Store(name string, timestampMs int64, data []byte) error {
	path := filepath.Join(p.dir, fmt.Sprintf("%s-%d.tmm", name, timestampMs))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("store: write pretrained artifact %s: %w: %w", path, err, dberr.ErrIo)
	}
	return nil
}

// Load returns the bytes of the newest pretrained artifact for name. It
// returns (nil, false, nil) if no artifact exists for that name.
func (p *Pretrained) Load(name string) ([]byte, bool, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: list pretrained dir: %w: %w", err, dberr.ErrIo)
	}

	prefix := name + "-"
	var newestTS int64 = -1
	var newestFile string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fname := e.Name()
		if !strings.HasPrefix(fname, prefix) || !strings.HasSuffix(fname, ".tmm") {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(fname, prefix), ".tmm")
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		if ts > newestTS {
			newestTS = ts
			newestFile = fname
		}
	}
	if newestFile == "" {
		return nil, false, nil
	}

	data, err := os.ReadFile(filepath.Join(p.dir, newestFile))
	if err != nil {
		return nil, false, fmt.Errorf("store: read pretrained artifact %s: %w: %w", newestFile, err, dberr.ErrIo)
	}
	return data, true, nil
}
