// Package classifier manages classifier binary blobs on the file system,
// addressed by model id and name: `base/classifiers/model_{id}/classifier_{name}.bin`.
// Writes go to a temp file first and are renamed into place so a reader
// never observes a partial blob.
package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/metrics"
)

// Manager stores and loads classifier blobs under a base directory.
type Manager struct {
	baseDir string
}

// New creates a Manager rooted at baseDir, creating it if absent.
func New(baseDir string) (*Manager, error) {
	info, err := os.Stat(baseDir)
	if err == nil && !info.IsDir() {
		return nil, &dberr.ClassifierError{Op: "mkdir", Err: fmt.Errorf("%s is not a directory: %w", baseDir, dberr.ErrInvalidInput)}
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, &dberr.ClassifierError{Op: "mkdir", Err: fmt.Errorf("%s: %w: %w", baseDir, err, dberr.ErrIo)}
	}
	return &Manager{baseDir: baseDir}, nil
}

// path returns the deterministic file path for a classifier, without
// checking whether it exists.
func (m *Manager) path(modelID uint32, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(m.baseDir, "classifiers", "model_"+strconv.FormatUint(uint64(modelID), 10))
	return filepath.Join(dir, "classifier_"+name+".bin"), nil
}

// Store writes data to the classifier identified by (modelID, name),
// writing to a temporary file first and renaming it into place.
func (m *Manager) Store(modelID uint32, name string, data []byte) error {
	path, err := m.path(modelID, name)
	if err != nil {
		return &dberr.ClassifierError{Op: "validate", Name: name, Model: modelID, Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &dberr.ClassifierError{Op: "mkdir", Name: name, Model: modelID, Err: fmt.Errorf("%w: %w", err, dberr.ErrIo)}
	}

	tmp := path + "." + strconv.FormatInt(time.Now().UnixMilli(), 10) + "." + uuid.NewString()[:8]
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &dberr.ClassifierError{Op: "write", Name: name, Model: modelID, Err: fmt.Errorf("%w: %w", err, dberr.ErrIo)}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &dberr.ClassifierError{Op: "rename", Name: name, Model: modelID, Err: fmt.Errorf("%w: %w", err, dberr.ErrIo)}
	}
	metrics.ClassifierBytesWritten.WithLabelValues(strconv.FormatUint(uint64(modelID), 10)).Add(float64(len(data)))
	return nil
}

// Load reads the classifier identified by (modelID, name). A missing file
// returns (nil, nil) rather than an error, so callers can treat "never
// trained" the same as "no data yet".
func (m *Manager) Load(modelID uint32, name string) ([]byte, error) {
	path, err := m.path(modelID, name)
	if err != nil {
		return nil, &dberr.ClassifierError{Op: "validate", Name: name, Model: modelID, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &dberr.ClassifierError{Op: "read", Name: name, Model: modelID, Err: fmt.Errorf("%w: %w", err, dberr.ErrIo)}
	}
	return data, nil
}

// Exists reports whether a classifier file is present, without reading it.
func (m *Manager) Exists(modelID uint32, name string) bool {
	path, err := m.path(modelID, name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the classifier file. Deleting an absent file succeeds.
func (m *Manager) Delete(modelID uint32, name string) error {
	path, err := m.path(modelID, name)
	if err != nil {
		return &dberr.ClassifierError{Op: "validate", Name: name, Model: modelID, Err: err}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &dberr.ClassifierError{Op: "remove", Name: name, Model: modelID, Err: fmt.Errorf("%w: %w", err, dberr.ErrIo)}
	}
	return nil
}

const forbiddenChars = ":<>|*?\""

func validateName(name string) error {
	if len(name) == 0 || len(name) > 255 {
		return fmt.Errorf("classifier name must be 1-255 characters: %w", dberr.ErrInvalidInput)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("classifier name contains path separators or traversal sequences: %w", dberr.ErrInvalidInput)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(forbiddenChars, r) {
			return fmt.Errorf("classifier name contains forbidden characters: %w", dberr.ErrInvalidInput)
		}
	}
	return nil
}
