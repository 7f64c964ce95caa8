// Package dberr defines the sentinel error taxonomy shared across the
// storage engine: kv, indexedmap, table, classifier, store, backup, and
// migration all wrap one of these instead of inventing ad hoc error types.
package dberr

import (
	"errors"
	"strconv"
)

var (
	// ErrNotFound indicates a key, id, or model was absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an insert collided on a unique key.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates an empty key, malformed record, or a
	// forbidden classifier name.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorrupt indicates deserialization failed, an index slot was
	// inconsistent with its record, or a VERSION file was unparsable.
	ErrCorrupt = errors.New("corrupt data")

	// ErrConflict indicates an optimistic transaction observed a
	// concurrent write. Retry loops absorb this internally; it should
	// rarely escape to a caller.
	ErrConflict = errors.New("conflict")

	// ErrMigrationUnsupported indicates the current version is outside
	// the compatible range and no migration step applies.
	ErrMigrationUnsupported = errors.New("migration unsupported")

	// ErrIo indicates a filesystem, subprocess, or KV backend failure.
	// Callers typically reach this via errors.Is after an os.* or exec.*
	// call wrapped with fmt.Errorf("...: %w", err).
	ErrIo = errors.New("io error")
)

// ClassifierError wraps a failure in the classifier file manager with the
// operation that failed, so callers can distinguish "directory create
// failed" from "rename failed" without string matching.
type ClassifierError struct {
	Op    string // "mkdir", "validate", "read", "write", "rename", "remove"
	Name  string
	Model uint32
	Err   error
}

func (e *ClassifierError) Error() string {
	return "classifier " + e.Op + " (model=" + strconv.FormatUint(uint64(e.Model), 10) + " name=" + e.Name + "): " + e.Err.Error()
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// BackupPhaseError identifies which phase of a backup or restore failed.
type BackupPhaseError struct {
	Phase string // "kv", "relational", "purge"
	Err   error
}

func (e *BackupPhaseError) Error() string {
	return "backup phase " + e.Phase + ": " + e.Err.Error()
}

func (e *BackupPhaseError) Unwrap() error {
	return e.Err
}
