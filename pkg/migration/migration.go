// Package migration implements the schema-migration driver: a
// version-gated, in-place transform over column families and records,
// run against both the live data directory and its backup copy.
package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/quietloop/sentineldb/pkg/dberr"
	sdlog "github.com/quietloop/sentineldb/pkg/log"
	"github.com/quietloop/sentineldb/pkg/metrics"
)

// CurrentVersion is the version this binary writes to VERSION files once a
// migration (or a no-op version check) completes successfully.
const CurrentVersion = "0.42.0"

// CompatibleRange is the set of recorded versions this binary can open
// without running any migration step.
var CompatibleRange = mustConstraint(">= 0.42.0, < 0.43.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Step is one entry of the version-gated migration table: Requirement
// selects which recorded versions this step applies to, ToVersion is the
// VERSION this step advances the store to, and Migrate performs the
// transform against both dataDir and backupDir.
type Step struct {
	Requirement string
	ToVersion   string
	Migrate     func(dataDir, backupDir string) error
}

// Steps is the ordered migration table. Evaluated top to bottom: the
// first step whose Requirement matches the currently recorded version is
// applied, the version is advanced, and evaluation restarts from the top
// so multi-step chains (0.40 -> 0.41 -> 0.42) apply in order.
var Steps = []Step{
	{
		// Shape 1: record-rewrite-in-place.
		Requirement: ">= 0.40.0, < 0.41.0",
		ToVersion:   "0.41.0",
		Migrate:     migrateTriagePoliciesV0_40,
	},
	{
		// Shape 2: column-family rename (with a merge into the live CF).
		Requirement: ">= 0.41.0, < 0.41.1",
		ToVersion:   "0.41.1",
		Migrate:     renameLegacyColumnStats,
	},
	{
		// Shape 3: deprecated-CF-drop.
		Requirement: ">= 0.41.1, < 0.42.0",
		ToVersion:   "0.42.0",
		Migrate:     dropLegacySamplingPolicies,
	},
}

// versionFileName is the file name written under both dataDir and
// backupDir.
const versionFileName = "VERSION"

// Run checks the VERSION recorded under dataDir against backupDir (they
// must match), and if it is outside CompatibleRange, walks Steps in order
// until the recorded version satisfies CompatibleRange. It fails with
// dberr.ErrMigrationUnsupported if no step applies and the current
// version is not compatible. VERSION files are rewritten only once every
// step has succeeded; a failure partway leaves the store openable by the
// previous binary.
func Run(dataDir, backupDir string) error {
	log := sdlog.WithComponent("migration")

	dataVersion, err := readVersion(dataDir)
	if err != nil {
		return err
	}
	if backupDir != "" {
		backupVersion, err := readVersion(backupDir)
		if err != nil {
			return err
		}
		if dataVersion != backupVersion {
			return fmt.Errorf("migration: data VERSION %q does not match backup VERSION %q: %w", dataVersion, backupVersion, dberr.ErrCorrupt)
		}
	}

	current, err := semver.NewVersion(dataVersion)
	if err != nil {
		return fmt.Errorf("migration: parse VERSION %q: %w: %w", dataVersion, err, dberr.ErrCorrupt)
	}

	applied := 0
	for !CompatibleRange.Check(current) {
		step, ok := findStep(current)
		if !ok {
			metrics.MigrationStepsTotal.WithLabelValues("unsupported").Inc()
			return fmt.Errorf("migration: from %s is not supported: %w", current, dberr.ErrMigrationUnsupported)
		}

		log.Info().Str("from", current.String()).Str("to", step.ToVersion).Msg("applying migration step")
		if err := step.Migrate(dataDir, backupDir); err != nil {
			metrics.MigrationStepsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("migration: step to %s failed: %w", step.ToVersion, err)
		}
		metrics.MigrationStepsTotal.WithLabelValues("ok").Inc()
		applied++

		next, err := semver.NewVersion(step.ToVersion)
		if err != nil {
			return fmt.Errorf("migration: step ToVersion %q: %w", step.ToVersion, err)
		}
		current = next
	}

	if applied == 0 {
		log.Info().Str("version", current.String()).Msg("store already current, no migration needed")
		metrics.MigrationVersion.WithLabelValues(current.String()).Set(1)
		return nil
	}

	if err := writeVersion(dataDir, current.String()); err != nil {
		return err
	}
	if backupDir != "" {
		if err := writeVersion(backupDir, current.String()); err != nil {
			return err
		}
	}
	metrics.MigrationVersion.WithLabelValues(current.String()).Set(1)
	log.Info().Str("version", current.String()).Int("steps_applied", applied).Msg("migration complete")
	return nil
}

func findStep(current *semver.Version) (Step, bool) {
	for _, s := range Steps {
		c, err := semver.NewConstraint(s.Requirement)
		if err != nil {
			continue
		}
		if c.Check(current) {
			return s, true
		}
	}
	return Step{}, false
}

func readVersion(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, versionFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("migration: no %s file in %s: %w", versionFileName, dir, dberr.ErrNotFound)
		}
		return "", fmt.Errorf("migration: read %s: %w: %w", versionFileName, err, dberr.ErrIo)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeVersion(dir, version string) error {
	path := filepath.Join(dir, versionFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("migration: write %s: %w: %w", versionFileName, err, dberr.ErrIo)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("migration: rename %s: %w: %w", versionFileName, err, dberr.ErrIo)
	}
	return nil
}

// InitVersion writes version (CurrentVersion if empty) to dir/VERSION if
// no VERSION file exists yet, for first-time store creation.
func InitVersion(dir, version string) error {
	if version == "" {
		version = CurrentVersion
	}
	path := filepath.Join(dir, versionFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeVersion(dir, version)
}
