// Package seeded implements the first-open seeding pattern shared by the
// category, qualifier, and status tables: probe that the next-assigned ID
// is 0, deactivate that probe row, then insert the defaults expecting
// them to land at IDs 1, 2, 3, ... ID 0 stays permanently deactivated so
// a persisted 0 anywhere can be read as "unset". If any expected ID is
// not produced -- because the table was not actually empty, or a
// concurrent opener raced the probe -- the offending insert is removed
// and seeding aborts without touching the table further.
package seeded

import "github.com/quietloop/sentineldb/pkg/storage/indexedmap"

// Seed installs defaults into m if it is currently empty. placeholder is
// the disposable probe record; defaults are inserted in order and must
// land at IDs 1..len(defaults).
func Seed[T indexedmap.Record](m *indexedmap.Map[T], placeholder T, defaults []T) error {
	count, err := m.Count()
	if err != nil {
		return err
	}
	if count != 0 {
		return nil
	}

	probeID, err := m.Insert(placeholder)
	if err != nil {
		return err
	}
	if probeID != 0 {
		// Table wasn't actually empty of slots (a free-list entry was
		// reused); abort rather than risk non-canonical IDs.
		_, _ = m.Remove(probeID)
		return nil
	}
	if _, err := m.Deactivate(probeID); err != nil {
		return err
	}

	for i, d := range defaults {
		id, err := m.Insert(d)
		if err != nil {
			return err
		}
		if id != uint32(i+1) {
			// Out-of-band insert: some other ID landed where a canonical
			// default was expected. Remove it and abort; already-seeded
			// canonical rows stay in place.
			_, _ = m.Remove(id)
			return nil
		}
	}
	return nil
}
