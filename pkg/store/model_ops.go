package store

import (
	"fmt"
	"strconv"

	"github.com/quietloop/sentineldb/pkg/dberr"
	sdlog "github.com/quietloop/sentineldb/pkg/log"
	"github.com/quietloop/sentineldb/pkg/storage/tables/batchinfo"
	modeltbl "github.com/quietloop/sentineldb/pkg/storage/tables/model"
	"github.com/quietloop/sentineldb/pkg/storage/tables/scores"
)

// AddModel writes the model row, its classifier blob, its batch infos,
// and its scores. It is not transactional across the four writes; a
// crash partway leaves the next add/update/delete to reconcile, and
// readers of the dependent tables check existence rather than assume
// referential integrity.
func (s *Store) AddModel(m modeltbl.Model, classifierBlob []byte, batches []batchinfo.BatchInfo, sc scores.Scores) (modeltbl.Model, error) {
	s.RLock()
	defer s.RUnlock()

	saved, err := s.Models.Insert(m)
	if err != nil {
		return modeltbl.Model{}, err
	}
	if err := s.Classifier.Store(saved.ID, saved.Name, classifierBlob); err != nil {
		return saved, err
	}
	for _, b := range batches {
		b.ModelID = saved.ID
		if err := s.BatchInfo.Upsert(b); err != nil {
			return saved, err
		}
	}
	sc.ModelID = saved.ID
	if err := s.Scores.Overwrite(sc); err != nil {
		return saved, err
	}
	addLog := sdlog.WithModelID(strconv.FormatUint(uint64(saved.ID), 10))
	addLog.Info().Str("name", saved.Name).Msg("model added")
	return saved, nil
}

// UpdateModel replaces the row at id (after verifying it matches expected),
// then re-writes the classifier blob, batch infos, and scores the same way
// AddModel does.
func (s *Store) UpdateModel(id uint32, expected, next modeltbl.Model, classifierBlob []byte, batches []batchinfo.BatchInfo, sc scores.Scores) error {
	s.RLock()
	defer s.RUnlock()

	if err := s.Models.Update(id, expected, next); err != nil {
		return err
	}
	if err := s.Classifier.Store(id, next.Name, classifierBlob); err != nil {
		return err
	}
	for _, b := range batches {
		b.ModelID = id
		if err := s.BatchInfo.Upsert(b); err != nil {
			return err
		}
	}
	sc.ModelID = id
	if err := s.Scores.Overwrite(sc); err != nil {
		return err
	}
	updateLog := sdlog.WithModelID(strconv.FormatUint(uint64(id), 10))
	updateLog.Info().Msg("model updated")
	return nil
}

// DeleteModel looks up name, removes its model row and classifier blob,
// then sweeps every dependent table by model id: clusters, batch_info,
// scores, column_stats, csv_column_extras, time_series,
// model_indicators, outliers. Sweeps share no transaction and delete
// row by row; a sweep that fails is logged and the remaining sweeps still
// run, so repeating the delete removes whatever was left behind. The
// count of completed sweeps and the first error are returned.
func (s *Store) DeleteModel(name string) (int, error) {
	s.RLock()
	defer s.RUnlock()

	m, ok, err := s.Models.GetByName(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("store: delete_model: model %q: %w", name, dberr.ErrNotFound)
	}
	log := sdlog.WithModelID(strconv.FormatUint(uint64(m.ID), 10))

	if _, err := s.Models.Remove(m.ID); err != nil {
		return 0, err
	}

	sweeps := []struct {
		table string
		run   func() error
	}{
		{"classifier", func() error { return s.Classifier.Delete(m.ID, m.Name) }},
		{"cluster", func() error { _, err := s.Clusters.DeleteAllFor(m.ID); return err }},
		{"batch_info", func() error { _, err := s.BatchInfo.DeleteAllFor(m.ID); return err }},
		{"scores", func() error { return s.Scores.Delete(m.ID) }},
		{"column_stats", func() error { return s.ColumnStats.RemoveByModel(m.ID) }},
		{"csv_column_extras", func() error { _, err := s.CsvColumns.DeleteAllFor(m.ID); return err }},
		{"time_series", func() error { _, err := s.TimeSeries.DeleteAllFor(m.ID); return err }},
		{"model_indicators", func() error { _, err := s.Indicators.DeleteAllFor(m.ID); return err }},
		{"outliers", func() error { _, err := s.Outliers.DeleteAllFor(m.ID); return err }},
	}

	var firstErr error
	completed := 0
	for _, sw := range sweeps {
		if err := sw.run(); err != nil {
			log.Error().Err(err).Str("table", sw.table).Msg("model delete sweep failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("store: delete_model: sweep %s: %w", sw.table, err)
			}
			continue
		}
		completed++
	}
	if firstErr == nil {
		log.Info().Str("name", name).Msg("model deleted")
	}
	return completed, firstErr
}

// LoadModelByName fetches the model row and its classifier blob,
// confirming the blob exists on disk. batch_info and scores are
// deliberately not returned here -- callers that need them use those
// tables directly.
func (s *Store) LoadModelByName(name string) (modeltbl.Model, []byte, error) {
	s.RLock()
	defer s.RUnlock()

	m, ok, err := s.Models.GetByName(name)
	if err != nil {
		return modeltbl.Model{}, nil, err
	}
	if !ok {
		return modeltbl.Model{}, nil, fmt.Errorf("store: load_model_by_name: model %q: %w", name, dberr.ErrNotFound)
	}
	if !s.Classifier.Exists(m.ID, m.Name) {
		return modeltbl.Model{}, nil, fmt.Errorf("store: load_model_by_name: classifier file missing for %q: %w", name, dberr.ErrNotFound)
	}
	blob, err := s.Classifier.Load(m.ID, m.Name)
	if err != nil {
		return modeltbl.Model{}, nil, err
	}
	return m, blob, nil
}
