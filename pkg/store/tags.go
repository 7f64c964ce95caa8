package store

import "github.com/quietloop/sentineldb/pkg/storage/tables/tagset"

// RemoveEventTag removes id from the event tag set, running cleanup (the
// caller's triage-response sweep) between deactivation and reclaim.
func (s *Store) RemoveEventTag(id uint32, cleanup tagset.EventTagCleanup) (string, error) {
	s.RLock()
	defer s.RUnlock()
	return s.EventTags.RemoveEventTag(id, cleanup)
}

// RemoveNetworkTag removes id from the network tag set and sweeps every
// network that references it.
func (s *Store) RemoveNetworkTag(id uint32) (string, error) {
	s.RLock()
	defer s.RUnlock()
	return s.NetworkTags.RemoveNetworkTag(id, s.Networks.RemoveTag)
}

// RemoveWorkflowTag removes id from the workflow tag set; there is no
// dependent table to sweep.
func (s *Store) RemoveWorkflowTag(id uint32) (string, error) {
	s.RLock()
	defer s.RUnlock()
	return s.WorkflowTags.RemoveWorkflowTag(id)
}
