// Package tagset implements three independent indexed sets of tag
// strings -- event, network, and workflow -- all stored under the shared
// "meta" column family, each with its own cascade-removal policy.
package tagset

import (
	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/storage/indexedset"
)

var metaBucket = []byte("meta")

var (
	eventTagsKey    = []byte("event_tags")
	networkTagsKey  = []byte("network_tags")
	workflowTagsKey = []byte("workflow_tags")
)

var stringCodec = indexedset.Codec[string]{
	Encode: func(s string) []byte { return []byte(s) },
	Decode: func(b []byte) (string, error) { return string(b), nil },
}

// Set is one of the three tag sets plus the cascade hooks that run after
// a successful removal.
type Set struct {
	set *indexedset.Set[string]
}

func open(db *bolt.DB, storageKey []byte) (*Set, error) {
	s, err := indexedset.Open(db, metaBucket, storageKey, stringCodec)
	if err != nil {
		return nil, err
	}
	return &Set{set: s}, nil
}

func (s *Set) Insert(tag string) (uint32, error) { return s.set.Insert(tag) }
func (s *Set) Update(id uint32, tag string) error { return s.set.Update(id, tag) }
func (s *Set) GetByID(id uint32) (string, error) { return s.set.GetByID(id) }
func (s *Set) Count() (int, error) { return s.set.Count() }

// Tags returns every active tag string in ID order.
func (s *Set) Tags() ([]string, error) {
	_, values, err := s.set.Items()
	return values, err
}

// EventTagCleanup is the caller-supplied cascade run by
// EventTags.RemoveEventTag after the tag ID is deactivated: it must strip
// id from every triage response's tag references before clear_inactive
// reclaims it.
type EventTagCleanup func(tagID uint32) error

// NetworkTagCleanup is the caller-supplied cascade run by
// NetworkTags.RemoveNetworkTag: it must sweep networks referencing id.
type NetworkTagCleanup func(tagID uint32) error

// EventTags is the event tag set: removal cascades into triage responses.
type EventTags struct{ *Set }

// OpenEventTags wraps the event_tags key.
func OpenEventTags(db *bolt.DB) (*EventTags, error) {
	s, err := open(db, eventTagsKey)
	if err != nil {
		return nil, err
	}
	return &EventTags{Set: s}, nil
}

// RemoveEventTag deactivates id, runs cleanup against triage responses,
// then reclaims the ID. The cascade is a callback because triage
// responses live outside this package; between the deactivation and the
// reclaim, the cleanup can still observe that id named this tag.
func (s *EventTags) RemoveEventTag(id uint32, cleanup EventTagCleanup) (string, error) {
	tag, err := s.set.Deactivate(id)
	if err != nil {
		return "", err
	}
	if cleanup != nil {
		if err := cleanup(id); err != nil {
			return "", err
		}
	}
	if err := s.set.ClearInactive(); err != nil {
		return "", err
	}
	return tag, nil
}

// NetworkTags is the network tag set: removal cascades into networks.
type NetworkTags struct{ *Set }

// OpenNetworkTags wraps the network_tags key.
func OpenNetworkTags(db *bolt.DB) (*NetworkTags, error) {
	s, err := open(db, networkTagsKey)
	if err != nil {
		return nil, err
	}
	return &NetworkTags{Set: s}, nil
}

// RemoveNetworkTag deactivates id, sweeps networks referencing it, then
// reclaims the ID.
func (s *NetworkTags) RemoveNetworkTag(id uint32, cleanup NetworkTagCleanup) (string, error) {
	tag, err := s.set.Deactivate(id)
	if err != nil {
		return "", err
	}
	if cleanup != nil {
		if err := cleanup(id); err != nil {
			return "", err
		}
	}
	if err := s.set.ClearInactive(); err != nil {
		return "", err
	}
	return tag, nil
}

// WorkflowTags is the workflow tag set: removal is non-cascading.
type WorkflowTags struct{ *Set }

// OpenWorkflowTags wraps the workflow_tags key.
func OpenWorkflowTags(db *bolt.DB) (*WorkflowTags, error) {
	s, err := open(db, workflowTagsKey)
	if err != nil {
		return nil, err
	}
	return &WorkflowTags{Set: s}, nil
}

// RemoveWorkflowTag deactivates id and immediately reclaims it; there is
// no external table to sweep.
func (s *WorkflowTags) RemoveWorkflowTag(id uint32) (string, error) {
	tag, err := s.set.Deactivate(id)
	if err != nil {
		return "", err
	}
	if err := s.set.ClearInactive(); err != nil {
		return "", err
	}
	return tag, nil
}
