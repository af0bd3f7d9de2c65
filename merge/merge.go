// Package merge implements the pure last-writer-wins-per-field merge
// function that turns a prior materialized state plus an incoming
// Change into a next state, per spec §4.3.
package merge

import (
	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/hlc"
)

// Outcome classifies what Merge did to the state.
type Outcome string

const (
	Saved   Outcome = "saved"
	Removed Outcome = "removed"
	Noop    Outcome = "noop"
)

// State is the materialized, per-entity row described in spec §3.4.
type State struct {
	Values     map[string]any
	Tags       map[string]hlc.HLC
	Deleted    bool
	DeletedTag *hlc.HLC
}

// Clone returns a deep-enough copy of s for callers that need to
// mutate a returned state without affecting the original (backends
// use this to keep their stored copy immutable between transactions).
func (s State) Clone() State {
	values := make(map[string]any, len(s.Values))
	for k, v := range s.Values {
		values[k] = v
	}
	tags := make(map[string]hlc.HLC, len(s.Tags))
	for k, v := range s.Tags {
		tags[k] = v
	}
	var dt *hlc.HLC
	if s.DeletedTag != nil {
		cp := *s.DeletedTag
		dt = &cp
	}
	return State{Values: values, Tags: tags, Deleted: s.Deleted, DeletedTag: dt}
}

func empty() State {
	return State{Values: map[string]any{}, Tags: map[string]hlc.HLC{}}
}

// Merge applies incoming to prior (nil if the entity has never been
// seen) and returns the next state plus what happened. Merge is pure:
// it never fails and never touches storage. See spec §4.3.
func Merge(prior *State, incoming change.Change) (next State, outcome Outcome) {
	switch incoming.Kind {
	case change.Delete:
		return mergeDelete(prior, incoming)
	case change.Upsert:
		return mergeUpsert(prior, incoming)
	default:
		// Validate() should have rejected this earlier; treat as a noop
		// rather than panicking inside a supposedly-pure function.
		if prior == nil {
			return empty(), Noop
		}
		return prior.Clone(), Noop
	}
}

func mergeDelete(prior *State, incoming change.Change) (State, Outcome) {
	if prior == nil {
		return State{
			Values:     map[string]any{},
			Tags:       map[string]hlc.HLC{},
			Deleted:    true,
			DeletedTag: tagPtr(incoming.HLC),
		}, Removed
	}

	if prior.DeletedTag == nil || hlc.Compare(incoming.HLC, *prior.DeletedTag) > 0 {
		next := prior.Clone()
		next.Deleted = true
		next.DeletedTag = tagPtr(incoming.HLC)
		return next, Removed
	}

	// Older (or equal) delete than one already accepted: swallowed.
	return prior.Clone(), Noop
}

func mergeUpsert(prior *State, incoming change.Change) (State, Outcome) {
	var next State
	priorDeleted := prior != nil && prior.Deleted
	if prior == nil {
		next = empty()
	} else {
		next = prior.Clone()
	}

	var changedFields []string
	for field, value := range incoming.Patch {
		tag := incoming.Tags[field]
		existing, has := next.Tags[field]
		if !has || hlc.Compare(tag, existing) > 0 {
			next.Values[field] = value
			next.Tags[field] = tag
			changedFields = append(changedFields, field)
		}
	}

	if priorDeleted {
		revived := false
		for _, field := range changedFields {
			tag := incoming.Tags[field]
			if prior.DeletedTag == nil || hlc.Compare(tag, *prior.DeletedTag) > 0 {
				revived = true
				break
			}
		}
		if !revived {
			// No field beat the tombstone: the whole upsert is swallowed,
			// including the per-field LWW updates computed above.
			return prior.Clone(), Noop
		}
		next.Deleted = false
		// DeletedTag is retained (see DESIGN.md open-question decision) so a
		// late delete at or below the old tombstone is still swallowed in a
		// future merge; a delete above it re-tombstones the entity.
		return next, Saved
	}

	if len(changedFields) == 0 {
		if prior == nil {
			return empty(), Noop
		}
		return prior.Clone(), Noop
	}
	return next, Saved
}

func tagPtr(h hlc.HLC) *hlc.HLC {
	cp := h
	return &cp
}
