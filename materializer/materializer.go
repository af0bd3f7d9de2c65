// Package materializer defines the abstract load/save/remove contract
// any backing store must satisfy to host the derived materialized
// state, plus the two-table (tags + domain) row shapes described in
// spec §4.5.
package materializer

import (
	"context"
	"fmt"

	"github.com/eckerlein/rippledb/merge"
)

// Materializer applies merge-core results to a backing store. ctx is
// a transaction handle passed down from the coordinator; a
// Materializer MUST NOT open its own transactions.
type Materializer interface {
	// Load returns the current state for (entity, id), or nil if the
	// entity has never been seen by this backend.
	Load(ctx context.Context, entity, id string) (*merge.State, error)

	// Save upserts the tags row and, if entity has a domain-table
	// mapping, the domain row.
	Save(ctx context.Context, entity, id string, state merge.State) error

	// Remove marks the tags row deleted with state.DeletedTag set.
	// Whether the domain row is deleted or retained is
	// backend-configurable but must be consistent.
	Remove(ctx context.Context, entity, id string, state merge.State) error
}

// EntityMaterializer is implemented by backends that can also persist
// directly by entity, bypassing the generic Save/Remove dispatch —
// the optional saveEntity hook spec §4.4(d) alludes to for backends
// that keep a richer per-entity representation than the generic
// two-table layout.
type EntityMaterializer interface {
	Materializer
	SaveEntity(ctx context.Context, entity, id string, state merge.State) error
}

// ErrUnknownEntity is returned when a domain-table write is attempted
// for an entity absent from the backend's schema descriptor.
var ErrUnknownEntity = fmt.Errorf("materializer: unknown entity")

// ErrMaterializeFailed wraps a backend I/O failure while persisting a
// merge-core result.
var ErrMaterializeFailed = fmt.Errorf("materializer: failed")

// TagsRow is the canonical tags-table row shape (spec §6.3). Backends
// that store tags as JSON text serialize/deserialize through this
// shape; backends with richer native structure may skip it.
type TagsRow struct {
	Entity     string
	ID         string
	Data       []byte // JSON-encoded State.Values
	Tags       []byte // JSON-encoded State.Tags (field -> HLC text)
	Deleted    bool
	DeletedTag *string // HLC text, nil if never deleted
}
