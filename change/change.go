// Package change defines the Change data model: a typed upsert or
// delete against one entity instance, tagged per field with the HLC
// that accepted it.
package change

import (
	"encoding/json"
	"fmt"

	"github.com/eckerlein/rippledb/hlc"
)

// Kind distinguishes an upsert from a delete.
type Kind string

const (
	Upsert Kind = "upsert"
	Delete Kind = "delete"
)

// Change is a single mutation targeting one entity instance within a
// stream. See spec §3.3.
type Change struct {
	Stream   string
	Entity   string
	EntityID string
	Kind     Kind
	Patch    map[string]any
	Tags     map[string]hlc.HLC
	HLC      hlc.HLC
}

// ErrInvalidChange is returned by Validate when a Change violates the
// §3.3 invariants.
var ErrInvalidChange = fmt.Errorf("change: invalid")

// Validate checks the §3.3 invariants: an upsert's patch and tags key
// sets must match exactly; a delete must carry no patch or tags.
func (c Change) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("%w: empty stream", ErrInvalidChange)
	}
	if c.Entity == "" {
		return fmt.Errorf("%w: empty entity", ErrInvalidChange)
	}
	if c.EntityID == "" {
		return fmt.Errorf("%w: empty entityId", ErrInvalidChange)
	}
	switch c.Kind {
	case Upsert:
		if len(c.Patch) != len(c.Tags) {
			return fmt.Errorf("%w: upsert patch/tags key count mismatch (%d vs %d)", ErrInvalidChange, len(c.Patch), len(c.Tags))
		}
		for field := range c.Patch {
			if _, ok := c.Tags[field]; !ok {
				return fmt.Errorf("%w: field %q in patch has no tag", ErrInvalidChange, field)
			}
		}
	case Delete:
		if len(c.Patch) != 0 || len(c.Tags) != 0 {
			return fmt.Errorf("%w: delete must carry empty patch and tags", ErrInvalidChange)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidChange, c.Kind)
	}
	return nil
}

// UpsertParams are the named arguments to MakeUpsert.
type UpsertParams struct {
	Stream   string
	Entity   string
	EntityID string
	Patch    map[string]any
	HLC      hlc.HLC
	// Tags is optional; when nil every patched field is tagged with HLC.
	Tags map[string]hlc.HLC
}

// MakeUpsert builds an upsert Change. When Tags is omitted, every
// field in Patch is tagged with the change's HLC, per the §4.2
// construction convention.
func MakeUpsert(p UpsertParams) Change {
	tags := p.Tags
	if tags == nil {
		tags = make(map[string]hlc.HLC, len(p.Patch))
		for field := range p.Patch {
			tags[field] = p.HLC
		}
	}
	return Change{
		Stream:   p.Stream,
		Entity:   p.Entity,
		EntityID: p.EntityID,
		Kind:     Upsert,
		Patch:    p.Patch,
		Tags:     tags,
		HLC:      p.HLC,
	}
}

// DeleteParams are the named arguments to MakeDelete.
type DeleteParams struct {
	Stream   string
	Entity   string
	EntityID string
	HLC      hlc.HLC
}

// MakeDelete builds a tombstone Change with no patch or tags.
func MakeDelete(p DeleteParams) Change {
	return Change{
		Stream:   p.Stream,
		Entity:   p.Entity,
		EntityID: p.EntityID,
		Kind:     Delete,
		HLC:      p.HLC,
	}
}

// wireChange is the JSON encoding described in spec §6.2. Tags map to
// their HLC text form so that the log can store everything as plain
// JSON without a custom codec for hlc.HLC.
type wireChange struct {
	Stream   string            `json:"stream"`
	Entity   string            `json:"entity"`
	EntityID string            `json:"entityId"`
	Kind     string            `json:"kind"`
	Patch    map[string]any    `json:"patch"`
	Tags     map[string]string `json:"tags"`
	HLC      string            `json:"hlc"`
}

// MarshalJSON renders the §6.2 wire encoding.
func (c Change) MarshalJSON() ([]byte, error) {
	tags := make(map[string]string, len(c.Tags))
	for field, t := range c.Tags {
		tags[field] = hlc.Format(t)
	}
	patch := c.Patch
	if patch == nil {
		patch = map[string]any{}
	}
	return json.Marshal(wireChange{
		Stream:   c.Stream,
		Entity:   c.Entity,
		EntityID: c.EntityID,
		Kind:     string(c.Kind),
		Patch:    patch,
		Tags:     tags,
		HLC:      hlc.Format(c.HLC),
	})
}

// UnmarshalJSON parses the §6.2 wire encoding.
func (c *Change) UnmarshalJSON(data []byte) error {
	var w wireChange
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	h, err := hlc.Parse(w.HLC)
	if err != nil {
		return fmt.Errorf("change: decode hlc: %w", err)
	}
	tags := make(map[string]hlc.HLC, len(w.Tags))
	for field, s := range w.Tags {
		th, err := hlc.Parse(s)
		if err != nil {
			return fmt.Errorf("change: decode tag %q: %w", field, err)
		}
		tags[field] = th
	}
	*c = Change{
		Stream:   w.Stream,
		Entity:   w.Entity,
		EntityID: w.EntityID,
		Kind:     Kind(w.Kind),
		Patch:    w.Patch,
		Tags:     tags,
		HLC:      h,
	}
	return nil
}
