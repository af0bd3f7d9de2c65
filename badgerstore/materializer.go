package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/eckerlein/rippledb/materializer"
	"github.com/eckerlein/rippledb/merge"
	"github.com/eckerlein/rippledb/schema"
)

var _ materializer.Materializer = (*Backend)(nil)

// Load reads the tags row for (entity, id) and decodes it into a
// merge.State, returning nil if the entity has never been seen.
func (b *Backend) Load(ctx context.Context, entity, id string) (*merge.State, error) {
	var state *merge.State
	err := b.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(tagsKey(entity, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var row materializer.TagsRow
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &row) }); err != nil {
			return err
		}
		s, err := materializer.DecodeTagsRow(row)
		if err != nil {
			return err
		}
		state = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load %s/%s: %v", materializer.ErrMaterializeFailed, entity, id, err)
	}
	return state, nil
}

// Save upserts the tags row and, as the domain-table projection, the
// entity's current values under a separate key so predicate queries
// don't need to decode the tags JSON blob.
func (b *Backend) Save(ctx context.Context, entity, id string, state merge.State) error {
	txn, err := b.mustTxn(ctx)
	if err != nil {
		return err
	}
	if err := b.checkKnownEntity(entity); err != nil {
		return err
	}

	row, err := materializer.EncodeTagsRow(entity, id, state)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%w: encode tags row: %v", materializer.ErrMaterializeFailed, err)
	}
	if err := txn.Set(tagsKey(entity, id), payload); err != nil {
		return fmt.Errorf("%w: %v", materializer.ErrMaterializeFailed, err)
	}

	domain, err := json.Marshal(b.coerceDomainValues(entity, state.Values))
	if err != nil {
		return fmt.Errorf("%w: encode domain row: %v", materializer.ErrMaterializeFailed, err)
	}
	if err := txn.Set(domainKey(entity, id), domain); err != nil {
		return fmt.Errorf("%w: %v", materializer.ErrMaterializeFailed, err)
	}
	return nil
}

// checkKnownEntity enforces spec §7's UnknownEntity error when a
// schema descriptor is attached; without one, every entity is allowed
// (the core does not require a descriptor — see spec §3.2).
func (b *Backend) checkKnownEntity(entity string) error {
	if b.schema == nil {
		return nil
	}
	if !b.schema.Known(entity) {
		return fmt.Errorf("%w: %q", materializer.ErrUnknownEntity, entity)
	}
	return nil
}

// coerceDomainValues applies the backend-appropriate coercions spec
// §4.5 documents for stores without native booleans: booleans become
// 0/1. Enum and string fields pass through unchanged; badger's value
// encoding is JSON, which already represents numbers and strings
// natively.
func (b *Backend) coerceDomainValues(entity string, values map[string]any) map[string]any {
	if b.schema == nil {
		return values
	}
	ent, ok := b.schema.Entity(entity)
	if !ok {
		return values
	}
	coerced := make(map[string]any, len(values))
	for field, value := range values {
		fd, ok := ent.Field(field)
		if ok && fd.Type == schema.Boolean {
			if v, isBool := value.(bool); isBool {
				if v {
					coerced[field] = 1
				} else {
					coerced[field] = 0
				}
				continue
			}
		}
		coerced[field] = value
	}
	return coerced
}

// domainValues reads back the domain-table projection for (entity,
// id) directly, bypassing the tags-row decode — the predicate-query
// path spec §2 describes ("Data flow (state read)"), for callers that
// only need the latest values, not tags/tombstone metadata.
func (b *Backend) domainValues(ctx context.Context, entity, id string) (map[string]any, error) {
	values := map[string]any{}
	err := b.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(domainKey(entity, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &values) })
	})
	if err != nil {
		return nil, fmt.Errorf("%w: domain read %s/%s: %v", materializer.ErrMaterializeFailed, entity, id, err)
	}
	return values, nil
}

// Remove marks the tags row deleted and drops the domain-table
// projection row: this backend chooses to delete the domain row on
// tombstone rather than retain it, per spec §4.5's "backend-configurable
// but must be consistent" allowance.
func (b *Backend) Remove(ctx context.Context, entity, id string, state merge.State) error {
	txn, err := b.mustTxn(ctx)
	if err != nil {
		return err
	}
	if err := b.checkKnownEntity(entity); err != nil {
		return err
	}

	row, err := materializer.EncodeTagsRow(entity, id, state)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%w: encode tags row: %v", materializer.ErrMaterializeFailed, err)
	}
	if err := txn.Set(tagsKey(entity, id), payload); err != nil {
		return fmt.Errorf("%w: %v", materializer.ErrMaterializeFailed, err)
	}
	if err := txn.Delete(domainKey(entity, id)); err != nil && err != badger.ErrKeyNotFound {
		return fmt.Errorf("%w: drop domain row: %v", materializer.ErrMaterializeFailed, err)
	}
	return nil
}
