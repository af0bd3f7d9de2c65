package materializer

import (
	"encoding/json"
	"fmt"

	"github.com/eckerlein/rippledb/hlc"
	"github.com/eckerlein/rippledb/merge"
)

// EncodeTagsRow serializes a merge.State into the JSON-text tags-row
// shape used by both reference backends (spec §6.3).
func EncodeTagsRow(entity, id string, state merge.State) (TagsRow, error) {
	data, err := json.Marshal(state.Values)
	if err != nil {
		return TagsRow{}, fmt.Errorf("%w: encode values: %v", ErrMaterializeFailed, err)
	}

	tagText := make(map[string]string, len(state.Tags))
	for field, t := range state.Tags {
		tagText[field] = hlc.Format(t)
	}
	tags, err := json.Marshal(tagText)
	if err != nil {
		return TagsRow{}, fmt.Errorf("%w: encode tags: %v", ErrMaterializeFailed, err)
	}

	var deletedTag *string
	if state.DeletedTag != nil {
		s := hlc.Format(*state.DeletedTag)
		deletedTag = &s
	}

	return TagsRow{
		Entity:     entity,
		ID:         id,
		Data:       data,
		Tags:       tags,
		Deleted:    state.Deleted,
		DeletedTag: deletedTag,
	}, nil
}

// DecodeTagsRow parses a TagsRow back into a merge.State.
func DecodeTagsRow(row TagsRow) (merge.State, error) {
	values := map[string]any{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &values); err != nil {
			return merge.State{}, fmt.Errorf("%w: decode values: %v", ErrMaterializeFailed, err)
		}
	}

	tagText := map[string]string{}
	if len(row.Tags) > 0 {
		if err := json.Unmarshal(row.Tags, &tagText); err != nil {
			return merge.State{}, fmt.Errorf("%w: decode tags: %v", ErrMaterializeFailed, err)
		}
	}
	tags := make(map[string]hlc.HLC, len(tagText))
	for field, s := range tagText {
		h, err := hlc.Parse(s)
		if err != nil {
			return merge.State{}, fmt.Errorf("%w: decode tag %q: %v", ErrMaterializeFailed, field, err)
		}
		tags[field] = h
	}

	var deletedTag *hlc.HLC
	if row.DeletedTag != nil {
		h, err := hlc.Parse(*row.DeletedTag)
		if err != nil {
			return merge.State{}, fmt.Errorf("%w: decode deletedTag: %v", ErrMaterializeFailed, err)
		}
		deletedTag = &h
	}

	return merge.State{
		Values:     values,
		Tags:       tags,
		Deleted:    row.Deleted,
		DeletedTag: deletedTag,
	}, nil
}
