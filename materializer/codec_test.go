package materializer

import (
	"testing"

	"github.com/eckerlein/rippledb/hlc"
	"github.com/eckerlein/rippledb/merge"
)

func TestEncodeDecodeTagsRowRoundTrip(t *testing.T) {
	tag := hlc.HLC{WallMs: 100, Counter: 1, NodeID: "n1"}
	deletedTag := hlc.HLC{WallMs: 200, NodeID: "n2"}
	state := merge.State{
		Values:     map[string]any{"title": "Buy milk", "done": false},
		Tags:       map[string]hlc.HLC{"title": tag, "done": tag},
		Deleted:    true,
		DeletedTag: &deletedTag,
	}

	row, err := EncodeTagsRow("todos", "t1", state)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if row.Entity != "todos" || row.ID != "t1" || !row.Deleted {
		t.Errorf("unexpected row metadata: %+v", row)
	}

	got, err := DecodeTagsRow(row)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Values["title"] != "Buy milk" || got.Values["done"] != false {
		t.Errorf("unexpected decoded values: %+v", got.Values)
	}
	if got.Tags["title"] != tag {
		t.Errorf("unexpected decoded tag: %v", got.Tags["title"])
	}
	if !got.Deleted || got.DeletedTag == nil || *got.DeletedTag != deletedTag {
		t.Errorf("unexpected decoded tombstone: %+v", got)
	}
}

func TestEncodeDecodeTagsRowNoTombstone(t *testing.T) {
	state := merge.State{Values: map[string]any{"a": 1}, Tags: map[string]hlc.HLC{"a": {WallMs: 1, NodeID: "n1"}}}
	row, err := EncodeTagsRow("e", "1", state)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if row.DeletedTag != nil {
		t.Fatalf("expected nil DeletedTag, got %v", row.DeletedTag)
	}
	got, err := DecodeTagsRow(row)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.DeletedTag != nil || got.Deleted {
		t.Errorf("expected non-deleted state, got %+v", got)
	}
}
