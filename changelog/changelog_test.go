package changelog

import (
	"testing"

	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/hlc"
)

func TestEncodeDecodeCursorRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 2, 5, 1_000_000} {
		got := DecodeCursor(EncodeCursor(n))
		if got != n {
			t.Errorf("round trip mismatch for %d: got %d", n, got)
		}
	}
}

func TestDecodeCursorEdgeCases(t *testing.T) {
	cases := map[string]uint64{
		"":      0,
		"0":     0,
		"-5":    0,
		"abc":   0,
		"3.9":   3,
		"3.001": 3,
	}
	for input, want := range cases {
		got := DecodeCursor(input)
		if got != want {
			t.Errorf("DecodeCursor(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestSortForApplyOrdersByEntityIDThenHLC(t *testing.T) {
	mk := func(entity, id string, wallMs uint64) change.Change {
		return change.MakeUpsert(change.UpsertParams{
			Stream: "s", Entity: entity, EntityID: id,
			Patch: map[string]any{"x": 1},
			HLC:   hlc.HLC{WallMs: wallMs, NodeID: "n1"},
		})
	}

	in := []change.Change{
		mk("todos", "t1", 200),
		mk("todos", "t1", 100),
		mk("users", "u1", 50),
	}
	out := SortForApply(in)

	if out[0].Entity != "todos" || out[0].HLC.WallMs != 100 {
		t.Errorf("expected todos/t1@100 first, got %+v", out[0])
	}
	if out[1].Entity != "todos" || out[1].HLC.WallMs != 200 {
		t.Errorf("expected todos/t1@200 second, got %+v", out[1])
	}
	if out[2].Entity != "users" {
		t.Errorf("expected users/u1 last, got %+v", out[2])
	}

	// Original slice must be untouched.
	if in[0].HLC.WallMs != 200 {
		t.Errorf("SortForApply mutated its input")
	}
}
