package ripple

import (
	"context"
	"testing"

	"github.com/eckerlein/rippledb/badgerstore"
	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/hlc"
)

func TestCoordinatorOverBadgerBackend(t *testing.T) {
	b, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	c := New(b, b, b, WithMaterializer(b))
	ctx := context.Background()

	h, err := hlc.Parse("1:0:n1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ch := change.MakeUpsert(change.UpsertParams{
		Stream: "s1", Entity: "todos", EntityID: "t1",
		Patch: map[string]any{"title": "a"}, HLC: h,
	})

	res, err := c.Append(ctx, AppendRequest{Stream: "s1", Changes: []change.Change{ch}})
	if err != nil || res.Accepted != 1 {
		t.Fatalf("Append = %+v, %v", res, err)
	}

	pulled, err := c.Pull(ctx, PullRequest{Stream: "s1"})
	if err != nil || len(pulled.Changes) != 1 {
		t.Fatalf("Pull = %+v, %v", pulled, err)
	}
}
