package memorystore

import (
	"context"
	"sync"
	"testing"

	"github.com/eckerlein/rippledb/change"
)

func TestLog_Concurrent(t *testing.T) {
	l := NewLog()
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 100

	// Concurrent appends, one change each, all to the same stream.
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := change.MakeUpsert(change.UpsertParams{
				Entity: "widget", EntityID: string(rune('a' + i%26)),
				Patch: map[string]any{"i": i},
			})
			l.Append(ctx, "s1", []change.Change{c})
		}(i)
	}

	// Concurrent reads.
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Since(ctx, "s1", 0, 1000)
			l.Cursor(ctx, "s1")
		}()
	}

	wg.Wait()

	if got := l.Len("s1"); got != n {
		t.Errorf("expected %d entries, got %d", n, got)
	}
}
