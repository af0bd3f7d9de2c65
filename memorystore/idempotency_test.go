package memorystore

import (
	"context"
	"sync"
	"testing"

	"github.com/eckerlein/rippledb/idempotency"
)

func TestIdempotency_Concurrent(t *testing.T) {
	i := NewIdempotency()
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 100

	// Concurrent puts, one key each.
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			key := string(rune('a' + k%26))
			i.Put(ctx, idempotency.Record{Stream: "s1", IdempotencyKey: key, LastSeq: uint64(k)})
		}(k)
	}

	// Concurrent gets.
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			key := string(rune('a' + k%26))
			i.Get(ctx, "s1", key)
		}(k)
	}

	wg.Wait()

	if _, found, err := i.Get(ctx, "s1", "a"); err != nil || !found {
		t.Errorf("Get(s1, a) found=%v, err=%v, want true, nil", found, err)
	}
}
