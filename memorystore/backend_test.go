package memorystore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/idempotency"
	"github.com/eckerlein/rippledb/merge"
)

func TestBackendTransactCommits(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()

	c := change.MakeUpsert(change.UpsertParams{
		Entity: "widget", EntityID: "w1",
		Patch: map[string]any{"name": "a"},
	})

	err := b.Transact(ctx, func(ctx context.Context) error {
		if _, err := b.Log.Append(ctx, "s1", []change.Change{c}); err != nil {
			return err
		}
		return b.Materializer.Save(ctx, "widget", "w1", merge.State{Values: map[string]any{"name": "a"}})
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if got := b.Log.Len("s1"); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	st, err := b.Materializer.Load(ctx, "widget", "w1")
	if err != nil || st == nil {
		t.Fatalf("Load: %v, %v", st, err)
	}
}

func TestBackendTransactRollsBackOnError(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()

	c := change.MakeUpsert(change.UpsertParams{
		Entity: "widget", EntityID: "w1",
		Patch: map[string]any{"name": "a"},
	})
	// Seed one committed entry first.
	if err := b.Transact(ctx, func(ctx context.Context) error {
		_, err := b.Log.Append(ctx, "s1", []change.Change{c})
		return err
	}); err != nil {
		t.Fatalf("seed Transact: %v", err)
	}

	boom := errors.New("boom")
	err := b.Transact(ctx, func(ctx context.Context) error {
		if _, err := b.Log.Append(ctx, "s1", []change.Change{c}); err != nil {
			return err
		}
		if _, err := b.Log.Append(ctx, "s2-new", []change.Change{c}); err != nil {
			return err
		}
		if err := b.Materializer.Save(ctx, "widget", "w1", merge.State{Values: map[string]any{"name": "a"}}); err != nil {
			return err
		}
		if err := b.Idempotency.Put(ctx, idempotency.Record{Stream: "s1", IdempotencyKey: "k1", LastSeq: 2}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	if got := b.Log.Len("s1"); got != 1 {
		t.Fatalf("s1 Len after rollback = %d, want 1", got)
	}
	if got := b.Log.Len("s2-new"); got != 0 {
		t.Fatalf("s2-new Len after rollback = %d, want 0 (stream should not exist)", got)
	}
	if _, ok := b.Log.streams["s2-new"]; ok {
		t.Fatalf("s2-new stream should have been dropped on rollback")
	}
	if st, err := b.Materializer.Load(ctx, "widget", "w1"); err != nil || st != nil {
		t.Fatalf("Materializer.Load after rollback = %v, %v, want nil, nil", st, err)
	}
	if _, found, err := b.Idempotency.Get(ctx, "s1", "k1"); err != nil || found {
		t.Fatalf("Idempotency.Get after rollback found=%v, want false", found)
	}
}

func TestBackendTransact_Concurrent(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 100

	// Concurrent transactions, each appending one change to one of 26 shared streams.
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := change.MakeUpsert(change.UpsertParams{
				Entity: "widget", EntityID: "w1",
				Patch: map[string]any{"i": i},
			})
			stream := string(rune('a' + i%26))
			b.Transact(ctx, func(ctx context.Context) error {
				_, err := b.Log.Append(ctx, stream, []change.Change{c})
				return err
			})
		}(i)
	}

	// Concurrent reads through the same Backend.
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stream := string(rune('a' + i%26))
			b.Log.Since(ctx, stream, 0, 1000)
		}(i)
	}

	wg.Wait()

	var total int
	for c := 'a'; c < 'a'+26; c++ {
		total += b.Log.Len(string(c))
	}
	if total != n {
		t.Errorf("expected %d total entries across streams, got %d", n, total)
	}
}

// TestBackendTransact_ConcurrentIdempotencyCheckAndInsertIsAtomic is the
// direct regression test for the check-and-insert race: many concurrent
// transactions race to claim the same idempotency key, and exactly one
// of them may observe "not found" and win.
func TestBackendTransact_ConcurrentIdempotencyCheckAndInsertIsAtomic(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()

	var wg sync.WaitGroup
	var winners int
	var mu sync.Mutex
	const n = 50

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Transact(ctx, func(ctx context.Context) error {
				_, found, err := b.Idempotency.Get(ctx, "s1", "k1")
				if err != nil {
					return err
				}
				if found {
					return errDuplicate
				}
				return b.Idempotency.Put(ctx, idempotency.Record{Stream: "s1", IdempotencyKey: "k1", LastSeq: 1})
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, errDuplicate) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}

var errDuplicate = errors.New("duplicate")
