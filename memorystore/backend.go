package memorystore

import (
	"context"
	"sync"

	"github.com/eckerlein/rippledb/changelog"
)

// Backend bundles a Log, a Materializer, and an Idempotency store
// behind a single Transact call that gives the coordinator an atomic
// unit to build on, emulating the transaction a real database would
// provide: snapshot everything, run the callback, and roll back to
// the snapshot on error.
type Backend struct {
	mu sync.Mutex

	Log          *Log
	Materializer *Materializer
	Idempotency  *Idempotency
}

// NewBackend creates a ready-to-use in-memory Backend.
func NewBackend() *Backend {
	return &Backend{
		Log:          NewLog(),
		Materializer: NewMaterializer(),
		Idempotency:  NewIdempotency(),
	}
}

// Transact serializes callers (an in-memory store has no finer-grained
// transaction isolation to offer) and rolls all three components back
// to their pre-call state if fn returns an error. Streams touched for
// the first time inside fn are dropped entirely on rollback.
func (b *Backend) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	logStreams := b.Log.streamNames()
	logSnap := make(map[string][]changelog.Entry, len(logStreams))
	for _, stream := range logStreams {
		logSnap[stream] = b.Log.snapshot(stream)
	}
	stateSnap := b.Materializer.snapshot()
	idemSnap := b.Idempotency.snapshot()

	if err := fn(ctx); err != nil {
		b.rollbackLog(logSnap)
		b.Materializer.restore(stateSnap)
		b.Idempotency.restore(idemSnap)
		return err
	}
	return nil
}

// rollbackLog restores every stream to its pre-transaction contents,
// deleting streams that didn't exist before the transaction started.
func (b *Backend) rollbackLog(before map[string][]changelog.Entry) {
	b.Log.mu.Lock()
	defer b.Log.mu.Unlock()

	for stream := range b.Log.streams {
		if _, existed := before[stream]; !existed {
			delete(b.Log.streams, stream)
		}
	}
	for stream, entries := range before {
		b.Log.streams[stream] = entries
	}
}
