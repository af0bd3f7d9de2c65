package memorystore

import (
	"context"
	"sync"

	"github.com/eckerlein/rippledb/idempotency"
)

type idemKey struct {
	stream, key string
}

// Idempotency is an in-memory idempotency.Store.
type Idempotency struct {
	mu      sync.RWMutex
	records map[idemKey]idempotency.Record
}

// NewIdempotency creates an empty in-memory idempotency Store.
func NewIdempotency() *Idempotency {
	return &Idempotency{records: make(map[idemKey]idempotency.Record)}
}

func (i *Idempotency) Get(_ context.Context, stream, key string) (idempotency.Record, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	rec, ok := i.records[idemKey{stream, key}]
	return rec, ok, nil
}

func (i *Idempotency) Put(_ context.Context, rec idempotency.Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.records[idemKey{rec.Stream, rec.IdempotencyKey}] = rec
	return nil
}

func (i *Idempotency) snapshot() map[idemKey]idempotency.Record {
	i.mu.RLock()
	defer i.mu.RUnlock()
	cp := make(map[idemKey]idempotency.Record, len(i.records))
	for k, v := range i.records {
		cp[k] = v
	}
	return cp
}

func (i *Idempotency) restore(records map[idemKey]idempotency.Record) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.records = records
}
