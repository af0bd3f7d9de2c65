// Package idempotency defines the at-most-once record a Log backend
// consults before accepting an append with a caller-supplied key. See
// spec §3.6, §6.5.
package idempotency

import "context"

// Record is one row of the idempotency table.
type Record struct {
	Stream         string
	IdempotencyKey string
	LastSeq        uint64
}

// Store is the composite-keyed (stream, idempotencyKey) -> lastSeq
// table a Log backend consults. Implementations must serialize
// concurrent Put calls for the same key so uniqueness holds; pruning
// is out of scope (spec §3.6) and, if added by a deployment, must not
// break the at-most-once guarantee within its retention window.
type Store interface {
	// Get looks up a record, reporting found=false if none exists.
	Get(ctx context.Context, stream, key string) (rec Record, found bool, err error)

	// Put inserts or updates a record.
	Put(ctx context.Context, rec Record) error
}
