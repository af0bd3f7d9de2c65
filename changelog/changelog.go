// Package changelog defines the append-only per-stream log contract:
// Entry, the Log interface backends must satisfy, and cursor
// encode/decode. See spec §3.5, §4.4.
package changelog

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/hlc"
)

// Entry is one committed row of the change log.
type Entry struct {
	Seq    uint64
	Stream string
	Change change.Change
}

// Log is the append/pull contract a backend must satisfy. A Log is
// shared across callers; atomicity is the backend's responsibility.
// Implementations MUST serialize appends within a stream so that Seq
// is a strict total order and idempotency-key uniqueness holds.
type Log interface {
	// Append writes entries for the given changes, assigning each the
	// next Seq for stream, and returns the last assigned Seq. Callers
	// that need idempotency or cross-entry atomicity with a
	// materializer use this through a Coordinator, not directly.
	Append(ctx context.Context, stream string, changes []change.Change) (lastSeq uint64, err error)

	// Since returns entries for stream with Seq > afterSeq, ascending,
	// at most limit entries.
	Since(ctx context.Context, stream string, afterSeq uint64, limit uint32) ([]Entry, error)

	// Cursor returns the highest Seq assigned so far for stream, or 0
	// if the stream has no entries.
	Cursor(ctx context.Context, stream string) (uint64, error)
}

// ErrLogAppendFailed wraps append-side backend I/O failures.
var ErrLogAppendFailed = fmt.Errorf("changelog: append failed")

// ErrLogPullFailed wraps read-side backend I/O failures.
var ErrLogPullFailed = fmt.Errorf("changelog: pull failed")

// DefaultLimit is the default page size for Since/pull when the
// caller does not specify one, per spec §4.4.
const DefaultLimit = 500

// EncodeCursor renders seq as the decimal string cursor token.
func EncodeCursor(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

// DecodeCursor parses a cursor token back into a seq. An empty,
// malformed, or negative cursor decodes to 0; a fractional-looking
// cursor (not expected from EncodeCursor, but tolerated from callers)
// floors to the integer part.
func DecodeCursor(cursor string) uint64 {
	if cursor == "" {
		return 0
	}
	if v, err := strconv.ParseUint(cursor, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(cursor, 64); err == nil && f >= 0 {
		return uint64(f)
	}
	return 0
}

// SortForApply stable-sorts changes by (entity, entityId, hlc) so a
// batch that arrives out of per-key HLC order still applies to the
// merge core in a deterministic, causally sound sequence. This is a
// supplement to spec.md (see SPEC_FULL.md) grounded on cdc-sink's
// internal/util/msort; it does not change per-entity merge semantics,
// only the order in which a careless batch producer's changes for the
// same entity are handed to the merge core.
func SortForApply(changes []change.Change) []change.Change {
	sorted := make([]change.Change, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return hlc.Less(a.HLC, b.HLC)
	})
	return sorted
}
