// Package memorystore is the in-memory reference backend: a Log, a
// Materializer, and an idempotency Store, all backed by mutex-guarded
// maps. It exists for tests and for callers that want a pure-Go,
// non-durable kernel instance. See spec §2 "Reference backends".
package memorystore

import (
	"context"
	"sync"

	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/changelog"
)

// Log is an in-memory changelog.Log, one slice of entries per stream
// guarded by a single RWMutex — the same shape as the teacher's
// MemoryChangeLog.
type Log struct {
	mu      sync.RWMutex
	streams map[string][]changelog.Entry
}

// NewLog creates an empty in-memory Log.
func NewLog() *Log {
	return &Log{streams: make(map[string][]changelog.Entry)}
}

var _ changelog.Log = (*Log)(nil)

// Append assigns the next Seq per change and stores them in arrival
// order. It never fails; an in-memory backend has no I/O to fail on.
func (l *Log) Append(_ context.Context, stream string, changes []change.Change) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.streams[stream]
	seq := uint64(len(entries))
	for _, c := range changes {
		seq++
		entries = append(entries, changelog.Entry{Seq: seq, Stream: stream, Change: c})
	}
	l.streams[stream] = entries
	return seq, nil
}

// Since returns entries with Seq > afterSeq, ascending, capped at limit.
func (l *Log) Since(_ context.Context, stream string, afterSeq uint64, limit uint32) ([]changelog.Entry, error) {
	if limit == 0 {
		limit = changelog.DefaultLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.streams[stream]
	out := make([]changelog.Entry, 0, limit)
	for _, e := range entries {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if uint32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// Cursor returns the highest Seq assigned to stream so far.
func (l *Log) Cursor(_ context.Context, stream string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.streams[stream]
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].Seq, nil
}

// Len returns the number of entries stored for stream, for tests.
func (l *Log) Len(stream string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.streams[stream])
}

// streamNames returns the names of every stream with at least one
// entry, used by Backend.Transact to snapshot the whole Log.
func (l *Log) streamNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.streams))
	for name := range l.streams {
		names = append(names, name)
	}
	return names
}

// snapshot returns a shallow copy of a stream's entries, used by
// Backend.Transact to support transactional rollback on an in-memory Log.
func (l *Log) snapshot(stream string) []changelog.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]changelog.Entry(nil), l.streams[stream]...)
}

// restore replaces a stream's entries wholesale. Backend.Transact does
// not call it; its rollback goes through Backend.rollbackLog.
func (l *Log) restore(stream string, entries []changelog.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams[stream] = entries
}
