// Package ripple is the transactional coordinator: the write path that
// binds the change log, the merge core, and a materializer into one
// atomic unit, and the read path that pulls committed changes back out
// by cursor. See spec §4.6.
package ripple

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eckerlein/rippledb/change"
	"github.com/eckerlein/rippledb/changelog"
	"github.com/eckerlein/rippledb/idempotency"
	"github.com/eckerlein/rippledb/materializer"
	"github.com/eckerlein/rippledb/merge"
)

// ErrTransactionAborted is the umbrella error returned when any step
// of an Append fails after the transaction has begun: the caller sees
// one failure with no partial effects. See spec §7.
var ErrTransactionAborted = fmt.Errorf("ripple: transaction aborted")

// errDuplicateIdempotencyKey signals a benign duplicate found inside
// the transaction's critical section; Append translates it back into
// accepted: 0 rather than surfacing it as a failure.
var errDuplicateIdempotencyKey = fmt.Errorf("ripple: duplicate idempotency key")

// Transactor is the atomicity boundary a backend provides: fn runs
// with the backend's Log, Materializer, and Idempotency mutated
// in-place, and the backend rolls everything back if fn returns an
// error. memorystore.Backend and badgerstore.Backend both implement
// this shape.
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// AppendRequest is one write-path call. See spec §6.1.
type AppendRequest struct {
	Stream         string
	Changes        []change.Change
	IdempotencyKey string // optional; empty means no dedupe
}

// AppendResult reports how many changes were accepted. Accepted == 0
// with a nil error signals a duplicate IdempotencyKey, per spec §7
// ("IdempotencyConflict ... not an error").
type AppendResult struct {
	Accepted uint32
}

// PullRequest is one read-path call. See spec §6.1.
type PullRequest struct {
	Stream string
	Cursor string // opaque; "" means from the beginning
	Limit  uint32 // 0 means changelog.DefaultLimit
}

// PullResponse carries the page of changes plus the cursor to resume
// from on the next call.
type PullResponse struct {
	Changes    []change.Change
	NextCursor string
}

// Coordinator is the spec §4.6 coordinate_append procedure plus pull,
// wired against a Transactor, a changelog.Log, an idempotency.Store,
// and an optional materializer.Materializer.
type Coordinator struct {
	tx       Transactor
	log      changelog.Log
	idem     idempotency.Store
	material materializer.Materializer // nil means no materialization step
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaterializer attaches a materializer; without one, Append only
// writes to the change log.
func WithMaterializer(m materializer.Materializer) Option {
	return func(c *Coordinator) { c.material = m }
}

// WithLogger sets the logger. If nil, slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator over tx, log, and idem.
func New(tx Transactor, log changelog.Log, idem idempotency.Store, opts ...Option) *Coordinator {
	c := &Coordinator{tx: tx, log: log, idem: idem, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewIdempotencyKey returns a fresh random key for callers that don't
// derive one from their own request.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// Append runs spec §4.6's coordinate_append: the IdempotencyKey
// existence check and insert happen inside the same transaction as
// the rest of the batch, so a duplicate key short-circuits to
// accepted: 0 with no possibility of two concurrent callers both
// observing "not found". Otherwise every change is appended to the
// log in order and, if a materializer is attached, folded through the
// merge core in one transaction. The whole batch — append plus
// merge-core pass — applies atomically, mirroring SPEC_FULL.md's
// "resolved-table style batching".
func (c *Coordinator) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	if len(req.Changes) == 0 {
		return AppendResult{}, nil
	}
	for _, ch := range req.Changes {
		if err := ch.Validate(); err != nil {
			return AppendResult{}, err
		}
	}

	ordered := changelog.SortForApply(req.Changes)

	var lastSeq uint64
	err := c.tx.Transact(ctx, func(ctx context.Context) error {
		// Check-and-insert must happen inside the same critical section
		// a concurrent Append for the same (stream, idempotencyKey)
		// serializes against, per spec §4.6's "if idempotencyKey and
		// exists(...): rollback; return" running after begin_tx(), not
		// before it.
		if req.IdempotencyKey != "" {
			rec, found, err := c.idem.Get(ctx, req.Stream, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("idempotency lookup: %w", err)
			}
			if found {
				c.logger.Warn("ripple: duplicate idempotency key",
					slog.String("stream", req.Stream), slog.String("key", req.IdempotencyKey),
					slog.Uint64("lastSeq", rec.LastSeq))
				return errDuplicateIdempotencyKey
			}
			if err := c.idem.Put(ctx, idempotency.Record{Stream: req.Stream, IdempotencyKey: req.IdempotencyKey, LastSeq: 0}); err != nil {
				return err
			}
		}

		seq, err := c.log.Append(ctx, req.Stream, req.Changes)
		if err != nil {
			return fmt.Errorf("%w: %v", changelog.ErrLogAppendFailed, err)
		}
		lastSeq = seq

		if req.IdempotencyKey != "" {
			if err := c.idem.Put(ctx, idempotency.Record{Stream: req.Stream, IdempotencyKey: req.IdempotencyKey, LastSeq: seq}); err != nil {
				return err
			}
		}

		if c.material == nil {
			return nil
		}
		for _, ch := range ordered {
			if err := c.applyOne(ctx, ch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateIdempotencyKey) {
			return AppendResult{Accepted: 0}, nil
		}
		c.logger.Error("ripple: append aborted", slog.String("stream", req.Stream), slog.Any("err", err))
		if errors.Is(err, ErrTransactionAborted) {
			return AppendResult{}, err
		}
		return AppendResult{}, fmt.Errorf("%w: %v", ErrTransactionAborted, err)
	}

	c.logger.Info("ripple: append committed",
		slog.String("stream", req.Stream), slog.Int("accepted", len(req.Changes)), slog.Uint64("lastSeq", lastSeq))
	return AppendResult{Accepted: uint32(len(req.Changes))}, nil
}

func (c *Coordinator) applyOne(ctx context.Context, ch change.Change) error {
	prior, err := c.material.Load(ctx, ch.Entity, ch.EntityID)
	if err != nil {
		return fmt.Errorf("%w: load %s/%s: %v", materializer.ErrMaterializeFailed, ch.Entity, ch.EntityID, err)
	}

	next, outcome := merge.Merge(prior, ch)

	switch outcome {
	case merge.Saved:
		if err := c.material.Save(ctx, ch.Entity, ch.EntityID, next); err != nil {
			return fmt.Errorf("%w: save %s/%s: %v", materializer.ErrMaterializeFailed, ch.Entity, ch.EntityID, err)
		}
	case merge.Removed:
		if err := c.material.Remove(ctx, ch.Entity, ch.EntityID, next); err != nil {
			return fmt.Errorf("%w: remove %s/%s: %v", materializer.ErrMaterializeFailed, ch.Entity, ch.EntityID, err)
		}
	case merge.Noop:
		c.logger.Warn("ripple: change swallowed as noop",
			slog.String("entity", ch.Entity), slog.String("entityId", ch.EntityID))
	}
	return nil
}

// Pull runs spec §4.4's pull: entries with seq > decodeCursor(cursor),
// ascending, capped at limit (default changelog.DefaultLimit).
func (c *Coordinator) Pull(ctx context.Context, req PullRequest) (PullResponse, error) {
	afterSeq := changelog.DecodeCursor(req.Cursor)
	entries, err := c.log.Since(ctx, req.Stream, afterSeq, req.Limit)
	if err != nil {
		return PullResponse{}, fmt.Errorf("%w: %v", changelog.ErrLogPullFailed, err)
	}
	if len(entries) == 0 {
		return PullResponse{Changes: nil, NextCursor: req.Cursor}, nil
	}

	changes := make([]change.Change, len(entries))
	for i, e := range entries {
		changes[i] = e.Change
	}
	return PullResponse{
		Changes:    changes,
		NextCursor: changelog.EncodeCursor(entries[len(entries)-1].Seq),
	}, nil
}

// PullStreams pulls several streams concurrently, one goroutine per
// stream, matching spec §5's "MAY parallelize across streams"
// allowance. The returned map is keyed by stream name; if any pull
// fails, PullStreams returns the first error and an incomplete map.
func (c *Coordinator) PullStreams(ctx context.Context, reqs []PullRequest) (map[string]PullResponse, error) {
	out := make(map[string]PullResponse, len(reqs))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			resp, err := c.Pull(ctx, req)
			if err != nil {
				return err
			}
			mu.Lock()
			out[req.Stream] = resp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
