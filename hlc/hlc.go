// Package hlc implements the hybrid logical clock used to order
// Changes across the kernel: a triple of wall time, a tie-breaking
// counter, and the node that produced it.
package hlc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// HLC is an immutable hybrid logical clock value.
type HLC struct {
	WallMs  uint64
	Counter uint64
	NodeID  string
}

// Zero is the smallest possible HLC for a given node; useful as a
// sentinel "no delete yet" value.
func Zero(nodeID string) HLC {
	return HLC{NodeID: nodeID}
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than b, ordering first by WallMs, then Counter, then NodeID.
func Compare(a, b HLC) int {
	switch {
	case a.WallMs < b.WallMs:
		return -1
	case a.WallMs > b.WallMs:
		return 1
	}
	switch {
	case a.Counter < b.Counter:
		return -1
	case a.Counter > b.Counter:
		return 1
	}
	return strings.Compare(a.NodeID, b.NodeID)
}

// Less reports whether a strictly precedes b in the total order.
func Less(a, b HLC) bool { return Compare(a, b) < 0 }

// Format renders the canonical "<wallMs>:<counter>:<nodeId>" text form.
func Format(h HLC) string {
	return fmt.Sprintf("%d:%d:%s", h.WallMs, h.Counter, h.NodeID)
}

func (h HLC) String() string { return Format(h) }

// ErrInvalidHLC is returned by Parse when the input is not a
// well-formed HLC text encoding.
var ErrInvalidHLC = fmt.Errorf("hlc: invalid encoding")

// Parse decodes the canonical text form produced by Format. The shape
// must be exactly three colon-separated fields with numeric, finite
// wallMs and counter; the node id may not itself contain a colon.
func Parse(s string) (HLC, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return HLC{}, fmt.Errorf("%w: %q: want 3 colon-separated fields, got %d", ErrInvalidHLC, s, len(parts))
	}
	wallMs, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return HLC{}, fmt.Errorf("%w: %q: bad wallMs: %v", ErrInvalidHLC, s, err)
	}
	counter, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return HLC{}, fmt.Errorf("%w: %q: bad counter: %v", ErrInvalidHLC, s, err)
	}
	if parts[2] == "" {
		return HLC{}, fmt.Errorf("%w: %q: empty nodeId", ErrInvalidHLC, s)
	}
	return HLC{WallMs: wallMs, Counter: counter, NodeID: parts[2]}, nil
}

// NewNodeID returns a random node identifier suitable for a fresh HLC
// State. It never contains ':', satisfying the §3.1 invariant.
func NewNodeID() string {
	return uuid.New().String()
}

// State is the mutable per-node clock state described in spec §3.1.
// Callers MUST serialize their own access (e.g. behind a mutex or a
// single-writer goroutine); State is not safe for concurrent use.
type State struct {
	lastWallMs uint64
	counter    uint64
	nodeID     string
}

// New creates clock state for nodeID, initialized to (0, 0, nodeID).
func New(nodeID string) *State {
	return &State{nodeID: nodeID}
}

// NodeID returns the node identifier this state was created with.
func (s *State) NodeID() string { return s.nodeID }

// Tick produces a strictly monotonic local HLC for nowMs. If nowMs has
// advanced past the last observed wall time, the counter resets to 0;
// otherwise the counter increments so two ticks never compare equal.
func (s *State) Tick(nowMs uint64) HLC {
	if nowMs > s.lastWallMs {
		s.lastWallMs = nowMs
		s.counter = 0
	} else {
		s.counter++
	}
	return HLC{WallMs: s.lastWallMs, Counter: s.counter, NodeID: s.nodeID}
}

// Observe merges a remote HLC into local state, per spec §4.1. The
// result compares strictly greater than both the prior local HLC and
// remote.
func (s *State) Observe(remote HLC, nowMs uint64) HLC {
	w := max3(nowMs, s.lastWallMs, remote.WallMs)

	var counter uint64
	switch {
	case w == s.lastWallMs && w == remote.WallMs:
		counter = maxU64(s.counter, remote.Counter) + 1
	case w == s.lastWallMs:
		counter = s.counter + 1
	case w == remote.WallMs:
		counter = remote.Counter + 1
	default:
		counter = 0
	}

	s.lastWallMs = w
	s.counter = counter
	return HLC{WallMs: w, Counter: counter, NodeID: s.nodeID}
}

func max3(a, b, c uint64) uint64 {
	return maxU64(maxU64(a, b), c)
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// IsFinite reports whether a wall time value is representable; kept
// for callers that parse wall times from floating point sources
// before converting to the uint64 domain HLC uses internally.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
