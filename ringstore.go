// Package ringstore implements a fixed-capacity circular buffer for
// time-stamped numeric samples.
//
// A Ring holds up to a fixed number of (timestamp, value) pairs. Appends
// are O(1); once the ring is full each append overwrites the oldest
// sample. Two read paths are provided: Last copies the most recent
// samples newest-first, and Range copies samples whose timestamp falls
// within an inclusive range, oldest-first. Neither read path allocates;
// callers supply the destination slice and its length bounds the result.
//
// The ring performs no internal synchronization and makes no concurrency
// guarantees. Callers must serialize all access to a Ring; see the
// internal/metrics package for a store that does exactly that.
//
// Timestamps are opaque int64 values (by convention Unix milliseconds).
// The ring never validates ordering: out-of-order and duplicate
// timestamps are stored verbatim, and Range relies only on the
// per-sample comparison start <= t <= end.
package ringstore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is returned by New when capacity is not positive.
	ErrInvalidCapacity = errors.New("ringstore: capacity must be positive")

	// ErrNilRing is returned by Append on a nil or closed Ring.
	ErrNilRing = errors.New("ringstore: nil ring")
)

// Sample is one stored (timestamp, value) pair.
type Sample struct {
	TimestampMs int64
	Value       float64
}

// Ring is a fixed-capacity circular buffer of samples.
//
// All methods tolerate a nil receiver: Append reports ErrNilRing, every
// other method returns zero. Ring is not safe for concurrent use.
type Ring struct {
	data     []Sample
	capacity int
	size     int // valid samples, 0 <= size <= capacity
	head     int // next write position
	tail     int // oldest sample once size == capacity
}

// New creates a Ring that holds up to capacity samples.
//
// The backing storage is allocated here, zeroed, and never grows or
// shrinks; this is the only allocation in the ring's lifetime. A
// capacity that is not positive yields ErrInvalidCapacity and no ring.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Ring{
		data:     make([]Sample, capacity),
		capacity: capacity,
	}, nil
}

// Append stores (tsMs, value) at the write cursor and advances it.
//
// While the ring is filling, size grows; once full, the oldest sample is
// overwritten and the tail cursor advances with it. Any timestamp and
// any float64 value (including NaN and infinities) are stored verbatim.
// The only failure is appending to a nil or closed ring, which mutates
// nothing.
func (r *Ring) Append(tsMs int64, value float64) error {
	if r == nil || r.data == nil {
		return ErrNilRing
	}

	r.data[r.head] = Sample{TimestampMs: tsMs, Value: value}
	r.head++
	if r.head == r.capacity {
		r.head = 0
	}

	if r.size < r.capacity {
		r.size++
	} else {
		// Full: the write above evicted the sample at tail.
		r.tail++
		if r.tail == r.capacity {
			r.tail = 0
		}
	}

	return nil
}

// Last copies the most recent samples into dst, newest first, and
// returns the number written: min(len(dst), Len()).
//
// A nil or empty ring, or an empty dst, yields 0. Last never allocates.
func (r *Ring) Last(dst []Sample) int {
	if r == nil || r.size == 0 || len(dst) == 0 {
		return 0
	}

	n := len(dst)
	if n > r.size {
		n = r.size
	}

	idx := r.head - 1
	if idx < 0 {
		idx = r.capacity - 1
	}
	for i := 0; i < n; i++ {
		dst[i] = r.data[idx]
		idx--
		if idx < 0 {
			idx = r.capacity - 1
		}
	}

	return n
}

// Range copies samples whose timestamp t satisfies startMs <= t <= endMs
// into dst, in chronological storage order (oldest first), and returns
// the number written.
//
// The scan starts at the oldest stored sample and visits every valid
// slot once, stopping early when dst is full; matches beyond len(dst)
// are silently dropped. An inverted range (startMs > endMs), a nil or
// empty ring, or an empty dst all yield 0. Range never allocates.
func (r *Ring) Range(startMs, endMs int64, dst []Sample) int {
	if r == nil || r.size == 0 || len(dst) == 0 || startMs > endMs {
		return 0
	}

	// Oldest sample: index 0 until the first wrap, tail afterwards.
	idx := 0
	if r.size == r.capacity {
		idx = r.tail
	}

	n := 0
	for i := 0; i < r.size; i++ {
		s := r.data[idx]
		if s.TimestampMs >= startMs && s.TimestampMs <= endMs {
			dst[n] = s
			n++
			if n == len(dst) {
				break
			}
		}
		idx++
		if idx == r.capacity {
			idx = 0
		}
	}

	return n
}

// Len returns the number of valid samples; 0 for a nil or closed ring.
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	return r.size
}

// Cap returns the fixed capacity set at construction; 0 for a nil or
// closed ring.
func (r *Ring) Cap() int {
	if r == nil {
		return 0
	}
	return r.capacity
}

// Clear discards all samples but keeps the backing storage, resetting
// the ring to its freshly constructed state. Safe on a nil ring.
func (r *Ring) Clear() {
	if r == nil || r.data == nil {
		return
	}
	clear(r.data)
	r.size = 0
	r.head = 0
	r.tail = 0
}

// Close releases the backing storage. After Close, Len and Cap report 0,
// queries return no samples and Append reports ErrNilRing. Close is
// idempotent and safe on a nil ring.
func (r *Ring) Close() {
	if r == nil {
		return
	}
	r.data = nil
	r.capacity = 0
	r.size = 0
	r.head = 0
	r.tail = 0
}
