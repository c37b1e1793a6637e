package framering

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
)

var (
	ErrRingClosed     = errors.New("framering: ring is closed")
	ErrCursorClosed   = errors.New("framering: cursor is closed")
	ErrTimeout        = errors.New("framering: wait timed out")
	ErrBackpressure   = errors.New("framering: all slots pinned by readers")
	ErrCursorExists   = errors.New("framering: cursor id already subscribed")
	ErrFrameTooLarge  = errors.New("framering: frame exceeds slot capacity")
	ErrStaleWriteSlot = errors.New("framering: write slot handle is stale")
)

// Config sizes the slot arena.
type Config struct {
	// Slots is the number of pre-allocated buffers. Minimum 2, default 3:
	// one being filled, one being read, one spare to avoid lock-step
	// contention between producer and the fastest consumer.
	Slots int
	// SlotBytes is the capacity of each buffer, sized for the maximum
	// supported resolution.
	SlotBytes int
}

// slot is one reusable buffer plus its bookkeeping. All fields are guarded
// by the ring mutex.
type slot struct {
	buf        []byte
	n          int // valid bytes of the published frame
	generation uint64
	published  bool
	readers    int // pin count; >0 means a FrameRef is outstanding
	meta       frame.Frame
}

// Ring owns the slot store and distributes published frames to cursors.
type Ring struct {
	mu   sync.Mutex
	cond *sync.Cond // broadcast on publish, release, eviction and close

	slots   []slot
	nextSeq uint64
	closed  bool

	cursors map[string]*Cursor

	published    uint64
	evicted      uint64
	backpressure uint64
}

// New allocates the slot arena up front. Allocation failure here is the only
// fatal resource error in the pipeline, surfaced to the caller before any
// worker starts.
func New(cfg Config) (*Ring, error) {
	if cfg.Slots < 2 {
		return nil, fmt.Errorf("framering: at least 2 slots required (got %d)", cfg.Slots)
	}
	if cfg.SlotBytes <= 0 {
		return nil, fmt.Errorf("framering: slot capacity must be positive (got %d)", cfg.SlotBytes)
	}

	r := &Ring{
		slots:   make([]slot, cfg.Slots),
		cursors: make(map[string]*Cursor),
	}
	for i := range r.slots {
		r.slots[i].buf = make([]byte, cfg.SlotBytes)
	}
	r.cond = sync.NewCond(&r.mu)
	return r, nil
}

// WriteSlot is the producer's exclusive handle on one slot between acquire
// and publish.
type WriteSlot struct {
	ring *Ring
	idx  int
	gen  uint64
}

// Bytes returns the full slot buffer for the producer to fill.
func (w *WriteSlot) Bytes() []byte { return w.ring.slots[w.idx].buf }

// AcquireWriteSlot returns the best slot to overwrite: an unpublished slot
// if one is free, otherwise the published slot with the oldest sequence id
// (drop-oldest eviction). Slots pinned by readers are never candidates; if
// everything is pinned the call waits at most timeout and fails with
// ErrBackpressure.
//
// The returned handle's generation is already bumped, so any cursor still
// behind the evicted frame detects the skip on its next read.
func (r *Ring) AcquireWriteSlot(timeout time.Duration) (*WriteSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if r.closed {
			return nil, ErrRingClosed
		}

		idx := -1
		var oldest uint64
		for i := range r.slots {
			s := &r.slots[i]
			if s.readers > 0 {
				continue
			}
			if !s.published {
				idx = i
				break
			}
			if idx == -1 || s.meta.SequenceID < oldest {
				idx = i
				oldest = s.meta.SequenceID
			}
		}

		if idx >= 0 {
			s := &r.slots[idx]
			if s.published {
				r.evicted++
			}
			s.published = false
			s.generation++
			return &WriteSlot{ring: r, idx: idx, gen: s.generation}, nil
		}

		// Full backpressure: every slot pinned. Bounded wait for a release.
		if !r.waitLocked(deadline) {
			r.backpressure++
			return nil, ErrBackpressure
		}
	}
}

// Publish makes the slot visible to consumers at its current generation and
// assigns the next sequence id. The ring mutex doubles as the
// memory-visibility barrier: all bytes written through the handle
// happen-before any cursor observes the slot as published.
func (r *Ring) Publish(w *WriteSlot, meta frame.Frame) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrRingClosed
	}
	s := &r.slots[w.idx]
	if s.generation != w.gen || s.published {
		return 0, ErrStaleWriteSlot
	}
	n := meta.ByteSize()
	if n <= 0 || n > len(s.buf) {
		return 0, ErrFrameTooLarge
	}

	r.nextSeq++
	meta.SequenceID = r.nextSeq
	meta.SlotIndex = w.idx

	s.meta = meta
	s.n = n
	s.published = true
	r.published++

	r.cond.Broadcast()
	return meta.SequenceID, nil
}

// Release unpins the slot behind ref. Idempotent per ref.
func (r *Ring) Release(ref *FrameRef) {
	if ref == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref.released {
		return
	}
	ref.released = true
	if r.slots[ref.idx].readers > 0 {
		r.slots[ref.idx].readers--
	}
	r.cond.Broadcast()
}

// Close wakes every waiter and fails all subsequent operations. Callers must
// stop consumers first; Close does not wait for outstanding pins.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cond.Broadcast()
}

// waitLocked blocks on the ring condition until a state change or the
// deadline. Returns false once the deadline has passed. sync.Cond has no
// timed wait, so a timer broadcasts to wake the waiter at the deadline;
// spurious wakeups are fine because every caller loops on its predicate.
func (r *Ring) waitLocked(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	t := time.AfterFunc(remaining, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	r.cond.Wait()
	t.Stop()
	return true
}
