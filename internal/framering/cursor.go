package framering

import (
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
)

// Cursor is one consumer's independent read position. Cursors never block
// each other or the producer beyond the pin protocol.
type Cursor struct {
	ring *Ring
	id   string

	// Guarded by ring.mu.
	lastSeq   uint64
	delivered uint64
	skipped   uint64
	closed    bool
}

// FrameRef is a pinned, zero-copy view of one published frame. The consumer
// must Release it when done; until then the slot cannot be overwritten.
type FrameRef struct {
	idx int
	gen uint64

	// Frame is the published metadata.
	Frame frame.Frame
	// Skipped counts frames evicted between this delivery and the cursor's
	// previous one. Non-zero means drop-oldest fired; an explicit event,
	// not a silent gap.
	Skipped uint64

	data     []byte
	released bool
}

// Bytes returns the frame payload. Valid until Release.
func (ref *FrameRef) Bytes() []byte { return ref.data }

// Subscribe registers a new cursor. It starts at the current head: a late
// subscriber sees only frames published after it joined.
func (r *Ring) Subscribe(id string) (*Cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRingClosed
	}
	if _, exists := r.cursors[id]; exists {
		return nil, ErrCursorExists
	}
	c := &Cursor{ring: r, id: id, lastSeq: r.nextSeq}
	r.cursors[id] = c
	return c, nil
}

// Next blocks until a frame with sequence id greater than the cursor's
// last-seen is published, the timeout elapses (ErrTimeout), or the cursor or
// ring closes. Delivery order per cursor is strictly increasing by sequence
// id.
func (c *Cursor) Next(timeout time.Duration) (*FrameRef, error) {
	r := c.ring
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if c.closed {
			return nil, ErrCursorClosed
		}
		if r.closed {
			return nil, ErrRingClosed
		}

		idx := -1
		var best uint64
		for i := range r.slots {
			s := &r.slots[i]
			if !s.published || s.meta.SequenceID <= c.lastSeq {
				continue
			}
			if idx == -1 || s.meta.SequenceID < best {
				idx = i
				best = s.meta.SequenceID
			}
		}

		if idx >= 0 {
			s := &r.slots[idx]
			skipped := s.meta.SequenceID - c.lastSeq - 1
			c.lastSeq = s.meta.SequenceID
			c.delivered++
			c.skipped += skipped
			s.readers++
			return &FrameRef{
				idx:     idx,
				gen:     s.generation,
				Frame:   s.meta,
				Skipped: skipped,
				data:    s.buf[:s.n],
			}, nil
		}

		if !r.waitLocked(deadline) {
			return nil, ErrTimeout
		}
	}
}

// Stale reports whether the slot behind ref has been reacquired since the
// ref was handed out. Under the pin protocol this cannot happen before
// Release; after Release it tells a consumer whether the bytes it copied
// out were still current.
func (ref *FrameRef) Stale(r *Ring) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[ref.idx].generation != ref.gen
}

// Close unsubscribes the cursor and wakes a blocked Next.
func (c *Cursor) Close() {
	r := c.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	delete(r.cursors, c.id)
	r.cond.Broadcast()
}
