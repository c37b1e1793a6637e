package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
)

var (
	errIntakeTimeout = errors.New("worker: intake wait timed out")
	errIntakeClosed  = errors.New("worker: intake closed")
)

// Intake is the injection point for externally captured frames: a
// single-slot overwrite mailbox. Offer never blocks; a frame the capture
// worker has not yet drained is replaced by the newer one and counted as a
// drop. Freshness over completeness.
type Intake struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *frame.RawFrame // nil = consumed
	closed bool

	drops atomic.Uint64
}

// NewIntake creates an empty mailbox.
func NewIntake() *Intake {
	in := &Intake{}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Offer replaces the pending frame, dropping an unconsumed one. Safe for
// concurrent producers, non-blocking.
func (in *Intake) Offer(raw frame.RawFrame) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	if in.frame != nil {
		in.drops.Add(1)
	}
	in.frame = &raw
	in.cond.Signal()
	in.mu.Unlock()
}

// Drops returns the number of frames replaced before consumption.
func (in *Intake) Drops() uint64 { return in.drops.Load() }

// Close wakes the consumer; subsequent Offers are no-ops.
func (in *Intake) Close() {
	in.mu.Lock()
	in.closed = true
	in.cond.Broadcast()
	in.mu.Unlock()
}

// take blocks until a frame is pending, the timeout elapses or the mailbox
// closes. A frame pending at close time is still delivered; closed is only
// reported once the mailbox is empty. Single consumer: the capture worker.
func (in *Intake) take(timeout time.Duration) (frame.RawFrame, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for in.frame == nil {
		if in.closed {
			return frame.RawFrame{}, errIntakeClosed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return frame.RawFrame{}, errIntakeTimeout
		}
		t := time.AfterFunc(remaining, func() {
			in.mu.Lock()
			in.cond.Broadcast()
			in.mu.Unlock()
		})
		in.cond.Wait()
		t.Stop()
	}

	raw := *in.frame
	in.frame = nil
	return raw, nil
}
