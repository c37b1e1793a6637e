package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/framering"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
)

// CaptureConfig wires the capture worker.
type CaptureConfig struct {
	Intake                 *Intake
	Ring                   *framering.Ring
	PollTimeout            time.Duration
	MaxConsecutiveFailures int
	Affinity               int
	Logger                 *slog.Logger
}

// CaptureWorker drains the injection mailbox into the slot store. It is the
// ring's single producer: it acquires a write slot, copies the injected
// payload once, and publishes with a fresh trace id.
type CaptureWorker struct {
	base
	intake *Intake
	ring   *framering.Ring

	pollTimeout time.Duration
	published   atomic.Uint64
	shed        atomic.Uint64 // frames dropped to ring backpressure
}

func NewCapture(cfg CaptureConfig) *CaptureWorker {
	return &CaptureWorker{
		base:        newBase(RoleCapture, cfg.Affinity, cfg.MaxConsecutiveFailures, cfg.Logger),
		intake:      cfg.Intake,
		ring:        cfg.Ring,
		pollTimeout: cfg.PollTimeout,
	}
}

// Published returns the number of frames committed to the ring.
func (w *CaptureWorker) Published() uint64 { return w.published.Load() }

// Shed returns the number of frames abandoned because every slot was pinned
// for longer than the poll timeout.
func (w *CaptureWorker) Shed() uint64 { return w.shed.Load() }

func (w *CaptureWorker) Run(ctx context.Context) error {
	w.setState(StateStarting)
	w.pinAffinity()
	w.markReady()
	defer func() {
		if w.State() != StateUnhealthy {
			w.setState(StateStopped)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		raw, err := w.intake.take(w.pollTimeout)
		w.beat()
		if err != nil {
			if errors.Is(err, errIntakeTimeout) {
				continue
			}
			return nil // intake closed: graceful stop
		}

		if err := w.publish(raw); err != nil {
			if errors.Is(err, framering.ErrBackpressure) {
				// Expected under sustained overload; the drop-oldest
				// policy already bounded our blocking time.
				w.shed.Add(1)
				w.logger.Debug("frame shed under backpressure")
				continue
			}
			if errors.Is(err, framering.ErrRingClosed) {
				return nil
			}
			if w.failFrame(0, err) {
				return w.unhealthy()
			}
			continue
		}
		w.okFrame()
	}
}

func (w *CaptureWorker) publish(raw frame.RawFrame) error {
	if err := raw.Validate(); err != nil {
		return err
	}

	ws, err := w.ring.AcquireWriteSlot(w.pollTimeout)
	if err != nil {
		return err
	}

	copy(ws.Bytes(), raw.Data)

	capturedAt := raw.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	seq, err := w.ring.Publish(ws, frame.Frame{
		CapturedAt: capturedAt,
		Width:      raw.Width,
		Height:     raw.Height,
		Format:     raw.Format,
		TraceID:    uuid.NewString(),
	})
	if err != nil {
		return err
	}

	w.published.Add(1)
	w.logger.Debug("frame published", logging.Uint64("seq", seq))
	return nil
}
