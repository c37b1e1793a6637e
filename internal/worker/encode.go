package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/detect"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/framering"
)

// FrameSink receives the freshest frames for downstream encoding. Codecs
// are external collaborators; the pipeline only hands over byte views.
// Write must not retain v.Data past the call.
type FrameSink interface {
	Write(v detect.View) error
	Close() error
}

// CountingSink is the built-in sink: it counts frames and discards them.
type CountingSink struct {
	frames atomic.Uint64
}

func (s *CountingSink) Write(detect.View) error { s.frames.Add(1); return nil }

func (s *CountingSink) Close() error { return nil }

// Frames returns the number of frames written.
func (s *CountingSink) Frames() uint64 { return s.frames.Load() }

// EncodeConfig wires the encode worker.
type EncodeConfig struct {
	Ring                   *framering.Ring
	Sink                   FrameSink
	PollTimeout            time.Duration
	MaxConsecutiveFailures int
	Affinity               int
	Logger                 *slog.Logger
}

// EncodeWorker is the non-detection consumer: it forwards the freshest
// frames to the sink at its own pace, never in the safety path.
type EncodeWorker struct {
	base
	ring *framering.Ring
	sink FrameSink

	pollTimeout time.Duration
}

func NewEncode(cfg EncodeConfig) *EncodeWorker {
	return &EncodeWorker{
		base:        newBase(RoleEncode, cfg.Affinity, cfg.MaxConsecutiveFailures, cfg.Logger),
		ring:        cfg.Ring,
		sink:        cfg.Sink,
		pollTimeout: cfg.PollTimeout,
	}
}

func (w *EncodeWorker) Run(ctx context.Context) error {
	w.setState(StateStarting)
	w.pinAffinity()

	cursor, err := w.ring.Subscribe(w.id)
	if err != nil {
		w.setState(StateStopped)
		return err
	}
	defer cursor.Close()
	defer w.sink.Close()
	defer func() {
		if w.State() != StateUnhealthy {
			w.setState(StateStopped)
		}
	}()

	w.markReady()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ref, err := cursor.Next(w.pollTimeout)
		w.beat()
		if err != nil {
			if errors.Is(err, framering.ErrTimeout) {
				continue
			}
			return nil
		}

		werr := w.writeFrame(ref)
		w.ring.Release(ref)
		if werr != nil {
			if w.failFrame(ref.Frame.SequenceID, werr) {
				return w.unhealthy()
			}
			continue
		}
		w.okFrame()
	}
}

func (w *EncodeWorker) writeFrame(ref *framering.FrameRef) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New("sink panic")
		}
	}()
	return w.sink.Write(detect.View{Frame: ref.Frame, Data: ref.Bytes()})
}
