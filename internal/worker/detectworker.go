package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/detect"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/framering"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
)

// DetectConfig wires one detection worker.
type DetectConfig struct {
	Role                   Role // RoleSafety or RoleOpenVocabulary
	Ring                   *framering.Ring
	Detector               detect.Detector
	Results                chan<- Result
	PollTimeout            time.Duration
	MaxConsecutiveFailures int
	Affinity               int
	Logger                 *slog.Logger
}

// DetectWorker consumes frames through its own cursor, runs its detector
// against the slot bytes without copying, and publishes per-frame results.
type DetectWorker struct {
	base
	ring     *framering.Ring
	detector detect.Detector
	results  chan<- Result
	layer    detect.Layer

	pollTimeout time.Duration
}

func NewDetect(cfg DetectConfig) (*DetectWorker, error) {
	layer, ok := cfg.Role.Layer()
	if !ok {
		return nil, fmt.Errorf("worker: role %s is not a detection role", cfg.Role)
	}
	return &DetectWorker{
		base:        newBase(cfg.Role, cfg.Affinity, cfg.MaxConsecutiveFailures, cfg.Logger),
		ring:        cfg.Ring,
		detector:    cfg.Detector,
		results:     cfg.Results,
		layer:       layer,
		pollTimeout: cfg.PollTimeout,
	}, nil
}

func (w *DetectWorker) Run(ctx context.Context) error {
	w.setState(StateStarting)
	w.pinAffinity()

	cursor, err := w.ring.Subscribe(w.id)
	if err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("worker %s: subscribe: %w", w.role, err)
	}
	defer cursor.Close()
	defer w.detector.Close()
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
				continue // idle, not hung: heartbeat already updated
			}
			return nil // ring or cursor closed: graceful stop
		}

		if ref.Skipped > 0 {
			w.logger.Debug("cursor skipped evicted frames",
				logging.Uint64("skipped", ref.Skipped),
				logging.Uint64("seq", ref.Frame.SequenceID))
		}

		dets, derr := w.detectFrame(ctx, ref)
		w.ring.Release(ref)

		if derr != nil {
			if w.failFrame(ref.Frame.SequenceID, derr) {
				return w.unhealthy()
			}
			continue
		}
		w.okFrame()

		if len(dets) == 0 {
			continue
		}
		select {
		case w.results <- Result{Role: w.role, SourceSequenceID: ref.Frame.SequenceID, Detections: dets}:
		case <-ctx.Done():
			return nil
		}
	}
}

// detectFrame runs the detector with panic containment: a panicking model
// backend costs one frame, not the worker.
func (w *DetectWorker) detectFrame(ctx context.Context, ref *framering.FrameRef) (dets []detect.Detection, err error) {
	defer func() {
		if p := recover(); p != nil {
			dets = nil
			err = fmt.Errorf("detector panic: %v", p)
		}
	}()

	raw, err := w.detector.Detect(ctx, detect.View{Frame: ref.Frame, Data: ref.Bytes()})
	if err != nil {
		return nil, err
	}

	dets = raw[:0]
	for _, d := range raw {
		d.SourceSequenceID = ref.Frame.SequenceID
		d.Layer = w.layer
		if verr := d.Validate(); verr != nil {
			w.logger.Warn("dropping invalid detection", logging.Error(verr))
			continue
		}
		dets = append(dets, d)
	}
	return dets, nil
}
