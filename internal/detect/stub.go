package detect

import (
	"context"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
)

// StubDetector is a deterministic, model-free detector used when no backend
// is injected (demos, tests, degraded bring-up). Output depends only on the
// frame's sequence id, so runs are reproducible.
type StubDetector struct {
	layer    Layer
	classes  []string
	interval uint64        // emit a detection every interval-th frame
	latency  time.Duration // simulated inference cost
}

// NewStubSafety returns a stub for the safety stream: cheap and frequent.
func NewStubSafety() *StubDetector {
	return &StubDetector{
		layer:    LayerSafety,
		classes:  []string{"person", "vehicle", "obstacle"},
		interval: 1,
	}
}

// NewStubOpenVocabulary returns a stub for the open-vocabulary stream:
// slower and sparser, mirroring a heavyweight model.
func NewStubOpenVocabulary() *StubDetector {
	return &StubDetector{
		layer:    LayerOpenVocabulary,
		classes:  []string{"pedestrian", "bicycle", "signage", "doorway"},
		interval: 2,
		latency:  20 * time.Millisecond,
	}
}

func (s *StubDetector) Detect(ctx context.Context, v View) ([]Detection, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}

	seq := v.Frame.SequenceID
	if s.interval > 1 && seq%s.interval != 0 {
		return nil, nil
	}

	// Derive a box from the sequence id: drifts across the frame so
	// consumers exercise distinct geometry per frame.
	off := float64(seq%8) * 0.05
	box := frame.Rect{X1: 0.1 + off, Y1: 0.1, X2: 0.4 + off, Y2: 0.6}

	return []Detection{{
		SourceSequenceID: seq,
		Layer:            s.layer,
		Class:            s.classes[seq%uint64(len(s.classes))],
		Confidence:       0.6 + float64(seq%4)*0.1,
		BBox:             box,
		ProducedAt:       time.Now(),
	}}, nil
}

func (s *StubDetector) Close() error { return nil }
