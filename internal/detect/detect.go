// Package detect defines the detection data model and the detector port the
// pipeline consumes. Concrete models are external collaborators; this
// package only fixes the contract and ships deterministic stubs.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
)

// Layer identifies which detection stream produced a result.
type Layer uint8

const (
	// LayerSafety is the latency-critical stream. Its results take
	// precedence when streams overlap.
	LayerSafety Layer = iota + 1
	// LayerOpenVocabulary is the slower, best-effort stream.
	LayerOpenVocabulary
)

func (l Layer) String() string {
	switch l {
	case LayerSafety:
		return "safety"
	case LayerOpenVocabulary:
		return "open_vocabulary"
	}
	return "unknown"
}

// MarshalText makes layers readable in JSON health/result payloads.
func (l Layer) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Detection is one detected object instance. Immutable once created.
type Detection struct {
	SourceSequenceID uint64     `json:"source_sequence_id"`
	Layer            Layer      `json:"layer"`
	Class            string     `json:"class"`
	Confidence       float64    `json:"confidence"`
	BBox             frame.Rect `json:"bbox"`
	ProducedAt       time.Time  `json:"produced_at"`
}

// Validate rejects results a model should never emit.
func (d Detection) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("detect: confidence %g out of range", d.Confidence)
	}
	if !d.BBox.Valid() {
		return fmt.Errorf("detect: invalid bbox %+v", d.BBox)
	}
	return nil
}

// View is the zero-copy input handed to a detector: published metadata plus
// a read-only window into the frame slot. Detectors must not retain Data
// past the call.
type View struct {
	Frame frame.Frame
	Data  []byte
}

// Detector is the port implemented by detection backends. Detect is called
// once per consumed frame from a single goroutine; Close releases model
// resources.
type Detector interface {
	Detect(ctx context.Context, v View) ([]Detection, error)
	Close() error
}
