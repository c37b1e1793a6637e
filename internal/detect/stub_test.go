package detect

import (
	"context"
	"testing"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
)

func view(seq uint64) View {
	return View{Frame: frame.Frame{SequenceID: seq, Width: 4, Height: 4, Format: frame.FormatRGB24}}
}

func TestStubSafetyDeterministic(t *testing.T) {
	s := NewStubSafety()
	defer s.Close()

	a, err := s.Detect(context.Background(), view(5))
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	b, err := s.Detect(context.Background(), view(5))
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("got %d and %d detections, want 1 each", len(a), len(b))
	}
	if a[0].Class != b[0].Class || a[0].BBox != b[0].BBox || a[0].Confidence != b[0].Confidence {
		t.Error("same sequence id produced different detections")
	}
	if err := a[0].Validate(); err != nil {
		t.Errorf("stub emitted invalid detection: %v", err)
	}
	if a[0].Layer != LayerSafety {
		t.Errorf("layer = %s, want safety", a[0].Layer)
	}
}

func TestStubOpenVocabularySkipsOddFrames(t *testing.T) {
	s := NewStubOpenVocabulary()
	defer s.Close()

	odd, err := s.Detect(context.Background(), view(3))
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if len(odd) != 0 {
		t.Errorf("odd frame produced %d detections, want 0", len(odd))
	}

	even, err := s.Detect(context.Background(), view(4))
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if len(even) != 1 {
		t.Fatalf("even frame produced %d detections, want 1", len(even))
	}
	if even[0].Layer != LayerOpenVocabulary {
		t.Errorf("layer = %s, want open_vocabulary", even[0].Layer)
	}
}

func TestStubHonorsContextCancellation(t *testing.T) {
	s := NewStubOpenVocabulary() // has simulated latency

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Detect(ctx, view(2)); err == nil {
		t.Error("Detect() ignored cancelled context")
	}
}

func TestDetectionValidate(t *testing.T) {
	good := Detection{Class: "person", Confidence: 0.9, BBox: frame.Rect{X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5}}
	if err := good.Validate(); err != nil {
		t.Errorf("valid detection rejected: %v", err)
	}

	over := good
	over.Confidence = 1.2
	if err := over.Validate(); err == nil {
		t.Error("confidence > 1 accepted")
	}

	bad := good
	bad.BBox = frame.Rect{X1: 0.5, Y1: 0.1, X2: 0.1, Y2: 0.5}
	if err := bad.Validate(); err == nil {
		t.Error("inverted bbox accepted")
	}
}
