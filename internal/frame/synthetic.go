package frame

import (
	"context"
	"time"
)

// SyntheticSource generates deterministic test frames at a fixed rate.
// It stands in for the external capture component in demos and tests.
type SyntheticSource struct {
	width  int
	height int
	format PixelFormat
	fps    int
}

// NewSyntheticSource creates a source emitting width x height frames at fps.
func NewSyntheticSource(width, height, fps int, format PixelFormat) *SyntheticSource {
	if fps <= 0 {
		fps = 15
	}
	return &SyntheticSource{width: width, height: height, format: format, fps: fps}
}

// Run emits frames to sink until ctx is cancelled. Each frame carries a
// moving gradient so consumers can verify payload integrity by inspection.
func (s *SyntheticSource) Run(ctx context.Context, sink func(RawFrame)) {
	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sink(s.generate(n))
			n++
		}
	}
}

// Generate returns the nth synthetic frame directly, for tests that drive
// the pipeline without a ticker.
func (s *SyntheticSource) Generate(n uint64) RawFrame {
	return s.generate(n)
}

func (s *SyntheticSource) generate(n uint64) RawFrame {
	bpp := s.format.BytesPerPixel()
	data := make([]byte, s.width*s.height*bpp)
	shift := byte(n)
	for i := range data {
		data[i] = byte(i) + shift
	}
	return RawFrame{
		Width:      s.width,
		Height:     s.height,
		Format:     s.format,
		CapturedAt: time.Now(),
		Data:       data,
	}
}
