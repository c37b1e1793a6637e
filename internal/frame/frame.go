// Package frame defines the frame metadata shared across the pipeline.
package frame

import (
	"fmt"
	"strings"
	"time"
)

// PixelFormat identifies the raw layout of a frame's bytes.
type PixelFormat uint8

const (
	FormatUnknown PixelFormat = iota
	// FormatRGB24 is 3 bytes per pixel, no alpha channel.
	FormatRGB24
	// FormatGray8 is 1 byte per pixel.
	FormatGray8
)

// BytesPerPixel returns the per-pixel byte cost, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB24:
		return 3
	case FormatGray8:
		return 1
	}
	return 0
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "rgb24"
	case FormatGray8:
		return "gray8"
	}
	return "unknown"
}

// ParsePixelFormat maps a config string to a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgb24", "rgb":
		return FormatRGB24, nil
	case "gray8", "gray":
		return FormatGray8, nil
	}
	return FormatUnknown, fmt.Errorf("pixel format: unsupported value %q", s)
}

// Frame is the metadata of one captured image. The pixel bytes live in a
// store slot referenced by SlotIndex; Frame itself never owns them.
type Frame struct {
	// SequenceID is assigned by the ring at publish time, monotonically
	// increasing across the pipeline's lifetime.
	SequenceID uint64
	// CapturedAt is the capture timestamp (monotonic clock reading).
	CapturedAt time.Time
	Width      int
	Height     int
	Format     PixelFormat
	// SlotIndex references the store slot holding the pixel data. Valid only
	// under the ring's handle protocol.
	SlotIndex int
	// TraceID correlates a frame across stages for debugging.
	TraceID string
}

// ByteSize returns the number of pixel bytes this frame occupies.
func (f Frame) ByteSize() int {
	return f.Width * f.Height * f.Format.BytesPerPixel()
}

// RawFrame is an externally injected frame: metadata plus an owned payload.
// The pipeline copies the payload into a store slot exactly once.
type RawFrame struct {
	Width      int
	Height     int
	Format     PixelFormat
	CapturedAt time.Time
	Data       []byte
}

// Validate checks the payload matches the declared geometry.
func (r RawFrame) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("frame: invalid dimensions %dx%d", r.Width, r.Height)
	}
	bpp := r.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("frame: unknown pixel format")
	}
	if want := r.Width * r.Height * bpp; len(r.Data) != want {
		return fmt.Errorf("frame: payload size %d does not match %dx%d %s (want %d)",
			len(r.Data), r.Width, r.Height, r.Format, want)
	}
	return nil
}
