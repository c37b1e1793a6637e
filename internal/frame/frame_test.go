package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePixelFormat(t *testing.T) {
	cases := []struct {
		in   string
		want PixelFormat
		ok   bool
	}{
		{"rgb24", FormatRGB24, true},
		{"RGB", FormatRGB24, true},
		{" gray8 ", FormatGray8, true},
		{"gray", FormatGray8, true},
		{"yuv420", FormatUnknown, false},
		{"", FormatUnknown, false},
	}
	for _, tc := range cases {
		got, err := ParsePixelFormat(tc.in)
		if tc.ok {
			require.NoError(t, err, "input %q", tc.in)
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		} else {
			assert.Error(t, err, "input %q", tc.in)
		}
	}
}

func TestFrameByteSize(t *testing.T) {
	f := Frame{Width: 1280, Height: 720, Format: FormatRGB24}
	assert.Equal(t, 1280*720*3, f.ByteSize())

	f.Format = FormatGray8
	assert.Equal(t, 1280*720, f.ByteSize())

	f.Format = FormatUnknown
	assert.Equal(t, 0, f.ByteSize())
}

func TestRawFrameValidate(t *testing.T) {
	good := RawFrame{Width: 4, Height: 4, Format: FormatRGB24, Data: make([]byte, 48)}
	assert.NoError(t, good.Validate())

	short := good
	short.Data = short.Data[:10]
	assert.Error(t, short.Validate())

	zero := good
	zero.Width = 0
	assert.Error(t, zero.Validate())

	unknown := good
	unknown.Format = FormatUnknown
	assert.Error(t, unknown.Validate())
}

func TestRectValid(t *testing.T) {
	assert.True(t, Rect{X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5}.Valid())
	assert.True(t, Rect{X1: 0, Y1: 0, X2: 1, Y2: 1}.Valid())

	assert.False(t, Rect{X1: 0.5, Y1: 0.1, X2: 0.1, Y2: 0.5}.Valid(), "inverted x")
	assert.False(t, Rect{X1: 0.2, Y1: 0.2, X2: 0.2, Y2: 0.5}.Valid(), "zero width")
	assert.False(t, Rect{X1: -0.1, Y1: 0, X2: 0.5, Y2: 0.5}.Valid(), "out of range")
	assert.False(t, Rect{X1: 0.1, Y1: 0.1, X2: 1.2, Y2: 0.5}.Valid(), "out of range")
}

func TestRectIoU(t *testing.T) {
	a := Rect{X1: 0.0, Y1: 0.0, X2: 0.5, Y2: 0.5}

	assert.InDelta(t, 1.0, a.IoU(a), 1e-9, "identical boxes")
	assert.Zero(t, a.IoU(Rect{X1: 0.6, Y1: 0.6, X2: 0.9, Y2: 0.9}), "disjoint boxes")
	assert.Zero(t, a.IoU(Rect{X1: 0.5, Y1: 0.0, X2: 0.9, Y2: 0.5}), "touching edges")

	// Half-overlapping same-size boxes: inter 0.125, union 0.375.
	b := Rect{X1: 0.25, Y1: 0.0, X2: 0.75, Y2: 0.5}
	assert.InDelta(t, 1.0/3.0, a.IoU(b), 1e-9)

	assert.InDelta(t, a.IoU(b), b.IoU(a), 1e-12, "IoU is symmetric")
}

func TestSyntheticSourceGeneratesValidFrames(t *testing.T) {
	src := NewSyntheticSource(8, 6, 15, FormatRGB24)

	f0 := src.Generate(0)
	require.NoError(t, f0.Validate())
	assert.Len(t, f0.Data, 8*6*3)

	// The gradient shifts with n, so consecutive frames differ.
	f1 := src.Generate(1)
	assert.NotEqual(t, f0.Data, f1.Data)

	// Deterministic: same n, same payload.
	assert.Equal(t, f0.Data, src.Generate(0).Data)
}
