package ascii

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asciimotion/api/internal/model"
)

func solidFrame(w, h int, r, g, b, a byte) *model.Frame {
	pixels := make([]byte, w*h*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i] = r
		pixels[i+1] = g
		pixels[i+2] = b
		pixels[i+3] = a
	}
	return &model.Frame{Index: 0, Width: w, Height: h, Pixels: pixels}
}

func TestScaleOutputDimensions(t *testing.T) {
	cases := []struct {
		name    string
		w, h    int
		columns int
		ratio   float64
	}{
		{"landscape", 1920, 1080, 120, 0.45},
		{"portrait", 720, 1280, 80, 0.45},
		{"square", 512, 512, 64, 0.5},
		{"tiny", 3, 2, 16, 0.45},
		{"one pixel", 1, 1, 20, 0.45},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Scale(solidFrame(tc.w, tc.h, 10, 20, 30, 255), ScaleOptions{
				Columns:         tc.columns,
				FontAspectRatio: tc.ratio,
			})
			require.NoError(t, err)

			stage1H := int(math.Round(float64(tc.columns) * float64(tc.h) / float64(tc.w)))
			if stage1H < 1 {
				stage1H = 1
			}
			wantH := int(math.Ceil(float64(stage1H) * tc.ratio))
			if wantH < 1 {
				wantH = 1
			}

			assert.Equal(t, tc.columns, out.Width)
			assert.Equal(t, wantH, out.Height)
			assert.Len(t, out.Pixels, out.Width*out.Height*4)
		})
	}
}

func TestScaleDeterministic(t *testing.T) {
	frame := solidFrame(64, 48, 200, 100, 50, 255)
	// Vary the buffer so bilinear weights actually matter.
	for i := range frame.Pixels {
		frame.Pixels[i] = byte((i * 31) % 251)
	}

	opts := ScaleOptions{Columns: 40, FontAspectRatio: 0.45}
	a, err := Scale(frame, opts)
	require.NoError(t, err)
	b, err := Scale(frame, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Pixels, b.Pixels)
}

func TestScaleSolidColorPreserved(t *testing.T) {
	out, err := Scale(solidFrame(100, 60, 40, 80, 120, 255), ScaleOptions{Columns: 50, FontAspectRatio: 0.45})
	require.NoError(t, err)
	for i := 0; i < len(out.Pixels); i += 4 {
		require.Equal(t, byte(40), out.Pixels[i])
		require.Equal(t, byte(80), out.Pixels[i+1])
		require.Equal(t, byte(120), out.Pixels[i+2])
		require.Equal(t, byte(255), out.Pixels[i+3])
	}
}

func TestScaleRejectsEmptyFrame(t *testing.T) {
	for _, frame := range []*model.Frame{
		{Width: 0, Height: 10},
		{Width: 10, Height: 0},
	} {
		_, err := Scale(frame, ScaleOptions{Columns: 40})
		var valErr *model.ValidationError
		assert.ErrorAs(t, err, &valErr)
	}
}

func TestScaleRejectsShortBuffer(t *testing.T) {
	frame := &model.Frame{Width: 10, Height: 10, Pixels: make([]byte, 10)}
	_, err := Scale(frame, ScaleOptions{Columns: 40})
	var clsErr *model.ClassificationError
	assert.ErrorAs(t, err, &clsErr)
}

func TestScaleKeepsIndexAndTimestamp(t *testing.T) {
	frame := solidFrame(32, 32, 1, 2, 3, 255)
	frame.Index = 7
	frame.Timestamp = 0.7
	out, err := Scale(frame, ScaleOptions{Columns: 16})
	require.NoError(t, err)
	assert.Equal(t, 7, out.Index)
	assert.Equal(t, 0.7, out.Timestamp)
}
