package ascii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asciimotion/api/internal/model"
)

func TestAssembleDimensionsAndTextLength(t *testing.T) {
	a := NewAssembler(model.DefaultSettings())
	frame := solidFrame(12, 7, 255, 255, 255, 255)
	frame.Index = 3
	frame.Timestamp = 0.3

	out, err := a.Assemble(frame)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Index)
	assert.Equal(t, 12, out.Width)
	assert.Equal(t, 7, out.Height)
	assert.Len(t, out.Text, 12*7+6, "width*height characters plus height-1 newlines")
	assert.Len(t, out.Colors, 7)
	for _, row := range out.Colors {
		assert.Len(t, row, 12)
	}

	lines := strings.Split(out.Text, "\n")
	require.Len(t, lines, 7)
	for _, line := range lines {
		assert.Len(t, line, 12)
	}
}

func TestAssembleEveryPixelGetsOneCell(t *testing.T) {
	// 2x2 frame from the reference scenario: black, white, gray, red.
	frame := &model.Frame{
		Width:  2,
		Height: 2,
		Pixels: []byte{
			0, 0, 0, 255, 255, 255, 255, 255,
			128, 128, 128, 255, 255, 0, 0, 255,
		},
	}
	a := NewAssembler(model.DefaultSettings())
	out, err := a.Assemble(frame)
	require.NoError(t, err)

	require.Len(t, out.Colors, 2)
	assert.Equal(t, model.ColorNone, out.Colors[0][0])
	assert.Equal(t, model.ColorSecondary, out.Colors[0][1])
	assert.Equal(t, model.ColorNone, out.Colors[1][0])
	assert.Equal(t, model.ColorNone, out.Colors[1][1])

	lines := strings.Split(out.Text, "\n")
	assert.Equal(t, " ", string(lines[0][0]))
	assert.NotEqual(t, " ", string(lines[0][1]))
	assert.Equal(t, "  ", lines[1])
}

func TestAssembleRejectsMalformedBuffer(t *testing.T) {
	a := NewAssembler(model.DefaultSettings())
	_, err := a.Assemble(&model.Frame{Width: 4, Height: 4, Pixels: make([]byte, 12)})
	var clsErr *model.ClassificationError
	assert.ErrorAs(t, err, &clsErr)

	_, err = a.Assemble(&model.Frame{Width: 0, Height: 4})
	assert.ErrorAs(t, err, &clsErr)
}

func TestAssembleSpansOnlyInHighlightMode(t *testing.T) {
	frame := solidFrame(4, 2, 0, 102, 255, 255) // pure primary blue

	highlight := model.DefaultSettings()
	out, err := NewAssembler(highlight).Assemble(frame)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Spans)

	mono := model.DefaultSettings()
	mono.ColorMode = model.ColorModeMono
	out, err = NewAssembler(mono).Assemble(frame)
	require.NoError(t, err)
	assert.Empty(t, out.Spans)
}
