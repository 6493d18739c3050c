package ascii

import (
	"fmt"
	"strings"

	"github.com/asciimotion/api/internal/model"
)

// Assembler turns scaled frames into ASCII frames using one classifier.
type Assembler struct {
	classifier *Classifier
	withSpans  bool
}

// NewAssembler builds an assembler for validated settings. Highlight spans
// are produced only in highlight color mode.
func NewAssembler(settings model.ConversionSettings) *Assembler {
	return &Assembler{
		classifier: NewClassifier(settings),
		withSpans:  settings.ColorMode == model.ColorModeHighlight,
	}
}

// Assemble classifies every pixel of a scaled frame and joins the rows into
// newline-separated text with a parallel color matrix. Output dimensions
// equal the input frame's; the text length is width*height + (height-1)
// newlines.
func (a *Assembler) Assemble(frame *model.Frame) (model.ASCIIFrame, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return model.ASCIIFrame{}, &model.ClassificationError{Reason: "zero or negative dimensions"}
	}
	if len(frame.Pixels) != frame.Width*frame.Height*4 {
		return model.ASCIIFrame{}, &model.ClassificationError{
			Reason: fmt.Sprintf("buffer holds %d bytes, expected %d", len(frame.Pixels), frame.Width*frame.Height*4),
		}
	}

	var text strings.Builder
	text.Grow(frame.Width*frame.Height + frame.Height - 1)
	colors := make([][]model.ColorClass, frame.Height)

	for y := 0; y < frame.Height; y++ {
		if y > 0 {
			text.WriteByte('\n')
		}
		row := make([]model.ColorClass, frame.Width)
		for x := 0; x < frame.Width; x++ {
			i := (y*frame.Width + x) * 4
			ch, class := a.classifier.Classify(frame.Pixels[i], frame.Pixels[i+1], frame.Pixels[i+2], frame.Pixels[i+3])
			text.WriteRune(ch)
			row[x] = class
		}
		colors[y] = row
	}

	out := model.ASCIIFrame{
		Index:     frame.Index,
		Timestamp: frame.Timestamp,
		Text:      text.String(),
		Width:     frame.Width,
		Height:    frame.Height,
		Colors:    colors,
	}
	if a.withSpans {
		out.Spans = FormatSpans(colors)
	}
	return out, nil
}
