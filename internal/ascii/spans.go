package ascii

import (
	"strings"

	"github.com/asciimotion/api/internal/model"
)

// FormatSpans run-length compresses the color matrix into highlight spans.
// Only PRIMARY runs are marked; SECONDARY influenced the character choice but
// never appears in the markup.
func FormatSpans(colors [][]model.ColorClass) []model.Span {
	var spans []model.Span
	for y, row := range colors {
		start := -1
		for x, class := range row {
			if class == model.ColorPrimary {
				if start < 0 {
					start = x
				}
				continue
			}
			if start >= 0 {
				spans = append(spans, model.Span{Row: y, Start: start, End: x})
				start = -1
			}
		}
		if start >= 0 {
			spans = append(spans, model.Span{Row: y, Start: start, End: len(row)})
		}
	}
	return spans
}

// Markup wraps each highlighted run of a frame's text in a span tag for
// downstream rendering.
func Markup(frame model.ASCIIFrame) string {
	if len(frame.Spans) == 0 {
		return frame.Text
	}
	byRow := make(map[int][]model.Span, len(frame.Spans))
	for _, s := range frame.Spans {
		byRow[s.Row] = append(byRow[s.Row], s)
	}

	lines := strings.Split(frame.Text, "\n")
	var out strings.Builder
	for y, line := range lines {
		if y > 0 {
			out.WriteByte('\n')
		}
		runs := byRow[y]
		cells := []rune(line)
		pos := 0
		for _, run := range runs {
			out.WriteString(string(cells[pos:run.Start]))
			out.WriteString(`<span class="highlight">`)
			out.WriteString(string(cells[run.Start:run.End]))
			out.WriteString(`</span>`)
			pos = run.End
		}
		out.WriteString(string(cells[pos:]))
	}
	return out.String()
}
