package model

// Frame is one decoded still image sampled from the source video. Pixels are
// tightly packed RGBA, row-major, 4 bytes per pixel. Frames are produced by a
// FrameSource, consumed once by the pipeline and then discarded.
type Frame struct {
	Index     int
	Timestamp float64 // seconds, index/fps
	Width     int
	Height    int
	Pixels    []byte
}

// ColorClass is the result of classifying a pixel against the two reference
// colors.
type ColorClass uint8

const (
	ColorNone ColorClass = iota
	ColorPrimary
	ColorSecondary
)

// ASCIIFrame is the textual rendition of one Frame. Rows of Text are joined
// with '\n'; Colors is the parallel per-cell classification matrix and Spans
// the run-length highlight markup derived from it.
type ASCIIFrame struct {
	Index     int            `json:"index"`
	Timestamp float64        `json:"timestamp"`
	Text      string         `json:"text"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Colors    [][]ColorClass `json:"-"`
	Spans     []Span         `json:"spans,omitempty"`
}

// Span marks one horizontal run of PRIMARY-classified cells.
// End is exclusive.
type Span struct {
	Row   int `json:"row"`
	Start int `json:"start"`
	End   int `json:"end"`
}
