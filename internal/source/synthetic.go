package source

import (
	"context"
	"io"

	"github.com/asciimotion/api/internal/model"
)

// SyntheticSource generates gradient frames without touching ffmpeg. It
// stands in for the real extractor in development and tests, the same way
// unconfigured external clients fall back to mock output.
type SyntheticSource struct {
	// FrameCount is the number of frames per stream (default 30).
	FrameCount int
	// Width and Height of the generated frames (default 128x72).
	Width  int
	Height int
}

func (s *SyntheticSource) Open(ctx context.Context, video []byte, columns, fps int) (Stream, error) {
	count := s.FrameCount
	if count <= 0 {
		count = 30
	}
	w, h := s.Width, s.Height
	if w <= 0 || h <= 0 {
		w, h = 128, 72
	}
	return &syntheticStream{count: count, width: w, height: h, fps: fps}, nil
}

type syntheticStream struct {
	count  int
	width  int
	height int
	fps    int
	index  int
}

// Next emits a horizontally sweeping white bar over black, which exercises
// the secondary (white) classification path end to end.
func (st *syntheticStream) Next(ctx context.Context) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st.index >= st.count {
		return nil, io.EOF
	}

	pixels := make([]byte, st.width*st.height*4)
	barStart := st.index * st.width / st.count
	barEnd := barStart + st.width/8
	for y := 0; y < st.height; y++ {
		for x := 0; x < st.width; x++ {
			i := (y*st.width + x) * 4
			v := byte(0)
			if x >= barStart && x < barEnd {
				v = 255
			}
			pixels[i] = v
			pixels[i+1] = v
			pixels[i+2] = v
			pixels[i+3] = 255
		}
	}

	frame := &model.Frame{
		Index:     st.index,
		Timestamp: float64(st.index) / float64(st.fps),
		Width:     st.width,
		Height:    st.height,
		Pixels:    pixels,
	}
	st.index++
	return frame, nil
}

func (st *syntheticStream) TotalFrames() int { return st.count }

func (st *syntheticStream) Close() error { return nil }
