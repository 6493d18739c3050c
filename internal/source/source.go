// Package source supplies decoded RGBA frames to the conversion pipeline.
// The pipeline only sees the FrameSource interface; the ffmpeg extractor and
// the synthetic generator are interchangeable behind it.
package source

import (
	"context"

	"github.com/asciimotion/api/internal/model"
)

// Stream yields the ordered, 0-indexed frames of one video. Next blocks
// until a frame is available and returns io.EOF after the last one. Frame
// timestamps are index/fps.
type Stream interface {
	Next(ctx context.Context) (*model.Frame, error)
	// TotalFrames is the expected frame count, or 0 when unknown.
	TotalFrames() int
	Close() error
}

// FrameSource opens a stream over an opaque video buffer targeted at the
// given column count and sample rate.
type FrameSource interface {
	Open(ctx context.Context, video []byte, columns, fps int) (Stream, error)
}
