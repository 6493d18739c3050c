package ascii

import (
	"math"

	"github.com/asciimotion/api/internal/model"
)

// DefaultFontAspectRatio compensates for terminal character cells being
// roughly twice as tall as they are wide.
const DefaultFontAspectRatio = 0.45

// ScaleOptions control the two-stage resample.
type ScaleOptions struct {
	Columns         int
	FontAspectRatio float64
}

// Scale resamples a decoded RGBA frame for character rendering. Stage one is
// an aspect-preserving bilinear resample to Columns wide; stage two resamples
// height alone by the font aspect ratio. The stages run sequentially, so the
// output is always (C, ceil(round(C*H0/W0)*F)).
//
// The result reuses the input's index and timestamp. Identical input always
// produces identical output.
func Scale(frame *model.Frame, opts ScaleOptions) (*model.Frame, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, &model.ValidationError{Field: "frame", Reason: "zero or negative dimensions"}
	}
	if len(frame.Pixels) != frame.Width*frame.Height*4 {
		return nil, &model.ClassificationError{Reason: "pixel buffer length does not match dimensions"}
	}
	cols := opts.Columns
	if cols <= 0 {
		cols = model.MinColumns
	}
	ratio := opts.FontAspectRatio
	if ratio <= 0 {
		ratio = DefaultFontAspectRatio
	}

	stage1H := int(math.Round(float64(cols) * float64(frame.Height) / float64(frame.Width)))
	if stage1H < 1 {
		stage1H = 1
	}
	stage1 := resample(frame.Pixels, frame.Width, frame.Height, cols, stage1H)

	outH := int(math.Ceil(float64(stage1H) * ratio))
	if outH < 1 {
		outH = 1
	}
	out := resample(stage1, cols, stage1H, cols, outH)

	return &model.Frame{
		Index:     frame.Index,
		Timestamp: frame.Timestamp,
		Width:     cols,
		Height:    outH,
		Pixels:    out,
	}, nil
}

// resample performs a border-clamped bilinear resample of a packed RGBA
// buffer. Each output pixel is the weighted average of the four nearest
// source pixels; sample points outside the source are clamped to the edge,
// never wrapped.
func resample(src []byte, srcW, srcH, dstW, dstH int) []byte {
	dst := make([]byte, dstW*dstH*4)
	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)

	for y := 0; y < dstH; y++ {
		srcY := (float64(y)+0.5)*yRatio - 0.5
		if srcY < 0 {
			srcY = 0
		}
		y0 := int(srcY)
		if y0 > srcH-1 {
			y0 = srcH - 1
		}
		y1 := y0 + 1
		if y1 > srcH-1 {
			y1 = srcH - 1
		}
		fy := srcY - float64(y0)

		for x := 0; x < dstW; x++ {
			srcX := (float64(x)+0.5)*xRatio - 0.5
			if srcX < 0 {
				srcX = 0
			}
			x0 := int(srcX)
			if x0 > srcW-1 {
				x0 = srcW - 1
			}
			x1 := x0 + 1
			if x1 > srcW-1 {
				x1 = srcW - 1
			}
			fx := srcX - float64(x0)

			i00 := (y0*srcW + x0) * 4
			i10 := (y0*srcW + x1) * 4
			i01 := (y1*srcW + x0) * 4
			i11 := (y1*srcW + x1) * 4
			di := (y*dstW + x) * 4

			for c := 0; c < 4; c++ {
				top := float64(src[i00+c])*(1-fx) + float64(src[i10+c])*fx
				bottom := float64(src[i01+c])*(1-fx) + float64(src[i11+c])*fx
				dst[di+c] = byte(math.Round(top*(1-fy) + bottom*fy))
			}
		}
	}
	return dst
}
