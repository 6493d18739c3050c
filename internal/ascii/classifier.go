package ascii

import (
	"math"

	"github.com/asciimotion/api/internal/model"
)

// DefaultAlphaThreshold is the alpha value below which a pixel is treated as
// transparent and rendered blank.
const DefaultAlphaThreshold = 50

// Classifier maps one RGBA pixel to a ramp character and a color class. It
// is pure: identical input always yields identical output.
type Classifier struct {
	ramp           []rune
	primary        model.ReferenceColor
	secondary      model.ReferenceColor
	alphaThreshold uint8
}

// NewClassifier builds a classifier from validated settings.
func NewClassifier(settings model.ConversionSettings) *Classifier {
	return &Classifier{
		ramp:           []rune(settings.CharacterRamp),
		primary:        settings.ReferenceColors.Primary,
		secondary:      settings.ReferenceColors.Secondary,
		alphaThreshold: DefaultAlphaThreshold,
	}
}

// Classify decides the output cell for one pixel. Pixels under the alpha
// threshold, and pixels matching neither reference color, come back blank.
func (c *Classifier) Classify(r, g, b, a uint8) (rune, model.ColorClass) {
	if a < c.alphaThreshold {
		return ' ', model.ColorNone
	}

	lum := luminance(r, g, b)

	if manhattan(r, g, b, c.primary.Color) < c.primary.Tolerance {
		return c.rampChar(lum, c.primary), model.ColorPrimary
	}
	if manhattan(r, g, b, c.secondary.Color) < c.secondary.Tolerance {
		return c.rampChar(lum, c.secondary), model.ColorSecondary
	}
	return ' ', model.ColorNone
}

// rampChar scales luminance into the ramp using the reference color's bounds.
func (c *Classifier) rampChar(lum int, ref model.ReferenceColor) rune {
	k := len(c.ramp)
	idx := (lum - ref.MinLuminance) * (k - 1) / (ref.MaxLuminance - ref.MinLuminance)
	if idx < 0 {
		idx = 0
	}
	if idx > k-1 {
		idx = k - 1
	}
	return c.ramp[idx]
}

// luminance is the floored BT.709 weighted sum.
func luminance(r, g, b uint8) int {
	return int(math.Floor(0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)))
}

// manhattan is the sum of absolute per-channel differences to ref.
func manhattan(r, g, b uint8, ref model.RGB) int {
	return abs(int(r)-int(ref.R)) + abs(int(g)-int(ref.G)) + abs(int(b)-int(ref.B))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
