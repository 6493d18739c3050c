package model

import (
	"fmt"
	"math"
)

// Columns are derived from ResolutionScale against this base so a scale of
// 1.0 yields a 240-column frame.
const (
	BaseColumns = 240
	MinColumns  = 16
)

// RGB is an opaque 8-bit color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// ReferenceColor is one of the two designated targets a pixel is matched
// against. Tolerance bounds the Manhattan distance; the luminance bounds
// anchor the character-ramp scaling for matching pixels.
type ReferenceColor struct {
	Color        RGB `json:"color"`
	Tolerance    int `json:"tolerance" validate:"min=0,max=765"`
	MinLuminance int `json:"minLuminance" validate:"min=0,max=255"`
	MaxLuminance int `json:"maxLuminance" validate:"min=0,max=255"`
}

// ReferenceColors pairs the primary (highlighted) and secondary targets.
type ReferenceColors struct {
	Primary   ReferenceColor `json:"primary"`
	Secondary ReferenceColor `json:"secondary"`
}

// ConversionSettings is the closed, validated configuration for one job.
// Validation happens once at the HTTP boundary; the pipeline trusts it.
type ConversionSettings struct {
	FrameRate       int             `json:"frameRate" validate:"min=1,max=30"`
	ResolutionScale float64         `json:"resolutionScale" validate:"gt=0,lte=1"`
	CharacterRamp   string          `json:"characterRamp"`
	ColorMode       ColorMode       `json:"colorMode" validate:"oneof=mono highlight"`
	ReferenceColors ReferenceColors `json:"referenceColors"`
	Background      Background      `json:"background" validate:"oneof=dark light"`
}

// DefaultSettings returns the settings used when a start request omits
// fields. The blue/white reference pair matches the classifier defaults.
func DefaultSettings() ConversionSettings {
	return ConversionSettings{
		FrameRate:       10,
		ResolutionScale: 0.5,
		CharacterRamp:   " .:-=+*#%@",
		ColorMode:       ColorModeHighlight,
		ReferenceColors: ReferenceColors{
			Primary: ReferenceColor{
				Color:        RGB{R: 0, G: 102, B: 255},
				Tolerance:    90,
				MinLuminance: 0,
				MaxLuminance: 255,
			},
			Secondary: ReferenceColor{
				Color:        RGB{R: 215, G: 215, B: 215},
				Tolerance:    140,
				MinLuminance: 170,
				MaxLuminance: 255,
			},
		},
		Background: BackgroundDark,
	}
}

// Columns converts the resolution scale to a target column count.
func (s ConversionSettings) Columns() int {
	cols := int(math.Round(s.ResolutionScale * BaseColumns))
	if cols < MinColumns {
		cols = MinColumns
	}
	return cols
}

// Validate covers the constraints validator tags cannot express: ramp length
// and uniqueness, and luminance bound ordering.
func (s ConversionSettings) Validate() error {
	ramp := []rune(s.CharacterRamp)
	if len(ramp) < 2 || len(ramp) > 50 {
		return &ValidationError{Field: "characterRamp", Reason: fmt.Sprintf("must contain 2-50 characters, got %d", len(ramp))}
	}
	seen := make(map[rune]bool, len(ramp))
	for _, r := range ramp {
		if seen[r] {
			return &ValidationError{Field: "characterRamp", Reason: fmt.Sprintf("duplicate character %q", r)}
		}
		seen[r] = true
	}
	for name, ref := range map[string]ReferenceColor{
		"referenceColors.primary":   s.ReferenceColors.Primary,
		"referenceColors.secondary": s.ReferenceColors.Secondary,
	} {
		if ref.MinLuminance >= ref.MaxLuminance {
			return &ValidationError{Field: name, Reason: "minLuminance must be below maxLuminance"}
		}
	}
	return nil
}
