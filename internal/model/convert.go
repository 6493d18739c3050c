package model

import "time"

// ConvertStartRequest carries the settings half of the multipart start
// request. The video buffer arrives as the "video" file part.
type ConvertStartRequest struct {
	FrameRate       *int             `json:"frameRate,omitempty" validate:"omitempty,min=1,max=30"`
	ResolutionScale *float64         `json:"resolutionScale,omitempty" validate:"omitempty,gt=0,lte=1"`
	CharacterRamp   *string          `json:"characterRamp,omitempty"`
	ColorMode       *ColorMode       `json:"colorMode,omitempty" validate:"omitempty,oneof=mono highlight"`
	ReferenceColors *ReferenceColors `json:"referenceColors,omitempty"`
	Background      *Background      `json:"background,omitempty" validate:"omitempty,oneof=dark light"`
}

// Apply overlays the request's set fields onto base.
func (r *ConvertStartRequest) Apply(base ConversionSettings) ConversionSettings {
	if r.FrameRate != nil {
		base.FrameRate = *r.FrameRate
	}
	if r.ResolutionScale != nil {
		base.ResolutionScale = *r.ResolutionScale
	}
	if r.CharacterRamp != nil {
		base.CharacterRamp = *r.CharacterRamp
	}
	if r.ColorMode != nil {
		base.ColorMode = *r.ColorMode
	}
	if r.ReferenceColors != nil {
		base.ReferenceColors = *r.ReferenceColors
	}
	if r.Background != nil {
		base.Background = *r.Background
	}
	return base
}

// ConvertStartResponse acknowledges an accepted job
type ConvertStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConvertStatusResponse reports job progress
type ConvertStatusResponse struct {
	JobID           string     `json:"jobId"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	CurrentStep     string     `json:"currentStep,omitempty"`
	FrameCount      int        `json:"frameCount"`
	TotalFrameCount int        `json:"totalFrameCount,omitempty"`
	Error           *string    `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// ConvertResultResponse carries the frames of a Complete job (or the partial
// frames of an Error job when explicitly requested for diagnostics).
type ConvertResultResponse struct {
	JobID           string       `json:"jobId"`
	Status          JobStatus    `json:"status"`
	Frames          []ASCIIFrame `json:"frames"`
	TotalFrameCount int          `json:"totalFrameCount"`
	Partial         bool         `json:"partial,omitempty"`
}

// ConvertCancelResponse acknowledges a cancellation
type ConvertCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}
