package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// Color modes
type ColorMode string

const (
	ColorModeMono      ColorMode = "mono"
	ColorModeHighlight ColorMode = "highlight"
)

var ValidColorModes = []ColorMode{ColorModeMono, ColorModeHighlight}

// Background styles
type Background string

const (
	BackgroundDark  Background = "dark"
	BackgroundLight Background = "light"
)

var ValidBackgrounds = []Background{BackgroundDark, BackgroundLight}

// Health levels reported by the admission controller
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)
