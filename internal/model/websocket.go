package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
)

// WSProgressMessage is pushed to subscribers on every appended frame batch.
type WSProgressMessage struct {
	Type        string    `json:"type"`
	JobID       string    `json:"jobId"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"currentStep,omitempty"`
	FrameCount  int       `json:"frameCount"`
}

// WSCompleteMessage is pushed once when a job reaches Complete.
type WSCompleteMessage struct {
	Type            string `json:"type"`
	JobID           string `json:"jobId"`
	TotalFrameCount int    `json:"totalFrameCount"`
}

// WSErrorMessage is pushed once when a job reaches Error.
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError carries the failure code and message
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
