package model

import "time"

// Job represents one conversion run in the registry
type Job struct {
	ID              string             `json:"id"`
	Status          JobStatus          `json:"status"`
	Progress        int                `json:"progress"`
	CurrentStep     string             `json:"currentStep,omitempty"`
	Settings        ConversionSettings `json:"settings"`
	Frames          []ASCIIFrame       `json:"-"`
	TotalFrameCount int                `json:"totalFrameCount,omitempty"`
	Error           *string            `json:"error,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
}

// Clone returns a copy whose Frames slice is detached from the registry's
// internal record, so callers can read it without holding the registry lock.
func (j *Job) Clone() *Job {
	out := *j
	if j.Frames != nil {
		out.Frames = make([]ASCIIFrame, len(j.Frames))
		copy(out.Frames, j.Frames)
	}
	if j.Error != nil {
		msg := *j.Error
		out.Error = &msg
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// JobPatch is a partial update merged into a job record. Nil fields are left
// untouched; AppendFrames are appended in order after the merge.
type JobPatch struct {
	Status          *JobStatus
	Progress        *int
	CurrentStep     *string
	TotalFrameCount *int
	Error           *string
	AppendFrames    []ASCIIFrame
}

// JobStats counts non-expired jobs by status.
type JobStats struct {
	TotalJobs      int `json:"totalJobs"`
	PendingJobs    int `json:"pendingJobs"`
	ProcessingJobs int `json:"processingJobs"`
	CompleteJobs   int `json:"completeJobs"`
	ErrorJobs      int `json:"errorJobs"`
}
