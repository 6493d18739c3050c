package model

import (
	"fmt"
	"time"
)

// ValidationError reports bad input shape. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// CapacityError reports that the registry or admission controller is full.
// Retryable after backoff.
type CapacityError struct {
	Active int
	Limit  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %d of %d job slots in use", e.Active, e.Limit)
}

// FrameSourceError wraps an extraction failure. Not retryable with the same
// input.
type FrameSourceError struct {
	Err error
}

func (e *FrameSourceError) Error() string { return fmt.Sprintf("frame source: %v", e.Err) }
func (e *FrameSourceError) Unwrap() error { return e.Err }

// ClassificationError reports a malformed pixel buffer. Fatal to the job.
type ClassificationError struct {
	Reason string
}

func (e *ClassificationError) Error() string { return fmt.Sprintf("classification: %s", e.Reason) }

// TimeoutError reports that a job exceeded the wall-clock ceiling. Retryable
// with reduced settings.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job exceeded maximum duration: ran %s, limit %s", e.Elapsed.Round(time.Second), e.Limit)
}

// MemoryError reports resource pressure. Not retryable without reduced
// settings.
type MemoryError struct {
	EstimatedBytes int64
	CeilingBytes   int64
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory ceiling exceeded: estimated %d bytes against ceiling %d bytes", e.EstimatedBytes, e.CeilingBytes)
}
