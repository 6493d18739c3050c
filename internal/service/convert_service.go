package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/asciimotion/api/internal/admission"
	"github.com/asciimotion/api/internal/model"
	"github.com/asciimotion/api/internal/registry"
	"github.com/asciimotion/api/internal/source"
	"github.com/asciimotion/api/internal/worker"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotComplete = errors.New("job not completed")
	ErrJobAlreadyDone = errors.New("job already completed")
)

// AdmissionError carries a structured admission rejection across the service
// boundary, including the recommended retry delay. Unwrap exposes the typed
// cause, so errors.As reaches the underlying CapacityError or MemoryError.
type AdmissionError struct {
	Decision   admission.Decision
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string { return e.Decision.Reason }
func (e *AdmissionError) Unwrap() error { return e.Decision.Cause }

// ConvertService orchestrates conversion jobs: admission, registry record,
// one worker goroutine per job, cancellation, and the duration reaper.
type ConvertService struct {
	registry  *registry.Registry
	admission *admission.Controller
	worker    *worker.ConvertWorker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	stop chan struct{}
	done chan struct{}
}

// NewConvertService wires the shared registry and admission controller to a
// worker and starts the duration reaper. Call Close on shutdown.
func NewConvertService(reg *registry.Registry, adm *admission.Controller, src source.FrameSource, notifier worker.Notifier) *ConvertService {
	s := &ConvertService{
		registry:  reg,
		admission: adm,
		worker:    worker.NewConvertWorker(reg, adm, src, notifier),
		cancels:   make(map[string]context.CancelFunc),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.reapLoop()
	return s
}

// Close stops the reaper and cancels every in-flight job.
func (s *ConvertService) Close() {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
}

// StartConvert admits, registers and launches one conversion job. The video
// buffer is owned by the job goroutine after this returns.
func (s *ConvertService) StartConvert(video []byte, req *model.ConvertStartRequest) (*model.ConvertStartResponse, error) {
	settings := model.DefaultSettings()
	if req != nil {
		settings = req.Apply(settings)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if len(video) == 0 {
		return nil, &model.ValidationError{Field: "video", Reason: "empty video buffer"}
	}

	decision := s.admission.CanStartJob(int64(len(video)))
	if !decision.Allowed {
		return nil, &AdmissionError{Decision: decision, RetryAfter: s.admission.GetRetryDelay()}
	}

	job, err := s.registry.Create(settings)
	if err != nil {
		return nil, err
	}
	s.admission.StartJob(job.ID, int64(len(video)))

	ctx, cancel := context.WithTimeout(context.Background(), s.admission.MaxJobDuration())
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer s.dropCancel(job.ID)
		if err := s.worker.Run(ctx, job.ID, video, settings); err != nil {
			log.Printf("Job %s finished with error: %v", job.ID, err)
		}
	}()

	return &model.ConvertStartResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// GetStatus reports progress for one job.
func (s *ConvertService) GetStatus(jobID string) (*model.ConvertStatusResponse, error) {
	job := s.registry.Get(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return &model.ConvertStatusResponse{
		JobID:           job.ID,
		Status:          job.Status,
		Progress:        job.Progress,
		CurrentStep:     job.CurrentStep,
		FrameCount:      len(job.Frames),
		TotalFrameCount: job.TotalFrameCount,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	}, nil
}

// GetResult returns the frames of a Complete job. With partial set, the
// retained frames of an Error job are returned for diagnostics; those are
// never eligible for packaging.
func (s *ConvertService) GetResult(jobID string, partial bool) (*model.ConvertResultResponse, error) {
	job := s.registry.Get(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}

	switch {
	case job.Status == model.JobStatusComplete:
		return &model.ConvertResultResponse{
			JobID:           job.ID,
			Status:          job.Status,
			Frames:          job.Frames,
			TotalFrameCount: job.TotalFrameCount,
		}, nil
	case job.Status == model.JobStatusError && partial:
		return &model.ConvertResultResponse{
			JobID:           job.ID,
			Status:          job.Status,
			Frames:          job.Frames,
			TotalFrameCount: job.TotalFrameCount,
			Partial:         true,
		}, nil
	default:
		return nil, ErrJobNotComplete
	}
}

// GetCompleteJob returns the full job record only when it is Complete; the
// packaging consumer goes through this guard.
func (s *ConvertService) GetCompleteJob(jobID string) (*model.Job, error) {
	job := s.registry.Get(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status != model.JobStatusComplete {
		return nil, ErrJobNotComplete
	}
	return job, nil
}

// Cancel stops a running job at its next frame boundary and marks it Error.
func (s *ConvertService) Cancel(jobID string) (*model.ConvertCancelResponse, error) {
	job := s.registry.Get(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil, ErrJobAlreadyDone
	}

	status := model.JobStatusError
	msg := "conversion cancelled by user"
	s.registry.Update(jobID, model.JobPatch{Status: &status, Error: &msg})

	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	return &model.ConvertCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  status,
	}, nil
}

// Stats proxies registry stats.
func (s *ConvertService) Stats() model.JobStats {
	return s.registry.Stats()
}

// Health reports the admission controller's view of the process.
func (s *ConvertService) Health() admission.HealthStatus {
	return s.admission.GetHealthStatus()
}

func (s *ConvertService) dropCancel(jobID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	delete(s.cancels, jobID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// reapLoop force-fails jobs that outlive the wall-clock ceiling. This backs
// up the per-job context timeout: even if a worker wedges inside a pipeline
// step, its slot is reclaimed and the job is reported as Error.
func (s *ConvertService) reapLoop() {
	defer close(s.done)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for _, id := range s.admission.CleanupExpiredJobs() {
				status := model.JobStatusError
				msg := fmt.Sprintf("job exceeded maximum duration of %s", s.admission.MaxJobDuration())
				s.registry.Update(id, model.JobPatch{Status: &status, Error: &msg})
				s.mu.Lock()
				cancel, ok := s.cancels[id]
				s.mu.Unlock()
				if ok {
					cancel()
				}
			}
		}
	}
}
