package registry

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asciimotion/api/internal/model"
)

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Config bounds the registry.
type Config struct {
	MaxConcurrentJobs int
	TTL               time.Duration
	SweepInterval     time.Duration
}

// Registry is the in-memory job store. All state lives behind one mutex;
// every exported operation is a single critical section, so concurrent
// callers never observe a partially updated job and no two Creates can
// jointly exceed the concurrency cap.
//
// Records expire TTL after creation. Expired records are invisible to every
// read even before the periodic sweep physically removes them.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	cfg  Config

	stop chan struct{}
	done chan struct{}
}

// New builds a registry and starts its background sweep. Call Close to stop
// the sweep timer.
func New(cfg Config) *Registry {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 3
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	r := &Registry{
		jobs: make(map[string]*model.Job),
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Close stops the background sweep.
func (r *Registry) Close() {
	close(r.stop)
	<-r.done
}

func (r *Registry) sweepLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if n := r.SweepExpired(); n > 0 {
				log.Printf("Swept %d expired jobs", n)
			}
		}
	}
}

// Create inserts a Pending job, or returns a CapacityError when the count of
// live Pending/Processing jobs has reached the cap. The check and the insert
// happen under one lock.
func (r *Registry) Create(settings model.ConversionSettings) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	active := 0
	for _, j := range r.jobs {
		if r.expired(j, now) {
			continue
		}
		if j.Status == model.JobStatusPending || j.Status == model.JobStatusProcessing {
			active++
		}
	}
	if active >= r.cfg.MaxConcurrentJobs {
		return nil, &model.CapacityError{Active: active, Limit: r.cfg.MaxConcurrentJobs}
	}

	job := &model.Job{
		ID:        newJobID(now),
		Status:    model.JobStatusPending,
		Settings:  settings,
		CreatedAt: now,
	}
	r.jobs[job.ID] = job
	return job.Clone(), nil
}

// Get returns a copy of the job, or nil when it is absent or expired.
// Expired records found here are removed on the spot.
func (r *Registry) Get(id string) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	if r.expired(job, time.Now()) {
		delete(r.jobs, id)
		return nil
	}
	return job.Clone()
}

// Update merges a patch into the job. Returns false when the job is absent
// or expired. Progress never moves backwards, CompletedAt is set exactly
// once on the first transition into a terminal status, and appended frames
// must arrive in index order: a frame whose index is not the next expected
// one is dropped to keep the stored range contiguous.
func (r *Registry) Update(id string, patch model.JobPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || r.expired(job, time.Now()) {
		return false
	}

	if patch.Status != nil && *patch.Status != job.Status {
		if !job.Status.Terminal() {
			job.Status = *patch.Status
			if job.Status.Terminal() && job.CompletedAt == nil {
				now := time.Now()
				job.CompletedAt = &now
			}
		}
	}
	if patch.Progress != nil && *patch.Progress > job.Progress {
		job.Progress = *patch.Progress
	}
	if patch.CurrentStep != nil {
		job.CurrentStep = *patch.CurrentStep
	}
	if patch.TotalFrameCount != nil {
		job.TotalFrameCount = *patch.TotalFrameCount
	}
	if patch.Error != nil {
		job.Error = patch.Error
	}
	for _, f := range patch.AppendFrames {
		if f.Index != len(job.Frames) {
			continue
		}
		job.Frames = append(job.Frames, f)
	}
	return true
}

// Delete removes the job outright.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// SweepExpired removes every expired record and reports how many went.
func (r *Registry) SweepExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	count := 0
	for id, job := range r.jobs {
		if r.expired(job, now) {
			delete(r.jobs, id)
			count++
		}
	}
	return count
}

// Stats counts non-expired jobs by status.
func (r *Registry) Stats() model.JobStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var stats model.JobStats
	for _, job := range r.jobs {
		if r.expired(job, now) {
			continue
		}
		stats.TotalJobs++
		switch job.Status {
		case model.JobStatusPending:
			stats.PendingJobs++
		case model.JobStatusProcessing:
			stats.ProcessingJobs++
		case model.JobStatusComplete:
			stats.CompleteJobs++
		case model.JobStatusError:
			stats.ErrorJobs++
		}
	}
	return stats
}

func (r *Registry) expired(job *model.Job, now time.Time) bool {
	return now.Sub(job.CreatedAt) > r.cfg.TTL
}

// newJobID builds a time-ordered id unique for the registry's lifetime.
func newJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("conv_%d_%s", now.UnixMilli(), suffix)
}
