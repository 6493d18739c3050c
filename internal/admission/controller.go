package admission

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/asciimotion/api/internal/model"
)

const (
	DefaultMaxConcurrentJobs  = 3
	DefaultMaxInputBytes      = 100 * 1024 * 1024
	DefaultMemoryCeilingBytes = 512 * 1024 * 1024
	DefaultMemoryMultiplier   = 3.0
	DefaultMaxJobDuration     = 10 * time.Minute
	DefaultSampleInterval     = 30 * time.Second
	DefaultSnapshotWindow     = time.Hour

	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Config bounds the controller.
type Config struct {
	MaxConcurrentJobs  int
	MaxInputBytes      int64
	MemoryCeilingBytes int64
	// MemoryMultiplier converts input size to a decoded-frame memory
	// estimate; RGBA expansion makes the working set several times the
	// compressed input.
	MemoryMultiplier float64
	MaxJobDuration   time.Duration
	SampleInterval   time.Duration
	SnapshotWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.MaxInputBytes <= 0 {
		c.MaxInputBytes = DefaultMaxInputBytes
	}
	if c.MemoryCeilingBytes <= 0 {
		c.MemoryCeilingBytes = DefaultMemoryCeilingBytes
	}
	if c.MemoryMultiplier <= 0 {
		c.MemoryMultiplier = DefaultMemoryMultiplier
	}
	if c.MaxJobDuration <= 0 {
		c.MaxJobDuration = DefaultMaxJobDuration
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.SnapshotWindow <= 0 {
		c.SnapshotWindow = DefaultSnapshotWindow
	}
	return c
}

// ResourceSnapshot is one periodic sample of process load.
type ResourceSnapshot struct {
	ActiveJobCount         int       `json:"activeJobCount"`
	EstimatedMemoryBytes   int64     `json:"estimatedMemoryBytes"`
	SystemMemoryUsedBytes  uint64    `json:"systemMemoryUsedBytes"`
	SystemMemoryTotalBytes uint64    `json:"systemMemoryTotalBytes"`
	CPUProxyPercent        float64   `json:"cpuProxyPercent"`
	Timestamp              time.Time `json:"timestamp"`
}

// Rejection codes carried by Decision.
const (
	RejectInputTooLarge = "input_too_large"
	RejectConcurrency   = "concurrency_exceeded"
	RejectMemory        = "memory_ceiling"
)

// Decision is the structured answer to CanStartJob. Rejections carry a
// reason and a code; the controller itself never surfaces them as errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// Cause is the typed error behind a rejection, for errors.As callers
	// further up. Never serialized.
	Cause error `json:"-"`
}

// HealthStatus summarizes current load for the health endpoint.
type HealthStatus struct {
	Status                 model.HealthLevel `json:"status"`
	ActiveJobs             int               `json:"activeJobs"`
	MaxJobs                int               `json:"maxJobs"`
	JobPercent             float64           `json:"jobPercent"`
	MemoryBytes            int64             `json:"memoryBytes"`
	MemoryCeilingBytes     int64             `json:"memoryCeilingBytes"`
	MemoryPercent          float64           `json:"memoryPercent"`
	SystemMemoryUsedBytes  uint64            `json:"systemMemoryUsedBytes"`
	SystemMemoryTotalBytes uint64            `json:"systemMemoryTotalBytes"`
	Timestamp              time.Time         `json:"timestamp"`
}

type activeJob struct {
	startedAt      time.Time
	estimatedBytes int64
}

// Controller is the process-wide gatekeeper for starting jobs. One instance
// is built at startup and shared by reference; all state sits behind a
// single mutex so no two admissions can jointly exceed the concurrency cap.
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	active    map[string]activeJob
	snapshots []ResourceSnapshot
	rng       *rand.Rand

	stop chan struct{}
	done chan struct{}
}

// New builds a controller and starts its resource sampler. Call Close on
// shutdown to stop the sampler.
func New(cfg Config) *Controller {
	c := &Controller{
		cfg:    cfg.withDefaults(),
		active: make(map[string]activeJob),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.recordSnapshot()
	go c.sampleLoop()
	return c
}

// Close stops the background sampler.
func (c *Controller) Close() {
	close(c.stop)
	<-c.done
}

func (c *Controller) sampleLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.recordSnapshot()
		}
	}
}

// CanStartJob decides whether a job with the given input size may begin.
// Checks run in order (oversized input, concurrency cap, memory ceiling) and
// the first failure wins.
func (c *Controller) CanStartJob(estimatedInputBytes int64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if estimatedInputBytes > c.cfg.MaxInputBytes {
		return Decision{
			Allowed: false,
			Code:    RejectInputTooLarge,
			Reason: fmt.Sprintf("input of %d bytes exceeds the maximum of %d bytes",
				estimatedInputBytes, c.cfg.MaxInputBytes),
			Cause: &model.ValidationError{
				Field:  "video",
				Reason: fmt.Sprintf("%d bytes exceeds the %d byte limit", estimatedInputBytes, c.cfg.MaxInputBytes),
			},
		}
	}
	if len(c.active) >= c.cfg.MaxConcurrentJobs {
		return Decision{
			Allowed: false,
			Code:    RejectConcurrency,
			Reason:  fmt.Sprintf("all %d job slots are in use", c.cfg.MaxConcurrentJobs),
			Cause:   &model.CapacityError{Active: len(c.active), Limit: c.cfg.MaxConcurrentJobs},
		}
	}
	estimate := int64(float64(estimatedInputBytes) * c.cfg.MemoryMultiplier)
	if used := c.estimatedMemoryLocked(); used+estimate > c.cfg.MemoryCeilingBytes {
		return Decision{
			Allowed: false,
			Code:    RejectMemory,
			Reason: fmt.Sprintf("estimated memory %d bytes would exceed the ceiling of %d bytes",
				used+estimate, c.cfg.MemoryCeilingBytes),
			Cause: &model.MemoryError{EstimatedBytes: used + estimate, CeilingBytes: c.cfg.MemoryCeilingBytes},
		}
	}
	return Decision{Allowed: true}
}

// StartJob records the job as active. Idempotent: restarting an already
// active id keeps its original start time.
func (c *Controller) StartJob(id string, estimatedInputBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[id]; ok {
		return
	}
	c.active[id] = activeJob{
		startedAt:      time.Now(),
		estimatedBytes: int64(float64(estimatedInputBytes) * c.cfg.MemoryMultiplier),
	}
}

// EndJob releases the job's slot. Idempotent.
func (c *Controller) EndJob(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// ActiveJobCount reports the number of admitted jobs.
func (c *Controller) ActiveJobCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// ExpiredJobs lists active jobs that have overrun the wall-clock ceiling.
func (c *Controller) ExpiredJobs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var ids []string
	for id, j := range c.active {
		if now.Sub(j.startedAt) > c.cfg.MaxJobDuration {
			ids = append(ids, id)
		}
	}
	return ids
}

// CleanupExpiredJobs force-ends every overrunning job and returns their ids
// so the caller can mark them failed. This is the liveness safety net for a
// pipeline step that never completes.
func (c *Controller) CleanupExpiredJobs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var ids []string
	for id, j := range c.active {
		if now.Sub(j.startedAt) > c.cfg.MaxJobDuration {
			log.Printf("Force-ending job %s after %s", id, now.Sub(j.startedAt).Round(time.Second))
			delete(c.active, id)
			ids = append(ids, id)
		}
	}
	return ids
}

// MaxJobDuration exposes the wall-clock ceiling for per-job contexts.
func (c *Controller) MaxJobDuration() time.Duration {
	return c.cfg.MaxJobDuration
}

// GetHealthStatus derives a coarse health level from job and memory
// utilization: 90% of either is critical, 70% is a warning.
func (c *Controller) GetHealthStatus() HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	memBytes := c.estimatedMemoryLocked()
	sysUsed, sysTotal := c.systemMemoryLocked()
	jobPct := float64(len(c.active)) / float64(c.cfg.MaxConcurrentJobs) * 100
	memPct := float64(memBytes) / float64(c.cfg.MemoryCeilingBytes) * 100

	status := model.HealthHealthy
	worst := jobPct
	if memPct > worst {
		worst = memPct
	}
	switch {
	case worst >= 90:
		status = model.HealthCritical
	case worst >= 70:
		status = model.HealthWarning
	}

	return HealthStatus{
		Status:                 status,
		ActiveJobs:             len(c.active),
		MaxJobs:                c.cfg.MaxConcurrentJobs,
		JobPercent:             jobPct,
		MemoryBytes:            memBytes,
		MemoryCeilingBytes:     c.cfg.MemoryCeilingBytes,
		MemoryPercent:          memPct,
		SystemMemoryUsedBytes:  sysUsed,
		SystemMemoryTotalBytes: sysTotal,
		Timestamp:              time.Now(),
	}
}

// GetRetryDelay recommends how long a rejected caller should wait. The delay
// grows with current load and carries up to 50% jitter so rejected callers
// do not retry in lockstep.
func (c *Controller) GetRetryDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	delay := baseRetryDelay * time.Duration(1+len(c.active))
	jitter := time.Duration(c.rng.Int63n(int64(delay)/2 + 1))
	delay += jitter
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// Snapshots returns a copy of the bounded snapshot window, oldest first.
func (c *Controller) Snapshots() []ResourceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ResourceSnapshot, len(c.snapshots))
	copy(out, c.snapshots)
	return out
}

func (c *Controller) recordSnapshot() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	sysUsed, sysTotal := c.systemMemoryLocked()
	snap := ResourceSnapshot{
		ActiveJobCount:         len(c.active),
		EstimatedMemoryBytes:   c.estimatedMemoryLocked(),
		SystemMemoryUsedBytes:  sysUsed,
		SystemMemoryTotalBytes: sysTotal,
		CPUProxyPercent:        c.cpuProxyLocked(),
		Timestamp:              now,
	}
	c.snapshots = append(c.snapshots, snap)

	cutoff := now.Add(-c.cfg.SnapshotWindow)
	trim := 0
	for trim < len(c.snapshots) && c.snapshots[trim].Timestamp.Before(cutoff) {
		trim++
	}
	c.snapshots = c.snapshots[trim:]
}

// estimatedMemoryLocked sums the per-job estimates. Caller holds the lock.
func (c *Controller) estimatedMemoryLocked() int64 {
	var total int64
	for _, j := range c.active {
		total += j.estimatedBytes
	}
	return total
}

// cpuProxyLocked samples system CPU, falling back to job saturation as a
// proxy when the probe fails.
func (c *Controller) cpuProxyLocked() float64 {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		return percents[0]
	}
	return float64(len(c.active)) / float64(c.cfg.MaxConcurrentJobs) * 100
}

// systemMemoryLocked samples host memory, falling back to the per-job
// estimates against the configured ceiling when the probe fails. Caller holds
// the lock.
func (c *Controller) systemMemoryLocked() (used, total uint64) {
	if u, t, err := SystemMemory(); err == nil && t > 0 {
		return u, t
	}
	return uint64(c.estimatedMemoryLocked()), uint64(c.cfg.MemoryCeilingBytes)
}

// SystemMemory reports host memory via gopsutil.
func SystemMemory() (used, total uint64, err error) {
	stats, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return stats.Used, stats.Total, nil
}
