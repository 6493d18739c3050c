package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/asciimotion/api/internal/admission"
	"github.com/asciimotion/api/internal/ascii"
	"github.com/asciimotion/api/internal/model"
	"github.com/asciimotion/api/internal/registry"
	"github.com/asciimotion/api/internal/source"
)

// Notifier pushes job events to subscribers. The websocket hub implements
// it; a nil Notifier disables pushes.
type Notifier interface {
	BroadcastProgress(jobID string, status model.JobStatus, progress int, step string, frameCount int)
	BroadcastComplete(jobID string, totalFrames int)
	BroadcastError(jobID, code, message string)
}

// ConvertWorker runs one conversion job per Run call. The admission slot is
// always released on exit, whatever the exit path.
type ConvertWorker struct {
	registry   *registry.Registry
	admission  *admission.Controller
	src        source.FrameSource
	notifier   Notifier
	fontAspect float64
}

// NewConvertWorker creates a worker over the shared registry and controller.
func NewConvertWorker(reg *registry.Registry, adm *admission.Controller, src source.FrameSource, notifier Notifier) *ConvertWorker {
	return &ConvertWorker{
		registry:   reg,
		admission:  adm,
		src:        src,
		notifier:   notifier,
		fontAspect: ascii.DefaultFontAspectRatio,
	}
}

// Run converts one video buffer into ASCII frames, updating the job as it
// goes. It blocks until the job reaches a terminal status, the context is
// cancelled, or the wall-clock ceiling fires.
func (w *ConvertWorker) Run(ctx context.Context, jobID string, video []byte, settings model.ConversionSettings) error {
	defer w.admission.EndJob(jobID)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Job %s panicked: %v", jobID, r)
			w.failJob(jobID, "CONVERSION_FAILED", fmt.Sprintf("internal failure: %v", r))
		}
	}()

	log.Printf("Starting conversion job %s", jobID)
	w.updateProgress(jobID, 0, "Extracting frames...")

	columns := settings.Columns()
	stream, err := w.src.Open(ctx, video, columns, settings.FrameRate)
	if err != nil {
		w.failJob(jobID, "FRAME_SOURCE_FAILED", err.Error())
		return err
	}
	defer stream.Close()

	total := stream.TotalFrames()
	if total > 0 {
		w.registry.Update(jobID, model.JobPatch{TotalFrameCount: &total})
	}

	assembler := ascii.NewAssembler(settings)
	opts := ascii.ScaleOptions{Columns: columns, FontAspectRatio: w.fontAspect}

	frameCount := 0
	for {
		// Frame boundary: cancellation and timeout take effect here.
		select {
		case <-ctx.Done():
			return w.failCancelled(ctx, jobID)
		default:
		}

		frame, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return w.failCancelled(ctx, jobID)
		}
		if err != nil {
			w.failJob(jobID, "FRAME_SOURCE_FAILED", err.Error())
			return err
		}

		scaled, err := ascii.Scale(frame, opts)
		if err != nil {
			w.failJob(jobID, "CONVERSION_FAILED", err.Error())
			return err
		}
		asciiFrame, err := assembler.Assemble(scaled)
		if err != nil {
			w.failJob(jobID, "CONVERSION_FAILED", err.Error())
			return err
		}

		frameCount++
		progress := frameProgress(frameCount, total)
		step := fmt.Sprintf("Converting frame %d", frameCount)
		status := model.JobStatusProcessing
		if !w.registry.Update(jobID, model.JobPatch{
			Status:       &status,
			Progress:     &progress,
			CurrentStep:  &step,
			AppendFrames: []model.ASCIIFrame{asciiFrame},
		}) {
			// Record expired or was deleted mid-run; nothing left to update.
			log.Printf("Job %s disappeared mid-conversion, stopping", jobID)
			return nil
		}
		if w.notifier != nil {
			w.notifier.BroadcastProgress(jobID, status, progress, step, frameCount)
		}
	}

	if frameCount == 0 {
		err := &model.FrameSourceError{Err: fmt.Errorf("no frames decoded")}
		w.failJob(jobID, "FRAME_SOURCE_FAILED", err.Error())
		return err
	}

	status := model.JobStatusComplete
	progress := 100
	step := "Done"
	w.registry.Update(jobID, model.JobPatch{
		Status:          &status,
		Progress:        &progress,
		CurrentStep:     &step,
		TotalFrameCount: &frameCount,
	})
	if w.notifier != nil {
		w.notifier.BroadcastComplete(jobID, frameCount)
	}
	log.Printf("Conversion job %s completed with %d frames", jobID, frameCount)
	return nil
}

// frameProgress maps frame counts into 5..95; the final transition to
// Complete owns 100.
func frameProgress(done, total int) int {
	if total <= 0 {
		// Unknown length: advance slowly and let completion finish the bar.
		p := 5 + done/2
		if p > 95 {
			p = 95
		}
		return p
	}
	p := 5 + done*90/total
	if p > 95 {
		p = 95
	}
	return p
}

func (w *ConvertWorker) failCancelled(ctx context.Context, jobID string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err := &model.TimeoutError{Elapsed: w.admission.MaxJobDuration(), Limit: w.admission.MaxJobDuration()}
		w.failJob(jobID, "CONVERSION_TIMEOUT", err.Error())
		return err
	}
	w.failJob(jobID, "CONVERSION_CANCELLED", "conversion cancelled")
	return ctx.Err()
}

func (w *ConvertWorker) failJob(jobID, code, message string) {
	status := model.JobStatusError
	w.registry.Update(jobID, model.JobPatch{
		Status: &status,
		Error:  &message,
	})
	if w.notifier != nil {
		w.notifier.BroadcastError(jobID, code, message)
	}
	log.Printf("Conversion job %s failed: %s", jobID, message)
}

func (w *ConvertWorker) updateProgress(jobID string, progress int, step string) {
	status := model.JobStatusProcessing
	w.registry.Update(jobID, model.JobPatch{
		Status:      &status,
		Progress:    &progress,
		CurrentStep: &step,
	})
	if w.notifier != nil {
		w.notifier.BroadcastProgress(jobID, status, progress, step, 0)
	}
}
