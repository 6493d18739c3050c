// Package archive packages a completed job's frames into a downloadable
// zip. It only ever sees jobs the service has already verified Complete, so
// the frame sequence it reads is contiguous and non-empty.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/asciimotion/api/internal/ascii"
	"github.com/asciimotion/api/internal/model"
)

// BuildZip writes one text file per frame plus a manifest. Frames with
// highlight spans additionally get a .html markup rendition.
func BuildZip(job *model.Job) ([]byte, error) {
	if job.Status != model.JobStatusComplete {
		return nil, fmt.Errorf("job %s is not complete", job.ID)
	}
	if len(job.Frames) == 0 {
		return nil, fmt.Errorf("job %s has no frames", job.ID)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, frame := range job.Frames {
		w, err := zw.Create(fmt.Sprintf("frames/frame_%05d.txt", frame.Index))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(frame.Text)); err != nil {
			return nil, err
		}
		if len(frame.Spans) > 0 {
			hw, err := zw.Create(fmt.Sprintf("frames/frame_%05d.html", frame.Index))
			if err != nil {
				return nil, err
			}
			if _, err := hw.Write([]byte(ascii.Markup(frame))); err != nil {
				return nil, err
			}
		}
	}

	mw, err := zw.Create("manifest.txt")
	if err != nil {
		return nil, err
	}
	manifest := fmt.Sprintf("job: %s\nframes: %d\nfps: %d\ncolumns: %d\n",
		job.ID, len(job.Frames), job.Settings.FrameRate, job.Settings.Columns())
	if _, err := mw.Write([]byte(manifest)); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
