package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"

	"github.com/asciimotion/api/internal/model"
)

// FFmpegSource extracts frames by piping the video through ffmpeg as raw
// RGBA. Frames are decoded at up to twice the target column count; the
// pipeline's scaler still owns the exact output dimensions.
type FFmpegSource struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegSource resolves the ffmpeg and ffprobe binaries. Returns an error
// when either is missing from PATH so the caller can fall back to another
// source.
func NewFFmpegSource() (*FFmpegSource, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	return &FFmpegSource{FFmpegPath: ffmpeg, FFprobePath: ffprobe}, nil
}

type probeInfo struct {
	width    int
	height   int
	duration float64
}

// Open probes the buffer, starts the decode process and returns a stream
// over its stdout.
func (s *FFmpegSource) Open(ctx context.Context, video []byte, columns, fps int) (Stream, error) {
	tmp, err := os.CreateTemp("", "asciimotion-*.video")
	if err != nil {
		return nil, &model.FrameSourceError{Err: err}
	}
	if _, err := tmp.Write(video); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, &model.FrameSourceError{Err: err}
	}
	tmp.Close()

	info, err := s.probe(ctx, tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	// Decode-side prescale keeps per-frame buffers bounded; both dimensions
	// are fixed here so the rawvideo chunk size is known exactly.
	outW := columns * 2
	if outW > info.width {
		outW = info.width
	}
	if outW%2 != 0 {
		outW--
	}
	if outW < 2 {
		outW = 2
	}
	outH := int(math.Round(float64(outW) * float64(info.height) / float64(info.width)))
	if outH%2 != 0 {
		outH--
	}
	if outH < 2 {
		outH = 2
	}

	cmd := exec.CommandContext(ctx, s.FFmpegPath,
		"-i", tmp.Name(),
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fps, outW, outH),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-loglevel", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(tmp.Name())
		return nil, &model.FrameSourceError{Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		os.Remove(tmp.Name())
		return nil, &model.FrameSourceError{Err: err}
	}

	total := 0
	if info.duration > 0 {
		total = int(math.Ceil(info.duration * float64(fps)))
	}

	return &ffmpegStream{
		cmd:     cmd,
		stdout:  stdout,
		stderr:  &stderr,
		tmpPath: tmp.Name(),
		width:   outW,
		height:  outH,
		fps:     fps,
		total:   total,
	}, nil
}

// probe reads stream dimensions and duration via ffprobe.
func (s *FFmpegSource) probe(ctx context.Context, path string) (*probeInfo, error) {
	cmd := exec.CommandContext(ctx, s.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, &model.FrameSourceError{Err: fmt.Errorf("ffprobe: %w", err)}
	}

	var parsed struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, &model.FrameSourceError{Err: fmt.Errorf("ffprobe output: %w", err)}
	}
	if len(parsed.Streams) == 0 || parsed.Streams[0].Width <= 0 || parsed.Streams[0].Height <= 0 {
		return nil, &model.FrameSourceError{Err: fmt.Errorf("no decodable video stream")}
	}

	duration, _ := strconv.ParseFloat(parsed.Format.Duration, 64)
	return &probeInfo{
		width:    parsed.Streams[0].Width,
		height:   parsed.Streams[0].Height,
		duration: duration,
	}, nil
}

type ffmpegStream struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	tmpPath string
	width   int
	height  int
	fps     int
	index   int
	total   int
	closed  bool
}

func (st *ffmpegStream) Next(ctx context.Context) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, st.width*st.height*4)
	_, err := io.ReadFull(st.stdout, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if waitErr := st.wait(); waitErr != nil {
			return nil, waitErr
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, &model.FrameSourceError{Err: err}
	}

	frame := &model.Frame{
		Index:     st.index,
		Timestamp: float64(st.index) / float64(st.fps),
		Width:     st.width,
		Height:    st.height,
		Pixels:    buf,
	}
	st.index++
	return frame, nil
}

func (st *ffmpegStream) TotalFrames() int { return st.total }

func (st *ffmpegStream) wait() error {
	if st.closed {
		return nil
	}
	st.closed = true
	defer os.Remove(st.tmpPath)
	if err := st.cmd.Wait(); err != nil {
		msg := st.stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return &model.FrameSourceError{Err: fmt.Errorf("ffmpeg: %s", msg)}
	}
	return nil
}

func (st *ffmpegStream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.stdout.Close()
	st.cmd.Process.Kill()
	st.cmd.Wait()
	os.Remove(st.tmpPath)
	return nil
}
