package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Config locates the tools and controls frame retention.
type Config struct {
	FFmpeg  string
	FFprobe string
	KeepDir string // when set, frames are kept under KeepDir/<video>_<timestamp>
}

// Video is a sampled video.
type Video struct {
	Path     string
	Info     Info
	FPS      float64 // sampling rate
	Frames   []model.Frame
	FrameDir string // set only when frames were kept
}

// Extractor samples frames at a fixed rate.
type Extractor struct {
	ffmpeg  string
	ffprobe string
	keepDir string
	now     func() time.Time
}

// NewExtractor creates an extractor. Empty tool paths fall back to the names on PATH.
func NewExtractor(cfg Config) *Extractor {
	e := &Extractor{ffmpeg: cfg.FFmpeg, ffprobe: cfg.FFprobe, keepDir: cfg.KeepDir, now: time.Now}
	if e.ffmpeg == "" {
		e.ffmpeg = DefaultFFmpeg
	}
	if e.ffprobe == "" {
		e.ffprobe = DefaultFFprobe
	}
	return e
}

// Extract samples path at fps frames per second. Frame i sits at i/fps seconds;
// frames at or beyond the probed duration are dropped.
func (e *Extractor) Extract(ctx context.Context, path string, fps float64) (*Video, error) {
	ctx, span := trace.StartSpan(ctx, "extract_frames")
	defer span.End()
	log := trace.Logger(ctx)

	if fps <= 0 {
		fps = DefaultFPS
	}
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeMedia, "video not readable").WithMetadata("path", path)
	}
	for _, tool := range []string{e.ffmpeg, e.ffprobe} {
		if _, err := exec.LookPath(tool); err != nil {
			return nil, apperr.Wrapf(err, apperr.CodeMedia, "%s not found", tool)
		}
	}

	info, err := e.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	dir, cleanup, err := e.frameDir(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-v", "error",
		"-i", path,
		"-vf", "fps="+strconv.FormatFloat(fps, 'f', -1, 64),
		"-q:v", strconv.Itoa(JPEGQuality),
		"-start_number", "0",
		filepath.Join(dir, framePattern),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(ctx.Err(), apperr.CodeCancelled, "frame extraction cancelled")
		}
		return nil, apperr.Wrap(err, apperr.CodeMedia, "ffmpeg failed").
			WithMetadata("path", path).
			WithMetadata("stderr", strings.TrimSpace(stderr.String()))
	}

	frames, err := readFrames(dir, fps, info.Duration)
	if err != nil {
		return nil, err
	}

	v := &Video{Path: path, Info: info, FPS: fps, Frames: frames}
	if e.keepDir != "" {
		v.FrameDir = dir
	}
	span.SetAttr("frames", len(frames))
	span.SetAttr("duration_s", info.Duration)
	log.Info("frames extracted", "path", path, "frames", len(frames), "duration_s", info.Duration, "fps", fps)
	return v, nil
}

func (e *Extractor) frameDir(path string) (string, func(), error) {
	if e.keepDir != "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		dir := filepath.Join(e.keepDir, fmt.Sprintf("%s_%s", base, e.now().Format("20060102_150405")))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, apperr.Wrap(err, apperr.CodeMedia, "create frame directory")
		}
		return dir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "vos-frames-*")
	if err != nil {
		return "", nil, apperr.Wrap(err, apperr.CodeMedia, "create temp frame directory")
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

func readFrames(dir string, fps, duration float64) ([]model.Frame, error) {
	names, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeMedia, "list frames")
	}
	slices.Sort(names)

	frames := make([]model.Frame, 0, len(names))
	for i, name := range names {
		ts := float64(i) / fps
		if ts >= duration {
			break
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeMedia, "read frame").WithMetadata("frame", filepath.Base(name))
		}
		frames = append(frames, model.Frame{Index: i, Timestamp: ts, Image: data})
	}
	if len(frames) == 0 {
		return nil, apperr.New(apperr.CodeMedia, "no frames extracted")
	}
	return frames, nil
}
