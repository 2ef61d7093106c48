package media

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
)

// Info describes a video container.
type Info struct {
	Duration float64 // seconds
	Width    int
	Height   int
	FPS      float64 // native frame rate, 0 when unknown
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

// Probe reads duration and geometry of the first video stream.
func (e *Extractor) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, e.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration:stream=codec_type,width,height,r_frame_rate,duration",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, apperr.Wrap(err, apperr.CodeMedia, "ffprobe failed").
			WithMetadata("path", path).
			WithMetadata("stderr", strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, apperr.Wrap(err, apperr.CodeMedia, "unreadable ffprobe output")
	}

	var info Info
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		info.Width, info.Height = s.Width, s.Height
		info.FPS = parseRate(s.RFrameRate)
		if info.Duration <= 0 {
			info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		break
	}
	if info.Duration <= 0 {
		return Info{}, apperr.New(apperr.CodeMedia, "video has no measurable duration")
	}
	return info, nil
}

// parseRate reads ffprobe's "num/den" rational.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
