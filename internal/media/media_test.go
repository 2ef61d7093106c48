package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/corona10/goimagehash"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

func TestParseProbe(t *testing.T) {
	data := []byte(`{"streams":[{"codec_type":"video","width":1280,"height":720,"r_frame_rate":"30000/1001","duration":"9.9"}],
		"format":{"duration":"10.010000"}}`)
	info, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Duration != 10.01 {
		t.Errorf("Duration = %v, want 10.01", info.Duration)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("size = %dx%d", info.Width, info.Height)
	}
	if info.FPS < 29.96 || info.FPS > 29.98 {
		t.Errorf("FPS = %v", info.FPS)
	}
}

func TestParseProbeFallsBackToStreamDuration(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"width":10,"height":10,"duration":"3.5"}],"format":{}}`))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Duration != 3.5 {
		t.Errorf("Duration = %v, want 3.5", info.Duration)
	}
}

func TestParseProbeRejects(t *testing.T) {
	for _, in := range []string{"not json", `{"format":{"duration":"N/A"},"streams":[]}`} {
		if _, err := parseProbe([]byte(in)); apperr.CodeOf(err) != apperr.CodeMedia {
			t.Errorf("parseProbe(%q) err = %v, want MEDIA", in, err)
		}
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]float64{"25/1": 25, "24": 24, "0/0": 0, "": 0, "x/2": 0}
	for in, want := range tests {
		if got := parseRate(in); got != want {
			t.Errorf("parseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

// fakeTools writes shell stand-ins for ffprobe and ffmpeg. The fake ffmpeg writes n copies of img.
func fakeTools(t *testing.T, duration string, n int, img []byte) Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	if err := os.WriteFile(src, img, 0o644); err != nil {
		t.Fatal(err)
	}

	probe := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\",\"width\":8,\"height\":8,\"r_frame_rate\":\"30/1\"}],\"format\":{\"duration\":\"" + duration + "\"}}'\n"
	var ff strings.Builder
	ff.WriteString("#!/bin/sh\nfor last; do :; done\nout=$(dirname \"$last\")\n")
	for i := 0; i < n; i++ {
		ff.WriteString("cp " + src + " \"$out/frame_0000" + string(rune('0'+i)) + ".jpg\"\n")
	}

	cfg := Config{FFprobe: filepath.Join(dir, "ffprobe"), FFmpeg: filepath.Join(dir, "ffmpeg")}
	if err := os.WriteFile(cfg.FFprobe, []byte(probe), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.FFmpeg, []byte(ff.String()), 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func solidJPEG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func videoFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(p, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtract(t *testing.T) {
	cfg := fakeTools(t, "1.0", 6, solidJPEG(t, color.White))
	v, err := NewExtractor(cfg).Extract(context.Background(), videoFile(t), 4)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// 6 files written, but only t < 1.0s survive at 4 fps
	if len(v.Frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(v.Frames))
	}
	if v.Frames[3].Timestamp != 0.75 || v.Frames[3].ID() != "frame_00003" {
		t.Errorf("frame 3 = %+v", v.Frames[3])
	}
	if v.FrameDir != "" {
		t.Errorf("FrameDir = %q, want empty when not keeping", v.FrameDir)
	}
}

func TestExtractKeepsFrames(t *testing.T) {
	cfg := fakeTools(t, "2.0", 2, solidJPEG(t, color.Black))
	cfg.KeepDir = t.TempDir()
	e := NewExtractor(cfg)
	e.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	v, err := e.Extract(context.Background(), videoFile(t), 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := filepath.Join(cfg.KeepDir, "clip_20260304_050607")
	if v.FrameDir != want {
		t.Errorf("FrameDir = %q, want %q", v.FrameDir, want)
	}
	if _, err := os.Stat(filepath.Join(want, "frame_00001.jpg")); err != nil {
		t.Errorf("kept frame missing: %v", err)
	}
}

func TestExtractMediaErrors(t *testing.T) {
	e := NewExtractor(Config{})
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), 4)
	if apperr.CodeOf(err) != apperr.CodeMedia {
		t.Errorf("missing file err = %v, want MEDIA", err)
	}

	e = NewExtractor(Config{FFmpeg: "/nonexistent/ffmpeg", FFprobe: "/nonexistent/ffprobe"})
	_, err = e.Extract(context.Background(), videoFile(t), 4)
	if apperr.CodeOf(err) != apperr.CodeMedia {
		t.Errorf("missing tool err = %v, want MEDIA", err)
	}

	cfg := fakeTools(t, "1.0", 0, nil)
	_, err = NewExtractor(cfg).Extract(context.Background(), videoFile(t), 4)
	if apperr.CodeOf(err) != apperr.CodeMedia {
		t.Errorf("no frames err = %v, want MEDIA", err)
	}
}

func TestFingerprinter(t *testing.T) {
	white := solidJPEG(t, color.White)
	// Left half black, right half white: far from a uniform frame in pHash space.
	split := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				split.Set(x, y, color.Black)
			} else {
				split.Set(x, y, color.White)
			}
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, split, nil); err != nil {
		t.Fatal(err)
	}

	fps := FingerprintFrames([]model.Frame{
		{Image: white}, {Image: white}, {Image: buf.Bytes()}, {Image: []byte("garbage")},
	}, 0)

	if !fps[0].Changed || fps[0].Hash == "" {
		t.Errorf("first frame = %+v, want changed with hash", fps[0])
	}
	if fps[1].Changed {
		t.Error("identical frame should not count as changed")
	}
	if fps[0].Hash != fps[1].Hash {
		t.Error("identical frames should hash equal")
	}
	if !fps[2].Changed {
		t.Error("different frame should count as changed")
	}
	if !fps[3].Changed || fps[3].Hash != "" {
		t.Errorf("undecodable frame = %+v", fps[3])
	}
}

// barJPEG draws a black bar over the left w columns of a white frame.
func barJPEG(t *testing.T, w int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < w {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFingerprinterMeasuresDriftFromAnchor(t *testing.T) {
	var frames [][]byte
	var hashes []*goimagehash.ImageHash
	for w := 0; w <= 32; w += 4 {
		b := barJPEG(t, w)
		decoded, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			t.Fatal(err)
		}
		h, err := goimagehash.PerceptionHash(decoded)
		if err != nil {
			t.Fatal(err)
		}
		frames = append(frames, b)
		hashes = append(hashes, h)
	}
	dist := func(a, b *goimagehash.ImageHash) int {
		d, err := a.Distance(b)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	// Every step is within the limit, but the whole drift is not.
	limit := 1
	for i := 1; i < len(hashes); i++ {
		limit = max(limit, dist(hashes[i-1], hashes[i]))
	}
	if dist(hashes[0], hashes[len(hashes)-1]) <= limit {
		t.Skipf("drift of %d bits does not exceed step limit %d", dist(hashes[0], hashes[len(hashes)-1]), limit)
	}

	f := NewFingerprinter(limit)
	anchor := 0
	drifted := false
	for i, b := range frames {
		fp := f.Next(b)
		if i == 0 {
			if !fp.Changed {
				t.Fatal("first frame should count as changed")
			}
			continue
		}
		want := dist(hashes[anchor], hashes[i]) > limit
		if fp.Changed != want {
			t.Errorf("frame %d changed = %v, want %v (anchor %d)", i, fp.Changed, want, anchor)
		}
		if fp.Changed {
			anchor = i
			drifted = true
		}
	}
	if !drifted {
		t.Error("gradual drift never counted as changed")
	}
}
