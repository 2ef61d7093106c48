// Package media samples frames from video files using the ffmpeg command-line tools.
package media

// Extraction defaults
const (
	DefaultFPS     = 4
	DefaultFFmpeg  = "ffmpeg"
	DefaultFFprobe = "ffprobe"

	// ffmpeg -q:v scale, 2 is near-lossless JPEG
	JPEGQuality = 2

	// Hamming distance at or below which consecutive frames count as unchanged
	MaxHashDistance = 5

	framePattern = "frame_%05d.jpg"
)
