package model

import "fmt"

// Frame is one sampled still from the source video.
type Frame struct {
	Index     int
	Timestamp float64 // seconds from start
	Image     []byte  // JPEG
}

// ID returns the frame's stable name, matching the on-disk naming of extracted frames.
func (f Frame) ID() string { return fmt.Sprintf("frame_%05d", f.Index) }
