package media

import (
	"bytes"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Fingerprint is a frame's perceptual hash and whether it differs from the last changed frame.
type Fingerprint struct {
	Hash    string // empty when the image could not be decoded
	Changed bool
}

// Fingerprinter compares each frame by pHash against the last frame that counted as changed.
type Fingerprinter struct {
	maxDistance int
	last        *goimagehash.ImageHash
}

// NewFingerprinter creates a fingerprinter. maxDistance <= 0 uses MaxHashDistance.
func NewFingerprinter(maxDistance int) *Fingerprinter {
	if maxDistance <= 0 {
		maxDistance = MaxHashDistance
	}
	return &Fingerprinter{maxDistance: maxDistance}
}

// Next hashes img and compares it with the anchor, the last frame that counted as changed.
// Unchanged frames leave the anchor in place, so slow drift is measured from the anchor.
// The first frame always counts as changed. Undecodable images count as changed and clear the anchor.
func (f *Fingerprinter) Next(img []byte) Fingerprint {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		f.last = nil
		return Fingerprint{Changed: true}
	}
	hash, err := goimagehash.PerceptionHash(decoded)
	if err != nil {
		f.last = nil
		return Fingerprint{Changed: true}
	}

	fp := Fingerprint{Hash: hash.ToString(), Changed: true}
	if f.last != nil {
		if dist, err := f.last.Distance(hash); err == nil && dist <= f.maxDistance {
			fp.Changed = false
			return fp
		}
	}
	f.last = hash
	return fp
}

// FingerprintFrames hashes frames in order.
func FingerprintFrames(frames []model.Frame, maxDistance int) []Fingerprint {
	f := NewFingerprinter(maxDistance)
	out := make([]Fingerprint, len(frames))
	for i, fr := range frames {
		out[i] = f.Next(fr.Image)
	}
	return out
}
