// Package inference defines the two black-box capabilities the pipeline consumes and the
// prompts shared by every backend.
package inference

import (
	"context"

	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// Visual turns a frame sequence into raw interval JSON.
// directive is empty on the first attempt and names the problem on retries.
type Visual interface {
	InferVisual(ctx context.Context, frames []model.Frame, directive string) (string, error)
}

// Olfactory turns a serialized visual timeline into raw per-interval scent JSON.
type Olfactory interface {
	InferOlfactory(ctx context.Context, visualReport []byte) (string, error)
}

// VisualFunc adapts a function to Visual.
type VisualFunc func(ctx context.Context, frames []model.Frame, directive string) (string, error)

func (f VisualFunc) InferVisual(ctx context.Context, frames []model.Frame, directive string) (string, error) {
	return f(ctx, frames, directive)
}

// OlfactoryFunc adapts a function to Olfactory.
type OlfactoryFunc func(ctx context.Context, visualReport []byte) (string, error)

func (f OlfactoryFunc) InferOlfactory(ctx context.Context, visualReport []byte) (string, error) {
	return f(ctx, visualReport)
}
