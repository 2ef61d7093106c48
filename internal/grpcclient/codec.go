package grpcclient

import (
	"encoding/base64"

	"google.golang.org/protobuf/types/known/structpb"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
)

// encodeVisualRequest packs frames as {"directive": s, "frames": [{"id", "t_s", "jpeg_b64"}]}.
func encodeVisualRequest(frames []model.Frame, directive string) (*structpb.Struct, error) {
	list := make([]any, len(frames))
	for i, f := range frames {
		list[i] = map[string]any{
			"index":    f.Index,
			"id":       f.ID(),
			"t_s":      f.Timestamp,
			"jpeg_b64": base64.StdEncoding.EncodeToString(f.Image),
		}
	}
	s, err := structpb.NewStruct(map[string]any{
		"directive": directive,
		"frames":    list,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "encode visual request")
	}
	return s, nil
}

func decodeVisualRequest(s *structpb.Struct) ([]model.Frame, string, error) {
	fields := s.GetFields()
	directive := fields["directive"].GetStringValue()

	values := fields["frames"].GetListValue().GetValues()
	frames := make([]model.Frame, 0, len(values))
	for i, v := range values {
		f := v.GetStructValue().GetFields()
		img, err := base64.StdEncoding.DecodeString(f["jpeg_b64"].GetStringValue())
		if err != nil {
			return nil, "", apperr.Wrapf(err, apperr.CodeValidation, "frame %d image", i)
		}
		frames = append(frames, model.Frame{
			Index:     int(f["index"].GetNumberValue()),
			Timestamp: f["t_s"].GetNumberValue(),
			Image:     img,
		})
	}
	return frames, directive, nil
}
