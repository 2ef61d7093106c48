package model

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
)

// validate is shared by all model constructors; validator caches struct metadata.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so errors line up with the wire contract.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validationError converts validator output into a VALIDATION AppError naming the first bad field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Newf(apperr.CodeValidation, "%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()).
			WithMetadata("field", fe.Field()).
			WithMetadata("rule", fe.Tag())
	}
	return apperr.Wrap(err, apperr.CodeValidation, "validate")
}

func invalidf(field, format string, args ...any) error {
	return apperr.Newf(apperr.CodeValidation, format, args...).WithMetadata("field", field)
}
