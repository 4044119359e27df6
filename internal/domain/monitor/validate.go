package monitor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/vantage-backend/internal/platform/apierr"
)

// NamePattern constrains subject and aspect names. Dots are reserved as the
// absolute path separator.
var NamePattern = regexp.MustCompile(`^[0-9A-Za-z_\-]{1,60}$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("resourcename", func(fl validator.FieldLevel) bool {
		return NamePattern.MatchString(fl.Field().String())
	})
}

// FieldError is one leaf-level problem reported by the schema checks.
type FieldError struct {
	Field string
	Tag   string
}

func (f FieldError) String() string { return f.Field + ":" + f.Tag }

// validateStruct maps validator failures onto the domain taxonomy. A missing
// required field wins over shape problems so the caller sees the most
// actionable error first.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.New(apierr.ValidationError, err)
	}
	fields := make([]FieldError, 0, len(verrs))
	name := apierr.ValidationError
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Tag: fe.Tag()})
		switch fe.Tag() {
		case "required":
			name = apierr.MissingRequiredField
		case "email", "url":
			if name == apierr.ValidationError {
				name = apierr.SchemaValidationError
			}
		}
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.String())
	}
	return apierr.New(name, fmt.Errorf("invalid fields: %s", strings.Join(parts, ", "))).WithEntity(fields)
}
