package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	return v
}

// validationError flattens validator errors into a VALIDATION_ERROR with per-field details.
func validationError(err error, message string) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make(map[string]string, len(fieldErrors))
	for _, fe := range fieldErrors {
		details[fieldPath(fe)] = describeFieldError(fe)
	}
	return appErrors.Validation(message, details)
}

func fieldPath(fe validator.FieldError) string {
	parts := strings.SplitN(fe.Namespace(), ".", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return fe.Field()
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return "is invalid"
	}
}
