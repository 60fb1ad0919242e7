// Package utils holds small helpers shared by the loaders and HTTP handlers.
package utils

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

var (
	defaultValidator *validator.Validate
	validatorOnce    sync.Once
)

// Validator returns the shared validator. Field names in errors are taken from
// json tags, so messages match what callers see on the wire.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("dimension", validateDimension)
		defaultValidator = v
	})
	return defaultValidator
}

// ValidateStruct validates s and returns an invalid_request error listing every
// failing field in its metadata.
func ValidateStruct(s interface{}) errors.RiskError {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return errors.ErrInvalidRequest(err.Error())
	}

	details := make(map[string]string, len(validationErrors))
	parts := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msg := formatValidationError(fe)
		details[fe.Field()] = msg
		parts = append(parts, fe.Field()+" "+msg)
	}
	return errors.ErrInvalidRequest("validation failed: " + strings.Join(parts, "; ")).
		WithMetadata("fields", details)
}

// validateDimension accepts the name of a scored dimension, case-insensitively.
func validateDimension(fl validator.FieldLevel) bool {
	dim, ok := constants.ParseDimension(fl.Field().String())
	return ok && dim.IsScored()
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "dimension":
		return "must be a scored risk dimension"
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

// ValidateNotEmpty checks if a string is not empty.
func ValidateNotEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}
