package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator for entity structs.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// validateStruct runs tag validation on v and converts failures into a
// *ValidationError keyed by field name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		verr.Fields[fe.Field()] = reason
	}
	return verr
}
