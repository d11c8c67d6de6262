package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Validate checks the `validate` struct tags of cfg and converts every violation into one error.
func Validate(cfg interface{}) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.WithStack(err)
	}
	var result *multierror.Error
	for _, fieldErr := range validationErrors {
		result = multierror.Append(result, validationError(fieldErr))
	}
	return result.ErrorOrNil()
}

func validationError(err validator.FieldError) error {
	fieldName := stripPrefix(err.Namespace())
	switch err.Tag() {
	case "required":
		return errors.Errorf("ConfigError: Field %s is required but was not found", fieldName)
	default:
		return errors.Errorf("ConfigError: Field %s has invalid value %s: %s", fieldName, fmt.Sprint(err.Value()), err.Tag())
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
