// Package validator wraps go-playground/validator behind a tiny API so the
// rest of the code never handles the library's types directly.
package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Struct validates a struct against its `validate` tags.
func Struct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Var validates a single value against a tag expression, e.g. "required,url".
func Var(value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
