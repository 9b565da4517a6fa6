// Package schema validates outbound events before they are published.
package schema

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEvent is returned when an event fails validation.
var ErrInvalidEvent = errors.New("invalid event")

// Validator checks events against their struct tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator.
func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns ErrInvalidEvent wrapping the failed fields.
func (v *Validator) Validate(event any) error {
	err := v.validate.Struct(event)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: field %s failed %q (%d violations)", ErrInvalidEvent, fe.Namespace(), fe.Tag(), len(fieldErrs))
	}
	return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
}
