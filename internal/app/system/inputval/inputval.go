// Package inputval validates decoded request bodies against their
// `validate` struct tags and turns the first failure into a client-facing
// message.
package inputval

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(label)
	})
	return validate
}

// label names a field in messages: the `label` tag, else the field name.
func label(f reflect.StructField) string {
	if l := f.Tag.Get("label"); l != "" {
		return l
	}
	return f.Name
}

// Check validates s and returns a Validation error describing the first
// failing field, or nil.
func Check(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		return apperr.Validation(message(ves[0]))
	}
	return apperr.Validation("Invalid input")
}

func message(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return name + " must be at least " + fe.Param() + " characters long"
	case "max":
		return name + " must be at most " + fe.Param() + " characters long"
	case "email":
		return "Please provide a valid email"
	case "eqfield":
		return "Password and Confirm password do not match"
	case "alphanumunicode":
		return name + " may only contain letters and digits"
	default:
		return name + " is invalid"
	}
}

// IsValidEmail reports whether s is a single bare address.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && get().Var(s, "email") == nil
}
