package common

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator. Besides the built-in tags it knows
// "nowhitespace", which rejects strings containing any Unicode space.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("nowhitespace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	return v
}
