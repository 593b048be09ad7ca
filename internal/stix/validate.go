// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stix

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidObject is returned when a record fails validation.
var ErrInvalidObject = errors.New("invalid STIX object")

var (
	validate *validator.Validate

	idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*--[0-9a-f]{8}-[0-9a-f]{4}-[1-8][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("stixid", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("stixref", func(fl validator.FieldLevel) bool {
		return refTypeIn(fl.Field().String(), fl.Param())
	})
	validate.RegisterValidation("stixrefnot", func(fl validator.FieldLevel) bool {
		return !refTypeIn(fl.Field().String(), fl.Param())
	})
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(Common)
		if !strings.HasPrefix(c.ID, c.Type+"--") {
			sl.ReportError(c.ID, "ID", "ID", "idtype", c.Type)
		}
	}, Common{})
}

// refTypeIn reports whether the type prefix of ref is one of the
// space-separated types.
func refTypeIn(ref, types string) bool {
	prefix, _, ok := strings.Cut(ref, "--")
	if !ok {
		return false
	}
	for _, t := range strings.Fields(types) {
		if prefix == t {
			return true
		}
	}
	return false
}

// Validate checks obj against the structural rules of its type: required
// fields, identifier format and allowed reference types.
func Validate(obj Object) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", ErrInvalidObject)
	}
	if err := validate.Struct(obj); err != nil {
		m := obj.Meta()
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidObject, m.Type, m.ID, formatValidationError(err))
	}
	return nil
}

// ValidateAll validates every object and returns the first failure.
func ValidateAll(objs []Object) error {
	for _, o := range objs {
		if err := Validate(o); err != nil {
			return err
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must have at least %s entries", field, param)
		case "eq":
			return fmt.Errorf("%s: must equal %s", field, param)
		case "stixid":
			return fmt.Errorf("%s: %q is not a STIX identifier", field, e.Value())
		case "stixref":
			return fmt.Errorf("%s: %q must reference one of [%s]", field, e.Value(), param)
		case "stixrefnot":
			return fmt.Errorf("%s: %q must not reference [%s]", field, e.Value(), param)
		case "idtype":
			return fmt.Errorf("%s: %q does not match type %s", field, e.Value(), param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
