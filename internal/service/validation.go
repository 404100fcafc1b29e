package service

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/enrollee-api/internal/importer"
)

// NewValidator returns a validator with the enrollee rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerValidations(v)
	return v
}

func registerValidations(v *validator.Validate) {
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// "pan" expects an already normalised value.
	_ = v.RegisterValidation("pan", func(fl validator.FieldLevel) bool {
		return importer.ValidIdentifier(fl.Field().String())
	})
}
