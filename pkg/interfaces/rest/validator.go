package rest

import (
	"github.com/go-playground/validator/v10"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// Validator wraps the go-playground validator with the shop's own tags:
// "stage", "resource_kind" and "measurement_mode" accept the String form of
// the matching enum.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with the domain tags registered
func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		_, err := entities.ParseStageKind(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("resource_kind", func(fl validator.FieldLevel) bool {
		_, err := entities.ParseResourceKind(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("measurement_mode", func(fl validator.FieldLevel) bool {
		_, err := entities.ParseMeasurementMode(fl.Field().String())
		return err == nil
	})
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}
