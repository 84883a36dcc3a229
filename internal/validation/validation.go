// Package validation plugs go-playground/validator into Echo.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/smartbooking/internal/model"
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New returns a validator that reports fields by their JSON names and knows
// the custom tags used by request bodies: langue, role and pricetype.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("langue", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", "fr", "en", "nl":
			return true
		}
		return false
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.IsRole(fl.Field().String())
	})
	_ = v.RegisterValidation("pricetype", func(fl validator.FieldLevel) bool {
		return model.IsPriceType(fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate checks struct tags of i.
func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

// Fields maps each failing field to the rule it broke. It returns nil when
// err is not a validation error.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[name] = rule
	}
	return out
}
