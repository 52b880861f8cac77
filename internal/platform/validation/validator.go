package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type defaultValidator struct{ v *validator.Validate }

func (d *defaultValidator) Validate(i interface{}) error {
	return d.v.Struct(i)
}

// New returns an echo.Validator implementation that reports field names from
// json tags.
func New() echo.Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &defaultValidator{v: v}
}
