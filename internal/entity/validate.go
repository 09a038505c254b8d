package entity

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so API clients can map errors back to inputs.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// structErrors runs the struct tags and collects failures into a ValidationError keyed by field namespace.
func structErrors(s any) *ValidationError {
	verr := NewValidationError()
	err := validate.Struct(s)
	if err == nil {
		return verr
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		verr.Add("request", err.Error())
		return verr
	}
	for _, fe := range ves {
		verr.Add(fieldPath(fe.Namespace()), fe.Tag())
	}
	return verr
}

// fieldPath drops the leading struct name from a validator namespace ("NewOrderRequest.items[0].quantity").
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func isBlankPtr(s *string) bool {
	return s == nil || isBlank(*s)
}

// isCents reports whether d fits the two-decimal money columns without rounding.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
