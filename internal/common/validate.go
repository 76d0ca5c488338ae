package common

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// InvalidFields lists the JSON paths rejected by a validator error, e.g. "data.recipientName".
func InvalidFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		out = append(out, ns)
	}
	return out
}

// ValidateStruct runs v over s and converts failures into a 400 AppError.
func ValidateStruct(v *validator.Validate, s any, message string) error {
	if err := v.Struct(s); err != nil {
		if fields := InvalidFields(err); len(fields) > 0 {
			return ValidationError(message, fields)
		}
		return NewAppError("VALIDATION_ERROR", message, http.StatusBadRequest, err)
	}
	return nil
}
