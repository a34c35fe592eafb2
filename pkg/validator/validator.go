// Package validator normalizes and validates input structs.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/leebenson/conform"
)

var (
	valid *Validator
	once  sync.Once
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("validation failed")

// Validator trims string fields (conform tags) and checks validate tags.
type Validator struct {
	validator *validator.Validate
}

// New creates a Validator with the project's custom rules registered.
func New() *Validator {
	v := &Validator{validator: validator.New()}

	// report json names in errors
	v.validator.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		}
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	if err := v.validator.RegisterValidation("rfc3339", validateRFC3339); err != nil {
		panic(err)
	}
	if err := v.validator.RegisterValidation("timezone", validateTimezone); err != nil {
		panic(err)
	}
	return v
}

// Get returns the shared Validator.
func Get() *Validator {
	once.Do(func() {
		valid = New()
	})
	return valid
}

// Validate conforms i in place, then validates it. i must be a struct pointer.
func (v *Validator) Validate(i interface{}) error {
	if err := conform.Strings(i); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := v.validator.Struct(i); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	return nil
}

// describe flattens validator errors into one line.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func validateRFC3339(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func validateTimezone(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := time.LoadLocation(s)
	return err == nil
}
