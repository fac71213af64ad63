// Package utils provides utility functions used throughout the application.
package utils

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// patterns caches compiled regular expressions of the pattern tag
	patterns sync.Map

	// Custom error messages for validation errors. %[1]s is the parameter
	// name and %[2]s the tag parameter.
	validationErrorMessages = map[string]string{
		"required":       "ensure the value of the parameter '%[1]s' is not empty",
		"min":            "ensure the value of the parameter '%[1]s' is greater than or equal to %[2]s",
		"gte":            "ensure the value of the parameter '%[1]s' is greater than or equal to %[2]s",
		"gt":             "ensure the value of the parameter '%[1]s' is greater than %[2]s",
		"max":            "ensure the value of the parameter '%[1]s' is less than or equal to %[2]s",
		"lte":            "ensure the value of the parameter '%[1]s' is less than or equal to %[2]s",
		"lt":             "ensure the value of the parameter '%[1]s' is less than %[2]s",
		"len":            "ensure the value of the parameter '%[1]s' has a length of %[2]s",
		"oneof":          "ensure the value of the parameter '%[1]s' is one of [%[2]s]",
		"multiple_of":    "ensure the value of the parameter '%[1]s' is a multiple of %[2]s",
		"pattern":        "ensure the value of the parameter '%[1]s' matches the valid pattern '%[2]s'",
		"finite":         "ensure the value of the parameter '%[1]s' is not infinity, negative infinity, or NaN",
		"max_digits":     "ensure the value of the parameter '%[1]s' has a maximum of %[2]s digits",
		"decimal_places": "ensure the value of the parameter '%[1]s' has a maximum of %[2]s decimal places",
		"url":            "ensure the value of the parameter '%[1]s' is a valid URL",
		"email":          "ensure the value of the parameter '%[1]s' is a valid email address",
		"hostname_port":  "ensure the value of the parameter '%[1]s' is a valid host:port",
	}
)

// Initialize validator with custom validations
func init() {
	validate = validator.New()

	// Register function to get tag name from json tags
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			if ms := fld.Tag.Get("mapstructure"); ms != "" {
				return ms
			}
			return fld.Name
		}
		return name
	})

	// Register custom validation functions
	_ = validate.RegisterValidation("multiple_of", validateMultipleOf)
	_ = validate.RegisterValidation("pattern", validatePattern)
	_ = validate.RegisterValidation("finite", validateFinite)
	_ = validate.RegisterValidation("max_digits", validateMaxDigits)
	_ = validate.RegisterValidation("decimal_places", validateDecimalPlaces)
}

// Validate performs validation on the given struct and returns validation errors.
func Validate(s any) error {
	return validate.Struct(s)
}

// ValidateVar validates a single variable with the given tag and returns errors.
func ValidateVar(field any, tag string) error {
	return validate.Var(field, tag)
}

// FormatValidationErrors formats validation errors into a map of field
// name to message.
func FormatValidationErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	validationErrors := make(map[string]string)
	for _, fe := range verrs {
		validationErrors[fieldPath(fe)] = FieldErrorMessage(fieldPath(fe), fe)
	}

	return validationErrors
}

// FieldErrorMessage renders one validation failure for the named parameter.
func FieldErrorMessage(name string, fe validator.FieldError) string {
	message, exists := validationErrorMessages[fe.Tag()]
	if !exists {
		return fmt.Sprintf("ensure the value of the parameter '%s' satisfies '%s'", name, fe.ActualTag())
	}
	return fmt.Sprintf(message, name, fe.Param())
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// Custom validation functions

func validateMultipleOf(fl validator.FieldLevel) bool {
	n, ok := asFloat(fl.Field())
	if !ok {
		return false
	}
	m, err := strconv.ParseFloat(fl.Param(), 64)
	if err != nil || m == 0 {
		return false
	}
	q := n / m
	return math.Abs(q-math.Round(q)) < 1e-9
}

func validatePattern(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	expr := fl.Param()
	cached, ok := patterns.Load(expr)
	if !ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return false
		}
		cached, _ = patterns.LoadOrStore(expr, re)
	}
	return cached.(*regexp.Regexp).MatchString(fl.Field().String())
}

func validateFinite(fl validator.FieldLevel) bool {
	n, ok := asFloat(fl.Field())
	return ok && !math.IsInf(n, 0) && !math.IsNaN(n)
}

func validateMaxDigits(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	whole, frac := digits(fl.Field())
	return len(whole)+len(frac) <= limit
}

func validateDecimalPlaces(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	_, frac := digits(fl.Field())
	return len(frac) <= limit
}

func asFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.String:
		f, err := strconv.ParseFloat(v.String(), 64)
		return f, err == nil
	}
	return 0, false
}

// digits splits a number into its integral and fractional digits, without
// sign and without leading or trailing zeros.
func digits(v reflect.Value) (string, string) {
	var s string
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		s = strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.String:
		s = v.String()
	default:
		n, _ := asFloat(v)
		s = strconv.FormatFloat(n, 'f', -1, 64)
	}
	s = strings.TrimLeft(s, "+-")
	whole, frac, _ := strings.Cut(s, ".")
	return strings.TrimLeft(whole, "0"), strings.TrimRight(frac, "0")
}

// GetValidator returns the validator instance.
func GetValidator() *validator.Validate {
	return validate
}
