package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "zkcred/pkg/domain-errors"
	s "zkcred/pkg/string"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("did", func(fl validator.FieldLevel) bool {
		return IsDID(fl.Field().String())
	})
	return v
}

// IsDID reports whether value has the did:<method>:<id> shape.
func IsDID(value string) bool {
	parts := strings.SplitN(value, ":", 3)
	return len(parts) == 3 && parts[0] == "did" && parts[1] != "" && parts[2] != ""
}

// FieldError is a single client-correctable problem with one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors lists every failed field of a request. It is carried inside a
// CodeValidation domain error so transports can render the full list.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// Collector accumulates field errors so a request is rejected with all of its
// problems at once rather than the first one found.
type Collector struct {
	errs Errors
}

// Add records a failure for field unless that field already has one.
func (c *Collector) Add(field, message string) {
	if c.Has(field) {
		return
	}
	c.errs = append(c.errs, FieldError{Field: field, Message: message})
}

// Check records err under field when it is non-nil.
func (c *Collector) Check(field string, err error) {
	if err != nil {
		c.Add(field, err.Error())
	}
}

// Has reports whether field already failed.
func (c *Collector) Has(field string) bool {
	for _, fe := range c.errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Struct runs tag validation on req and records every failure.
func (c *Collector) Struct(req any) {
	err := defaultValidator.Struct(req)
	if err == nil {
		return
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		c.Add("body", "invalid request body")
		return
	}
	for _, fe := range validationErrs {
		c.Add(fieldName(fe), message(fe))
	}
}

// Err returns nil when nothing failed, otherwise a CodeValidation domain error
// wrapping the collected Errors.
func (c *Collector) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	errs := append(Errors(nil), c.errs...)
	return &dErrors.Error{Code: dErrors.CodeValidation, Message: errs.Error(), Err: errs}
}

// Validate validates a struct using the default validator and returns a domain error
// listing every failed field.
func Validate(req any) error {
	var c Collector
	c.Struct(req)
	return c.Err()
}

// FieldErrors extracts the per-field list from err, if it carries one.
func FieldErrors(err error) (Errors, bool) {
	var errs Errors
	if errors.As(err, &errs) {
		return errs, true
	}
	return nil, false
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		name = fe.StructField()
	}
	return s.ToSnakeCase(name)
}

func message(fe validator.FieldError) string {
	field := fieldName(fe)
	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid url", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "did":
		return fmt.Sprintf("%s must be a DID (did:<method>:<id>)", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, fe.Param())
	case "eth_addr":
		return fmt.Sprintf("%s must be a 0x-prefixed 20-byte address", field)
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}
