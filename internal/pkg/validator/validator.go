package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/banking/refdata-service/pkg/identifier"
)

// CustomValidator wraps the playground validator
type CustomValidator struct {
	validator *validator.Validate
}

// New creates a new custom validator
func New() *CustomValidator {
	v := validator.New()

	// One tag per identifier kind: lei, isin, bic, cusip, sedol
	for _, kind := range identifier.Kinds {
		_ = v.RegisterValidation(kind.String(), kindRule(kind))
	}
	_ = v.RegisterValidation("country_code", stringRule(identifier.IsCountryCode))
	_ = v.RegisterValidation("identifier_kind", validateKind)

	return &CustomValidator{validator: v}
}

// Validate validates a struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Var validates a single value against a tag
func (cv *CustomValidator) Var(field interface{}, tag string) error {
	return cv.validator.Var(field, tag)
}

// ValidIdentifier reports whether code is a valid identifier of kind
func (cv *CustomValidator) ValidIdentifier(kind identifier.Kind, code string) bool {
	return cv.Var(code, kind.String()) == nil
}

func stringRule(valid func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return valid(fl.Field().String())
	}
}

func kindRule(kind identifier.Kind) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return identifier.Validate(kind, fl.Field().String())
	}
}

func validateKind(fl validator.FieldLevel) bool {
	_, err := identifier.ParseKind(fl.Field().String())
	return err == nil
}

// Messages flattens validation errors into one line per field
func Messages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "identifier_kind":
			msgs = append(msgs, fmt.Sprintf("%s must be one of lei, isin, bic, cusip, sedol", fe.Field()))
		case "lei", "isin", "bic", "cusip", "sedol":
			msgs = append(msgs, fmt.Sprintf("%s is not a valid %s", fe.Field(), strings.ToUpper(fe.Tag())))
		case "country_code":
			msgs = append(msgs, fmt.Sprintf("%s is not an ISO 3166 country code", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return msgs
}
