// Package schema parses and validates inbound request data against declared
// Go structs. Struct tags drive validation (go-playground/validator); query
// and path parameters are bound through mapstructure before validation.
// Violations come back as ordered {path, message} pairs with dotted JSON
// field paths.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/atrium-hq/atrium/internal/apierr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report paths using JSON field names, not Go identifiers.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return v
}

// Defaulter lets a schema apply defaults before validation runs.
type Defaulter interface {
	Defaults()
}

// ParseJSON decodes a JSON body into T and validates it. A body that cannot
// be decoded at all fails with BadRequest; a decoded body violating the
// schema fails with a ValidationError carrying per-field violations.
func ParseJSON[T any](body io.Reader) (T, error) {
	var v T

	dec := json.NewDecoder(body)
	if err := dec.Decode(&v); err != nil {
		return v, apierr.BadRequest("malformed JSON body")
	}

	return finish(v)
}

// ParseQuery binds URL query parameters into T and validates it. Only the
// first value of repeated parameters is considered.
func ParseQuery[T any](values url.Values) (T, error) {
	flat := make(map[string]string, len(values))
	for key := range values {
		flat[key] = values.Get(key)
	}
	return ParseStringMap[T](flat)
}

// ParseStringMap binds a flat string map (e.g. path parameters) into T and
// validates it. String values are weakly converted to the target field
// types; RFC 3339 strings bind to time.Time fields.
func ParseStringMap[T any](params map[string]string) (T, error) {
	var v T

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &v,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return v, fmt.Errorf("failed to build decoder: %w", err)
	}

	if err := dec.Decode(params); err != nil {
		return v, apierr.BadRequest("malformed request parameters")
	}

	return finish(v)
}

// finish applies defaults and runs struct validation.
func finish[T any](v T) (T, error) {
	if d, ok := any(&v).(Defaulter); ok {
		d.Defaults()
	}

	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return v, apierr.Validation(toViolations(fieldErrs))
		}
		return v, apierr.Internal("schema validation failed", err)
	}

	return v, nil
}

func toViolations(fieldErrs validator.ValidationErrors) []apierr.Violation {
	violations := make([]apierr.Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, apierr.Violation{
			Path:    fieldPath(fe),
			Message: violationMessage(fe),
		})
	}
	return violations
}

// fieldPath strips the root struct name from the namespace so the path is
// relative to the input ("profile.email", not "UpdateRequest.profile.email").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid4", "uuid":
		return "must be a well-formed identifier"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gtefield":
		return fmt.Sprintf("must not be before %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
