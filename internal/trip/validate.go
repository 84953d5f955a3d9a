package trip

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Struct-level rule tags, reported alongside the built-in field tags.
const (
	tagEndAfterStart = "end_after_start"
	tagSpan          = "span"
)

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	v.RegisterStructValidation(requestDateRules, Request{})
	return v
}

// requestDateRules checks the cross-field date invariants. It only runs its
// checks once both dates parse; malformed dates are already reported by the
// datetime tag.
func requestDateRules(sl validator.StructLevel) {
	r := sl.Current().Interface().(Request)
	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return
	}
	end, err := time.Parse(DateLayout, r.EndDate)
	if err != nil {
		return
	}
	if end.Before(start) {
		sl.ReportError(r.EndDate, "end_date", "EndDate", tagEndAfterStart, r.StartDate)
		return
	}
	if span := daysBetween(start, end); span != r.TravelDays {
		sl.ReportError(r.TravelDays, "travel_days", "TravelDays", tagSpan, strconv.Itoa(span))
	}
}

func validateRequest(r Request) error {
	return check(r)
}

// check validates v against its struct tags and reports the first failure.
func check(v any) error {
	err := requestValidator.Struct(v)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	return toValidationError(errs[0])
}

func toValidationError(fe validator.FieldError) *ValidationError {
	return &ValidationError{Field: fe.Field(), Reason: reasonFor(fe)}
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "datetime":
		return fmt.Sprintf("expected YYYY-MM-DD, got %q", fe.Value())
	case "min", "max":
		return fmt.Sprintf("must be between %d and %d, got %v", MinTravelDays, MaxTravelDays, fe.Value())
	case tagEndAfterStart:
		return fmt.Sprintf("must not be before start_date %s", fe.Param())
	case tagSpan:
		return fmt.Sprintf("%v does not match the %s-day date span", fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}
