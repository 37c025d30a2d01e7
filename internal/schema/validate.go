package schema

import (
	"fmt"
	"reflect"
	"unicode/utf8"
)

const (
	CodeNotAllowed = "not_allowed"
	CodeRequired   = "required"
	CodeMaxLength  = "max_length"
	CodeMinItems   = "min_items"
	CodeMaxItems   = "max_items"
)

// FieldError is a single schema violation. Observed and Limit are set for
// length and item-count violations.
type FieldError struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Observed *int   `json:"observed,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks payload against s and returns the violations in schema
// field order. Payload keys that the schema does not define are ignored.
func Validate(payload map[string]any, s Schema) []FieldError {
	var errs []FieldError
	for _, f := range s {
		value := payload[f.Name]
		empty := isEmpty(value)

		if !f.Spec.IsAllowed() {
			if !empty {
				errs = append(errs, FieldError{
					Field:   f.Name,
					Code:    CodeNotAllowed,
					Message: "field not allowed on this platform",
				})
			}
			continue
		}
		if empty {
			if f.Spec.Required {
				errs = append(errs, FieldError{
					Field:   f.Name,
					Code:    CodeRequired,
					Message: "required field missing",
				})
			}
			continue
		}

		switch f.Spec.EffectiveType() {
		case TypeString:
			str, ok := value.(string)
			if !ok || f.Spec.MaxLength == nil {
				continue
			}
			if n := utf8.RuneCountInString(str); n > *f.Spec.MaxLength {
				errs = append(errs, boundError(f.Name, CodeMaxLength, "exceeds max length", n, *f.Spec.MaxLength))
			}
		case TypeArray:
			n, ok := arrayLen(value)
			if !ok {
				continue
			}
			if f.Spec.MinItems != nil && n < *f.Spec.MinItems {
				errs = append(errs, boundError(f.Name, CodeMinItems, "too few items", n, *f.Spec.MinItems))
			}
			if f.Spec.MaxItems != nil && n > *f.Spec.MaxItems {
				errs = append(errs, boundError(f.Name, CodeMaxItems, "too many items", n, *f.Spec.MaxItems))
			}
		}
	}
	return errs
}

func boundError(field, code, msg string, observed, limit int) FieldError {
	return FieldError{
		Field:    field,
		Code:     code,
		Message:  fmt.Sprintf("%s (%d, allowed %d)", msg, observed, limit),
		Observed: Int(observed),
		Limit:    Int(limit),
	}
}

func isEmpty(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return vv == ""
	case []any:
		return len(vv) == 0
	case map[string]any:
		return len(vv) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.IsNil() || rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

func arrayLen(v any) (int, bool) {
	if arr, ok := v.([]any); ok {
		return len(arr), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len(), true
	}
	return 0, false
}
