package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Constraint names carried by ValidationError.Constraint.
const (
	ConstraintType      = "type"
	ConstraintSettable  = "settable"
	ConstraintMinLength = "min_length"
	ConstraintMaxLength = "max_length"
	ConstraintMin       = "min"
	ConstraintMax       = "max"
	ConstraintOptions   = "options"
	ConstraintUserCode  = "user_code"
	ConstraintRequired  = "required"
	ConstraintUnknown   = "unknown_field"
)

// ValidationError is a recoverable rejection of a value for a field.
type ValidationError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Value      any    `json:"value,omitempty"`
	Message    string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidValue) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidValue
}

// ValidationResult collects every validation failure of a record.
type ValidationResult struct {
	Valid  bool               `json:"valid"`
	Errors []*ValidationError `json:"errors,omitempty"`
}

// AddError records a failure and marks the result invalid.
func (r *ValidationResult) AddError(field, constraint string, value any, message string) {
	r.Add(&ValidationError{Field: field, Constraint: constraint, Value: value, Message: message})
}

// Add records e and marks the result invalid.
func (r *ValidationResult) Add(e *ValidationError) {
	r.Valid = false
	r.Errors = append(r.Errors, e)
}

// Error returns a combined error message.
func (r ValidationResult) Error() string {
	if r.Valid {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil for a valid result and the result itself otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return r
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (r ValidationResult) Unwrap() []error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errs
}

func invalid(f *Field, constraint string, value any, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:      f.displayName(),
		Constraint: constraint,
		Value:      value,
		Message:    fmt.Sprintf(format, args...),
	}
}

func checkLength(f *Field, s string) *ValidationError {
	n := utf8.RuneCountInString(s)
	if n < f.MinLength() {
		return invalid(f, ConstraintMinLength, n, "must be at least %d characters", f.MinLength())
	}
	if n > f.MaxLength() {
		return invalid(f, ConstraintMaxLength, n, "must be at most %d characters", f.MaxLength())
	}
	return nil
}

func checkRange(f *Field, v float64) *ValidationError {
	if v < f.MinValue() {
		return invalid(f, ConstraintMin, v, "must be at least %v", f.MinValue())
	}
	if v > f.MaxValue() {
		return invalid(f, ConstraintMax, v, "must be at most %v", f.MaxValue())
	}
	return nil
}

// checkOptions accepts anything while no options are configured.
func checkOptions(f *Field, values ...string) *ValidationError {
	if len(f.options) == 0 {
		return nil
	}
	for _, v := range values {
		if !f.HasOption(v) {
			return invalid(f, ConstraintOptions, v, "must be one of: %s", strings.Join(f.options, ", "))
		}
	}
	return nil
}

// toFloat64 converts the numeric kinds a caller or decoder may produce.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// parseFloat is toFloat64 that also reads numeric strings, for schema
// attributes and server data that carry numbers as JSON strings.
func parseFloat(v any) (float64, error) {
	if s, ok := v.(string); ok {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	return toFloat64(v)
}

func parseInt(v any) (int, error) {
	f, err := parseFloat(v)
	if err != nil {
		return 0, err
	}
	if f > math.MaxInt || f < math.MinInt {
		return 0, fmt.Errorf("%v overflows int", v)
	}
	return int(f), nil
}

func parseBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		return p, err == nil
	}
	return false, false
}
