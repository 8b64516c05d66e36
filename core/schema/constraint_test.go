package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:      "title",
		Constraint: ConstraintMaxLength,
		Value:      70,
		Message:    "must be at most 64 characters",
	}

	if got, want := err.Error(), "title: must be at most 64 characters"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidValue) {
		t.Error("errors.Is(err, ErrInvalidValue) = false")
	}
	if errors.Is(err, ErrContractViolation) {
		t.Error("a validation error must not match ErrContractViolation")
	}
}

func TestContractError(t *testing.T) {
	err := contractf("created", "ConditionQuery", "operator %q is not supported", "like")

	if got, want := err.Error(), `ConditionQuery: created: operator "like" is not supported`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsContractViolation(err) {
		t.Error("IsContractViolation() = false")
	}
	if IsInvalidValue(err) {
		t.Error("a contract error must not match ErrInvalidValue")
	}
}

func TestValidationResult(t *testing.T) {
	t.Run("valid result", func(t *testing.T) {
		result := ValidationResult{Valid: true}
		if got := result.Error(); got != "" {
			t.Errorf("Error() = %q, want empty string", got)
		}
		if result.Err() != nil {
			t.Error("Err() should be nil for a valid result")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		result := ValidationResult{Valid: true}
		result.AddError("title", ConstraintRequired, nil, "is required")
		result.AddError("amount", ConstraintMax, 11.0, "must be at most 10")

		if result.Valid {
			t.Error("Valid should be false after AddError")
		}
		got := result.Error()
		if !strings.Contains(got, "title: is required") || !strings.Contains(got, "amount: must be at most 10") {
			t.Errorf("Error() = %q, missing a message", got)
		}

		err := result.Err()
		if !errors.Is(err, ErrInvalidValue) {
			t.Error("errors.Is(result, ErrInvalidValue) = false")
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "title" {
			t.Errorf("errors.As found %+v, want the title error", verr)
		}
	})
}

func TestParseHelpers(t *testing.T) {
	if n, err := parseFloat(" 12.5 "); err != nil || n != 12.5 {
		t.Errorf("parseFloat(\" 12.5 \") = %v, %v", n, err)
	}
	if n, err := parseInt("64"); err != nil || n != 64 {
		t.Errorf("parseInt(\"64\") = %v, %v", n, err)
	}
	if _, err := parseInt("abc"); err == nil {
		t.Error("parseInt(\"abc\") should fail")
	}
	if b, ok := parseBool("true"); !ok || !b {
		t.Errorf("parseBool(\"true\") = %v, %v", b, ok)
	}
	if _, ok := parseBool(1); ok {
		t.Error("parseBool(1) should not parse")
	}
	if _, err := toFloat64("1"); err == nil {
		t.Error("toFloat64 must not accept strings")
	}
}
