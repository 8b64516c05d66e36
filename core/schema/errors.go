package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is matched by every *ValidationError.
	ErrInvalidValue = errors.New("invalid field value")

	// ErrContractViolation is matched by every *ContractError. It signals a
	// defect in the calling code, not bad end-user input.
	ErrContractViolation = errors.New("contract violation")
)

// ContractError reports misuse of the API: an operator the field type does
// not support, a value of the wrong shape for a query, malformed
// construction properties.
type ContractError struct {
	Field  string
	Op     string
	Reason string
}

func (e *ContractError) Error() string {
	switch {
	case e.Field != "" && e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, e.Reason)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

// Is makes errors.Is(err, ErrContractViolation) true.
func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

func contractf(field, op, format string, args ...any) *ContractError {
	return &ContractError{Field: field, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsContractViolation reports whether err is or wraps a *ContractError.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}

// IsInvalidValue reports whether err is or wraps a *ValidationError.
func IsInvalidValue(err error) bool {
	return errors.Is(err, ErrInvalidValue)
}
