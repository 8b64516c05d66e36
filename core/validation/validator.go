// Package validation checks records against an app's form schema before
// they are sent to kintone.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/artpar/kintone/core/schema"
)

// Validator validates records against a form schema.
type Validator struct {
	form map[string]*schema.Field
}

// New creates a validator for the fields of one app, keyed by code.
func New(form map[string]*schema.Field) *Validator {
	return &Validator{form: form}
}

// UpdateForm replaces the schema, e.g. after the app's form changed.
func (v *Validator) UpdateForm(form map[string]*schema.Field) {
	v.form = form
}

// ValidateInsert validates a record about to be created: every code must
// exist in the form, required fields without a default need a value and
// every value must pass the form field's checks.
func (v *Validator) ValidateInsert(record *schema.Record) schema.ValidationResult {
	result := v.validateValues(record)

	for _, code := range sortedCodes(v.form) {
		field := v.form[code]
		if !field.Descriptor().Settable() || !field.Required() {
			continue
		}
		if hasDefault(field) {
			continue
		}
		if rf := record.Field(code); rf == nil || isEmpty(rf.Value()) {
			result.AddError(code, schema.ConstraintRequired, nil, "field is required")
		}
	}
	return result
}

// ValidateUpdate validates a record about to be updated. Unlike insert,
// fields left out are kept by the server, so nothing is required.
func (v *Validator) ValidateUpdate(record *schema.Record) schema.ValidationResult {
	return v.validateValues(record)
}

func (v *Validator) validateValues(record *schema.Record) schema.ValidationResult {
	result := schema.ValidationResult{Valid: true}

	for _, rf := range record.Fields() {
		code := rf.Code()
		if strings.HasPrefix(code, "$") {
			continue
		}
		field, ok := v.form[code]
		if !ok {
			result.AddError(code, schema.ConstraintUnknown, code,
				fmt.Sprintf("unknown field '%s' - not defined in form", code))
			continue
		}
		if field.Type() != rf.Type() {
			result.AddError(code, schema.ConstraintType, rf.WireName(),
				fmt.Sprintf("field is %s in the form, not %s", field.WireName(), rf.WireName()))
			continue
		}

		// Server-assigned fields are never sent, whatever they hold.
		if !field.Descriptor().Settable() || rf.Value() == nil {
			continue
		}
		addCheck(&result, field, rf.Value())
	}
	return result
}

// ValidateField validates a single value against a form field.
func ValidateField(field *schema.Field, value any) schema.ValidationResult {
	result := schema.ValidationResult{Valid: true}

	if value == nil {
		if field.Required() && !hasDefault(field) {
			result.AddError(field.Code(), schema.ConstraintRequired, nil, "field is required")
		}
		return result
	}
	addCheck(&result, field, value)
	return result
}

func addCheck(result *schema.ValidationResult, field *schema.Field, value any) {
	err := schema.CheckValue(field, value)
	if err == nil {
		return
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		result.Add(verr)
		return
	}
	result.AddError(field.Code(), schema.ConstraintType, value, err.Error())
}

func hasDefault(field *schema.Field) bool {
	return !isEmpty(field.DefaultValue()) || field.DefaultExpression() != ""
}

// isEmpty treats nil, "" and empty lists as no value, as kintone does for
// required fields.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
		return rv.Len() == 0
	}
	return false
}

func sortedCodes(form map[string]*schema.Field) []string {
	codes := make([]string, 0, len(form))
	for code := range form {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
