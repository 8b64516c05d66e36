package schema

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Date functions a DATE, DATETIME, CREATED_TIME or UPDATED_TIME condition
// may compare against.
const (
	FuncToday     = "TODAY()"
	FuncThisMonth = "THIS_MONTH()"
	FuncThisYear  = "THIS_YEAR()"
)

// FuncLoginUser stands for the calling user in user list conditions.
const FuncLoginUser = "LOGINUSER()"

var dateFuncs = map[string]bool{FuncToday: true, FuncThisMonth: true, FuncThisYear: true}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Quote renders s as a query string literal.
func Quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

// ConditionQuery renders "<code> <op> <literal>" for a query. An operator
// the type does not support, or a value of the wrong shape, is a
// *ContractError: it is a defect in the calling code.
//
// in and not in take a non-empty list whose items are all strings or all
// numbers; every other operator takes a scalar of the type's kind. Date
// and datetime fields also accept TODAY(), THIS_MONTH() and THIS_YEAR().
func (f *Field) ConditionQuery(op Operator, v any) (string, error) {
	const opName = "ConditionQuery"
	if f.code == "" {
		return "", contractf(f.displayName(), opName, "field has no code")
	}
	d := Describe(f.typ)
	if !op.Valid() {
		return "", contractf(f.code, opName, "unknown operator %d", int(op))
	}
	if !d.Operators.Contains(op) {
		return "", contractf(f.code, opName, "operator %q is not supported by %s fields", op, d.WireName)
	}

	var literal string
	var err error
	if op.IsList() {
		literal, err = f.listLiteral(d, v)
	} else {
		literal, err = f.scalarLiteral(d, v)
	}
	if err != nil {
		return "", err
	}
	return f.code + " " + op.String() + " " + literal, nil
}

func (f *Field) scalarLiteral(d Descriptor, v any) (string, error) {
	const opName = "ConditionQuery"
	switch d.literal {
	case literalText:
		s, ok := v.(string)
		if !ok {
			return "", contractf(f.code, opName, "%s condition needs a string, got %T", d.WireName, v)
		}
		return Quote(s), nil

	case literalNumber:
		n, err := toFloat64(v)
		if _, isString := v.(string); isString && d.wire == wireString {
			// RECORD_NUMBER and CALC values come back from the server as
			// strings.
			n, err = parseFloat(v)
		}
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return "", contractf(f.code, opName, "%s condition needs a finite number, got %v", d.WireName, v)
		}
		return formatNumber(n), nil

	case literalDate:
		if s, ok := v.(string); ok && dateFuncs[s] {
			return s, nil
		}
		t, ok := toTime(v, DateLayout)
		if !ok {
			return "", contractf(f.code, opName, "%s condition needs a date, got %v", d.WireName, v)
		}
		return Quote(t.Format(DateLayout)), nil

	case literalTime:
		t, ok := toTime(v, TimeLayout, "15:04:05")
		if !ok {
			return "", contractf(f.code, opName, "%s condition needs a time, got %v", d.WireName, v)
		}
		return Quote(t.Format(TimeLayout)), nil

	case literalDatetime:
		if s, ok := v.(string); ok {
			if dateFuncs[s] {
				return s, nil
			}
			if t, err := time.Parse(DateLayout, s); err == nil {
				return Quote(t.Format(DateLayout)), nil
			}
		}
		t, ok := toTime(v, time.RFC3339)
		if !ok {
			return "", contractf(f.code, opName, "%s condition needs a datetime, got %v", d.WireName, v)
		}
		return Quote(t.UTC().Format(DatetimeLayout)), nil
	}
	return "", contractf(f.code, opName, "%s fields cannot be queried", d.WireName)
}

func (f *Field) listLiteral(d Descriptor, v any) (string, error) {
	const opName = "ConditionQuery"
	items, numeric, ok := listItems(v)
	if !ok {
		return "", contractf(f.code, opName, "in/not in needs a list of strings or numbers, got %T", v)
	}
	if len(items) == 0 {
		return "", contractf(f.code, opName, "in/not in needs at least one value")
	}

	switch d.literal {
	case literalNumber:
		if !numeric {
			for i, s := range items {
				n, err := parseFloat(s)
				if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
					return "", contractf(f.code, opName, "%s in/not in needs numbers, got %q", d.WireName, s)
				}
				items[i] = formatNumber(n)
			}
		}
	case literalText:
		if numeric {
			return "", contractf(f.code, opName, "%s in/not in needs strings, got %T", d.WireName, v)
		}
	}

	userList := d.wire == wireUser || d.wire == wireUsers
	parts := make([]string, len(items))
	for i, item := range items {
		if userList && item == FuncLoginUser {
			parts[i] = item
			continue
		}
		parts[i] = Quote(item)
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

// listItems flattens a homogeneous list to strings and reports whether it
// held numbers, which are formatted the way scalar number literals are.
func listItems(v any) (items []string, numeric bool, ok bool) {
	switch x := v.(type) {
	case []string:
		return slices.Clone(x), false, true
	case []User:
		out := make([]string, len(x))
		for i, u := range x {
			out[i] = u.Code
		}
		return out, false, true
	case nil:
		return nil, false, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false, false
	}
	out := make([]string, rv.Len())
	var sawString, sawNumber bool
	for i := range out {
		item := rv.Index(i).Interface()
		if s, ok := item.(string); ok {
			sawString = true
			out[i] = s
			continue
		}
		n, err := toFloat64(item)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, false, false
		}
		sawNumber = true
		out[i] = formatNumber(n)
	}
	if sawString && sawNumber {
		return nil, false, false
	}
	return out, sawNumber, true
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
