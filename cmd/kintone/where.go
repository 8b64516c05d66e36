package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/kintone/core/query"
	"github.com/artpar/kintone/core/schema"
)

// whereClause is one --where expression before it is typed.
type whereClause struct {
	Code  string
	Op    schema.Operator
	Value string
}

var (
	wordOpPattern   = regexp.MustCompile(`(?i)^\s*([^=!<>\s]+)\s+(not\s+in|not\s+like|in|like)\s+(.*?)\s*$`)
	symbolOpPattern = regexp.MustCompile(`^\s*([^=!<>\s]+)\s*(!=|>=|<=|=|>|<)\s*(.*?)\s*$`)
)

// parseWhere splits "code<op>value". Word operators need spaces around
// them: "title like foo", "status not in A,B".
func parseWhere(expr string) (whereClause, error) {
	m := wordOpPattern.FindStringSubmatch(expr)
	if m == nil {
		m = symbolOpPattern.FindStringSubmatch(expr)
	}
	if m == nil {
		return whereClause{}, fmt.Errorf("invalid condition %q: want code<op>value", expr)
	}
	op, ok := schema.ParseOperator(m[2])
	if !ok {
		return whereClause{}, fmt.Errorf("invalid condition %q: unknown operator %q", expr, m[2])
	}
	return whereClause{Code: m[1], Op: op, Value: m[3]}, nil
}

var systemFields = map[string]*schema.Field{
	schema.CodeID:       schema.MustNewField(map[string]any{"type": "RECORD_NUMBER", "code": schema.CodeID}),
	schema.CodeRevision: schema.MustNewField(map[string]any{"type": "RECORD_NUMBER", "code": schema.CodeRevision}),
}

// lookupField finds code among the form fields and subtable columns.
func lookupField(form map[string]*schema.Field, code string) (*schema.Field, error) {
	if f, ok := form[code]; ok {
		return f, nil
	}
	if f, ok := systemFields[code]; ok {
		return f, nil
	}
	for _, f := range form {
		if f.Type() != schema.FieldTypeSubtable {
			continue
		}
		if col, ok := f.Fields()[code]; ok {
			return col, nil
		}
	}
	return nil, fmt.Errorf("unknown field %q", code)
}

// condition types the clause value for the field. List items stay
// strings; a scalar becomes a number when the field does not take text.
func (c whereClause) condition(form map[string]*schema.Field) (query.Condition, error) {
	f, err := lookupField(form, c.Code)
	if err != nil {
		return nil, err
	}

	if c.Op.IsList() {
		return query.Compare(f, c.Op, splitList(c.Value)), nil
	}

	value := unquote(c.Value)
	if _, err := f.ConditionQuery(c.Op, value); err != nil {
		if n, perr := strconv.ParseFloat(value, 64); perr == nil {
			return query.Compare(f, c.Op, n), nil
		}
	}
	return query.Compare(f, c.Op, value), nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitList reads "a,b" or "(a, b)".
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
	}
	var items []string
	for _, part := range strings.Split(s, ",") {
		part = unquote(strings.TrimSpace(part))
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

type listOptions struct {
	where  []string
	or     bool
	order  string
	desc   bool
	limit  int // -1 when unset
	offset int // -1 when unset
}

func (o listOptions) needsForm() bool {
	return len(o.where) > 0 || o.order != ""
}

// buildListQuery renders the query for list and query.
func buildListQuery(form map[string]*schema.Field, opts listOptions) (string, error) {
	conds := make([]query.Condition, 0, len(opts.where))
	for _, expr := range opts.where {
		clause, err := parseWhere(expr)
		if err != nil {
			return "", err
		}
		cond, err := clause.condition(form)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}

	b := query.New()
	switch {
	case len(conds) == 1:
		b.Where(conds[0])
	case opts.or:
		b.Where(query.Or(conds...))
	case len(conds) > 1:
		b.Where(query.And(conds...))
	}

	if opts.order != "" {
		f, err := lookupField(form, opts.order)
		if err != nil {
			return "", fmt.Errorf("order: %w", err)
		}
		b.OrderBy(f, !opts.desc)
	}
	if opts.limit >= 0 {
		b.Limit(opts.limit)
	}
	if opts.offset >= 0 {
		b.Offset(opts.offset)
	}
	return b.Build()
}

// parseAssignment splits a --set "code=value".
func parseAssignment(s string) (code, value string, err error) {
	code, value, ok := strings.Cut(s, "=")
	code = strings.TrimSpace(code)
	if !ok || code == "" {
		return "", "", fmt.Errorf("invalid assignment %q: want code=value", s)
	}
	return code, value, nil
}

// fieldValue converts command line text to the Go type SetValue expects
// for f. Lists are comma separated.
func fieldValue(f *schema.Field, raw string) (any, error) {
	switch f.Descriptor().Shape {
	case schema.ShapeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", f.Code(), raw)
		}
		return n, nil
	case schema.ShapeOptionList:
		return splitList(raw), nil
	case schema.ShapeUsers:
		codes := splitList(raw)
		users := make([]schema.User, len(codes))
		for i, code := range codes {
			users[i] = schema.User{Code: code}
		}
		return users, nil
	case schema.ShapeFiles:
		return nil, fmt.Errorf("%s: attach files with --attach %s=<path>", f.Code(), f.Code())
	case schema.ShapeNone:
		return nil, fmt.Errorf("%s: %s fields are not settable", f.Code(), f.WireName())
	}
	return raw, nil
}
