// Package query builds kintone record queries.
//
// A query is a condition tree plus optional ordering and paging:
//
//	q, err := query.New().
//		Where(query.And(
//			query.Eq(title, "test"),
//			query.In(status, []string{"a", "b"}),
//		)).
//		OrderBy(created, false).
//		Limit(5).
//		Offset(10).
//		Build()
//	// (title = "test") and (status in ("a","b")) order by created desc limit 5 offset 10
//
// Conditions are not checked when they are built. Build renders every leaf
// through schema.Field.ConditionQuery, which rejects operators and values
// the field type does not support.
package query

import (
	"strconv"
	"strings"

	"github.com/artpar/kintone/core/schema"
)

// Condition is a node of a condition tree: a *Leaf or a *Group.
type Condition interface {
	render(sb *strings.Builder) error
	empty() bool
}

// Leaf compares one field against a value.
type Leaf struct {
	Field *schema.Field
	Op    schema.Operator
	Value any
}

// Conjunction joins the children of a Group.
type Conjunction int

const (
	ConjunctionAnd Conjunction = iota + 1
	ConjunctionOr
)

func (c Conjunction) String() string {
	if c == ConjunctionOr {
		return "or"
	}
	return "and"
}

// Group combines conditions with and or or.
type Group struct {
	Conjunction Conjunction
	Children    []Condition
}

func leaf(f *schema.Field, op schema.Operator, v any) Condition {
	return &Leaf{Field: f, Op: op, Value: v}
}

func Eq(f *schema.Field, v any) Condition          { return leaf(f, schema.OpEqual, v) }
func NotEq(f *schema.Field, v any) Condition       { return leaf(f, schema.OpNotEqual, v) }
func GreaterThan(f *schema.Field, v any) Condition { return leaf(f, schema.OpGreaterThan, v) }
func LessThan(f *schema.Field, v any) Condition    { return leaf(f, schema.OpLessThan, v) }
func Like(f *schema.Field, v any) Condition        { return leaf(f, schema.OpLike, v) }
func NotLike(f *schema.Field, v any) Condition     { return leaf(f, schema.OpNotLike, v) }

func GreaterThanOrEqual(f *schema.Field, v any) Condition {
	return leaf(f, schema.OpGreaterThanOrEqual, v)
}

func LessThanOrEqual(f *schema.Field, v any) Condition {
	return leaf(f, schema.OpLessThanOrEqual, v)
}

// In takes a list value: []string, []schema.User or a slice of numbers.
func In(f *schema.Field, v any) Condition { return leaf(f, schema.OpIn, v) }

func NotIn(f *schema.Field, v any) Condition { return leaf(f, schema.OpNotIn, v) }

// Compare builds a leaf for an operator chosen at run time.
func Compare(f *schema.Field, op schema.Operator, v any) Condition { return leaf(f, op, v) }

// And joins conds with "and". Nil and empty conditions are skipped when
// rendering.
func And(conds ...Condition) Condition {
	return &Group{Conjunction: ConjunctionAnd, Children: conds}
}

// Or joins conds with "or".
func Or(conds ...Condition) Condition {
	return &Group{Conjunction: ConjunctionOr, Children: conds}
}

// Raw is a condition already written in query syntax, such as a filter
// read from a config file. It is inserted verbatim.
type Raw string

func (r Raw) empty() bool { return strings.TrimSpace(string(r)) == "" }

func (r Raw) render(sb *strings.Builder) error {
	sb.WriteString(strings.TrimSpace(string(r)))
	return nil
}

// OperatorString returns the grammar token of op.
func OperatorString(op schema.Operator) string {
	return op.String()
}

func (l *Leaf) empty() bool { return false }

func (l *Leaf) render(sb *strings.Builder) error {
	if l.Field == nil {
		return &schema.ContractError{Op: "Build", Reason: "condition has no field"}
	}
	s, err := l.Field.ConditionQuery(l.Op, l.Value)
	if err != nil {
		return err
	}
	sb.WriteString(s)
	return nil
}

func (g *Group) empty() bool {
	for _, c := range g.Children {
		if c != nil && !c.empty() {
			return false
		}
	}
	return true
}

// render writes every non-empty child in parentheses, joined by the
// conjunction. The caller wraps the group itself when it is nested.
func (g *Group) render(sb *strings.Builder) error {
	sep := " " + g.Conjunction.String() + " "
	first := true
	for _, c := range g.Children {
		if c == nil || c.empty() {
			continue
		}
		if !first {
			sb.WriteString(sep)
		}
		first = false
		sb.WriteByte('(')
		if err := c.render(sb); err != nil {
			return err
		}
		sb.WriteByte(')')
	}
	return nil
}

// Builder holds a condition tree, ordering and paging. Each setter
// replaces the previous setting. Building does not modify the Builder.
type Builder struct {
	where     Condition
	orderBy   *schema.Field
	ascending bool
	limit     *int
	offset    *int
}

// New returns an empty builder; it renders "" until something is set.
func New() *Builder {
	return &Builder{}
}

// Where sets the condition tree root. Nil clears it.
func (b *Builder) Where(c Condition) *Builder {
	b.where = c
	return b
}

// OrderBy sorts by f, ascending or descending.
func (b *Builder) OrderBy(f *schema.Field, ascending bool) *Builder {
	b.orderBy = f
	b.ascending = ascending
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.offset = &n
	return b
}

// Build renders the query string. The root group is not wrapped in
// parentheses; ordering and paging clauses follow even when there is no
// condition. Contract violations from any leaf, a negative limit or
// offset, or an ordering field without a code are returned as
// *schema.ContractError.
func (b *Builder) Build() (string, error) {
	var sb strings.Builder
	if b.where != nil && !b.where.empty() {
		if err := b.where.render(&sb); err != nil {
			return "", err
		}
	}

	if b.orderBy != nil {
		if b.orderBy.Code() == "" {
			return "", &schema.ContractError{Op: "Build", Reason: "order by field has no code"}
		}
		sb.WriteString(" order by ")
		sb.WriteString(b.orderBy.Code())
		if b.ascending {
			sb.WriteString(" asc")
		} else {
			sb.WriteString(" desc")
		}
	}
	if b.limit != nil {
		if *b.limit < 0 {
			return "", &schema.ContractError{Op: "Build", Reason: "limit must not be negative"}
		}
		sb.WriteString(" limit ")
		sb.WriteString(strconv.Itoa(*b.limit))
	}
	if b.offset != nil {
		if *b.offset < 0 {
			return "", &schema.ContractError{Op: "Build", Reason: "offset must not be negative"}
		}
		sb.WriteString(" offset ")
		sb.WriteString(strconv.Itoa(*b.offset))
	}
	return sb.String(), nil
}

// MustBuild is Build that panics with the contract error.
func (b *Builder) MustBuild() string {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// String renders the query, or "" when it cannot be built.
func (b *Builder) String() string {
	s, _ := b.Build()
	return s
}
