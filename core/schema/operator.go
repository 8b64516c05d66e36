package schema

import "strings"

// Operator is a comparison operator of the kintone query grammar.
type Operator int

const (
	OpEqual Operator = iota + 1
	OpNotEqual
	OpGreaterThan
	OpLessThan
	OpGreaterThanOrEqual
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpNotLike
)

var operatorTokens = [...]string{
	OpEqual:              "=",
	OpNotEqual:           "!=",
	OpGreaterThan:        ">",
	OpLessThan:           "<",
	OpGreaterThanOrEqual: ">=",
	OpLessThanOrEqual:    "<=",
	OpIn:                 "in",
	OpNotIn:              "not in",
	OpLike:               "like",
	OpNotLike:            "not like",
}

// String returns the grammar token, or "" for an unknown operator.
func (op Operator) String() string {
	if !op.Valid() {
		return ""
	}
	return operatorTokens[op]
}

// Valid reports whether op is one of the defined operators.
func (op Operator) Valid() bool {
	return op >= OpEqual && op <= OpNotLike
}

// IsList reports whether op compares against a parenthesized list.
func (op Operator) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// ParseOperator maps a grammar token back to its Operator. Matching is
// case-insensitive and tolerates repeated inner spaces ("not  in").
func ParseOperator(token string) (Operator, bool) {
	token = strings.ToLower(strings.Join(strings.Fields(token), " "))
	for op := OpEqual; op <= OpNotLike; op++ {
		if operatorTokens[op] == token {
			return op, true
		}
	}
	return 0, false
}

// OperatorSet is a bit set of operators.
type OperatorSet uint16

// NewOperatorSet returns the set holding ops.
func NewOperatorSet(ops ...Operator) OperatorSet {
	var s OperatorSet
	for _, op := range ops {
		if op.Valid() {
			s |= 1 << op
		}
	}
	return s
}

// Contains reports whether op is in the set.
func (s OperatorSet) Contains(op Operator) bool {
	return op.Valid() && s&(1<<op) != 0
}

// Operators lists the members in declaration order.
func (s OperatorSet) Operators() []Operator {
	var ops []Operator
	for op := OpEqual; op <= OpNotLike; op++ {
		if s.Contains(op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// String renders the set as a comma separated token list.
func (s OperatorSet) String() string {
	ops := s.Operators()
	tokens := make([]string, len(ops))
	for i, op := range ops {
		tokens[i] = op.String()
	}
	return strings.Join(tokens, ", ")
}
