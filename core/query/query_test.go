package query_test

import (
	"strconv"
	"testing"

	"github.com/artpar/kintone/core/query"
	"github.com/artpar/kintone/core/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func field(typ, code string) *schema.Field {
	return schema.MustNewField(map[string]any{"type": typ, "code": code})
}

var (
	f1      = field("SINGLE_LINE_TEXT", "f1")
	f2      = field("DROP_DOWN", "f2")
	f3      = field("NUMBER", "f3")
	due     = field("DATE", "due")
	owner   = field("USER_SELECT", "owner")
	created = field("CREATED_TIME", "created")
)

func TestBuild(t *testing.T) {
	tests := []struct {
		B *query.Builder
		S string
	}{
		{
			B: query.New().Where(query.And(
				query.Eq(f1, "test"),
				query.In(f2, []string{"a", "b"}),
			)),
			S: `(f1 = "test") and (f2 in ("a","b"))`,
		},
		{
			B: query.New().
				Where(query.And(
					query.Eq(f1, "test"),
					query.In(f2, []string{"a", "b"}),
				)).
				OrderBy(f3, false).
				Limit(5).
				Offset(10),
			S: `(f1 = "test") and (f2 in ("a","b")) order by f3 desc limit 5 offset 10`,
		},
		{
			B: query.New().Where(query.GreaterThan(f3, 10)),
			S: `f3 > 10`,
		},
		{
			B: query.New().Where(query.Or(
				query.Like(f1, "x"),
				query.And(
					query.GreaterThanOrEqual(f3, 1),
					query.LessThanOrEqual(f3, 9.5),
				),
			)),
			S: `(f1 like "x") or ((f3 >= 1) and (f3 <= 9.5))`,
		},
		{
			B: query.New().Where(query.And(
				query.NotEq(f2, "z"),
				query.NotLike(f1, "y"),
				query.NotIn(owner, []string{schema.FuncLoginUser}),
				query.LessThan(due, schema.FuncToday),
			)),
			S: `(f2 != "z") and (f1 not like "y") and (owner not in (LOGINUSER())) and (due < TODAY())`,
		},
		{
			B: query.New().Where(query.And(query.Eq(f1, "only"))),
			S: `(f1 = "only")`,
		},
		{
			B: query.New().Where(query.And(nil, query.Or(), query.Eq(f1, "a"))),
			S: `(f1 = "a")`,
		},
		{
			B: query.New(),
			S: ``,
		},
		{
			B: query.New().Where(query.And()).OrderBy(created, true),
			S: ` order by created asc`,
		},
		{
			B: query.New().Limit(100).Offset(0),
			S: ` limit 100 offset 0`,
		},
	}
	for i := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			s, err := tests[i].B.Build()
			require.NoError(t, err)
			assert.Equal(t, tests[i].S, s)
		})
	}
}

func TestBuild_SettersOverwrite(t *testing.T) {
	b := query.New().
		Where(query.Eq(f1, "old")).
		Where(query.Eq(f1, "new")).
		OrderBy(f1, true).
		OrderBy(f3, false).
		Limit(1).
		Limit(2).
		Offset(3).
		Offset(4)

	assert.Equal(t, `f1 = "new" order by f3 desc limit 2 offset 4`, b.MustBuild())
	assert.Equal(t, b.MustBuild(), b.String(), "rendering must not change the builder")
}

func TestBuild_ContractViolations(t *testing.T) {
	label := schema.MustNewField(map[string]any{"type": "LABEL", "label": "x"})

	tests := []struct {
		name string
		B    *query.Builder
	}{
		{"date like", query.New().Where(query.Like(due, "2024"))},
		{"nested violation", query.New().Where(query.Or(query.Eq(f1, "a"), query.And(query.In(f3, "1"))))},
		{"nil field", query.New().Where(query.Eq(nil, "a"))},
		{"negative limit", query.New().Limit(-1)},
		{"negative offset", query.New().Offset(-5)},
		{"order without code", query.New().OrderBy(label, true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.B.Build()
			assert.Empty(t, s)
			assert.ErrorIs(t, err, schema.ErrContractViolation)
			assert.Panics(t, func() { tt.B.MustBuild() })
			assert.Equal(t, "", tt.B.String())
		})
	}
}

func TestDateFunctionCondition(t *testing.T) {
	s, err := query.New().Where(query.GreaterThan(due, "TODAY()")).Build()
	require.NoError(t, err)
	assert.Equal(t, `due > TODAY()`, s)
}

func TestOperatorString(t *testing.T) {
	tests := []struct {
		op schema.Operator
		s  string
	}{
		{schema.OpEqual, "="},
		{schema.OpNotEqual, "!="},
		{schema.OpGreaterThan, ">"},
		{schema.OpLessThan, "<"},
		{schema.OpGreaterThanOrEqual, ">="},
		{schema.OpLessThanOrEqual, "<="},
		{schema.OpIn, "in"},
		{schema.OpNotIn, "not in"},
		{schema.OpLike, "like"},
		{schema.OpNotLike, "not like"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.s, query.OperatorString(tt.op))
	}
}

func TestCompare(t *testing.T) {
	s, err := query.New().Where(query.Compare(f3, schema.OpNotEqual, 0)).Build()
	require.NoError(t, err)
	assert.Equal(t, `f3 != 0`, s)
}

func TestRaw(t *testing.T) {
	s, err := query.New().
		Where(query.And(query.Raw(` status in ("open") `), query.Eq(f1, "x"))).
		Limit(1).
		Build()
	require.NoError(t, err)
	assert.Equal(t, `(status in ("open")) and (f1 = "x") limit 1`, s)

	s, err = query.New().Where(query.Raw("  ")).OrderBy(f3, true).Build()
	require.NoError(t, err)
	assert.Equal(t, ` order by f3 asc`, s)
}
