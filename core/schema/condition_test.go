package schema

import (
	"errors"
	"testing"
	"time"
)

func TestConditionQuery(t *testing.T) {
	text := MustNewField(map[string]any{"type": "SINGLE_LINE_TEXT", "code": "title"})
	num := MustNewField(map[string]any{"type": "NUMBER", "code": "amount"})
	date := MustNewField(map[string]any{"type": "DATE", "code": "due"})
	clock := MustNewField(map[string]any{"type": "TIME", "code": "at"})
	stamp := MustNewField(map[string]any{"type": "DATETIME", "code": "when"})
	created := MustNewField(map[string]any{"type": "CREATED_TIME", "code": "created"})
	owner := MustNewField(map[string]any{"type": "USER_SELECT", "code": "owner"})
	status := MustNewField(map[string]any{"type": "DROP_DOWN", "code": "status"})
	memo := MustNewField(map[string]any{"type": "MULTI_LINE_TEXT", "code": "memo"})
	recNo := MustNewField(map[string]any{"type": "RECORD_NUMBER", "code": "rn"})

	tests := []struct {
		name  string
		field *Field
		op    Operator
		value any
		want  string
	}{
		{"text equal", text, OpEqual, "test", `title = "test"`},
		{"text escapes", text, OpLike, `say "hi" \o/`, `title like "say \"hi\" \\o/"`},
		{"text in", text, OpIn, []string{"a", "b"}, `title in ("a","b")`},
		{"number greater", num, OpGreaterThan, 100, `amount > 100`},
		{"number fraction", num, OpLessThanOrEqual, 2.5, `amount <= 2.5`},
		{"number not in", num, OpNotIn, []int{1, 2}, `amount not in ("1","2")`},
		{"number in any", num, OpIn, []any{1.5, int64(3)}, `amount in ("1.5","3")`},
		{"date function", date, OpGreaterThan, "TODAY()", `due > TODAY()`},
		{"date this month", date, OpEqual, FuncThisMonth, `due = THIS_MONTH()`},
		{"date string", date, OpLessThan, "2024-03-01", `due < "2024-03-01"`},
		{"date time.Time", date, OpGreaterThanOrEqual, time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), `due >= "2024-03-01"`},
		{"time string", clock, OpEqual, "09:30", `at = "09:30"`},
		{"time at most", clock, OpLessThanOrEqual, "10:00", `at <= "10:00"`},
		{"number in numeric strings", num, OpIn, []string{"1", " 2.50"}, `amount in ("1","2.5")`},
		{"record number string", recNo, OpEqual, "12", `rn = 12`},
		{"record number int", recNo, OpGreaterThan, 100, `rn > 100`},
		{"datetime utc", stamp, OpGreaterThan, time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600)), `when > "2024-03-01T00:00:00Z"`},
		{"datetime rfc3339", stamp, OpLessThan, "2024-03-01T10:00:00+01:00", `when < "2024-03-01T09:00:00Z"`},
		{"datetime date only", stamp, OpEqual, "2024-03-01", `when = "2024-03-01"`},
		{"created this year", created, OpGreaterThanOrEqual, FuncThisYear, `created >= THIS_YEAR()`},
		{"users", owner, OpIn, []User{{Code: "alice"}}, `owner in ("alice")`},
		{"login user", owner, OpNotIn, []string{FuncLoginUser, "bob"}, `owner not in (LOGINUSER(),"bob")`},
		{"dropdown", status, OpNotEqual, "closed", `status != "closed"`},
		{"memo like", memo, OpNotLike, "draft", `memo not like "draft"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.field.ConditionQuery(tt.op, tt.value)
			if err != nil {
				t.Fatalf("ConditionQuery() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ConditionQuery() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConditionQuery_ContractViolations(t *testing.T) {
	text := MustNewField(map[string]any{"type": "SINGLE_LINE_TEXT", "code": "title"})
	num := MustNewField(map[string]any{"type": "NUMBER", "code": "amount"})
	date := MustNewField(map[string]any{"type": "DATE", "code": "due"})
	clock := MustNewField(map[string]any{"type": "TIME", "code": "at"})
	table := MustNewField(map[string]any{"type": "SUBTABLE", "code": "rows"})
	label := MustNewField(map[string]any{"type": "LABEL", "label": "Heading"})
	status := MustNewField(map[string]any{"type": "DROP_DOWN", "code": "status"})
	recNo := MustNewField(map[string]any{"type": "RECORD_NUMBER", "code": "rn"})

	tests := []struct {
		name  string
		field *Field
		op    Operator
		value any
	}{
		{"date like", date, OpLike, "2024"},
		{"text greater", text, OpGreaterThan, "a"},
		{"subtable anything", table, OpEqual, "a"},
		{"unknown operator", text, Operator(99), "a"},
		{"text with number", text, OpEqual, 1},
		{"number with string", num, OpEqual, "1"},
		{"scalar for in", text, OpIn, "a"},
		{"empty list", text, OpIn, []string{}},
		{"mixed list", num, OpIn, []any{1, "2"}},
		{"number in words", num, OpIn, []string{"abc"}},
		{"number in users", num, OpIn, []User{{Code: "alice"}}},
		{"text in numbers", text, OpIn, []int{1, 2}},
		{"dropdown in numbers", status, OpNotIn, []float64{1.5}},
		{"record number with app code", recNo, OpEqual, "APP-42"},
		{"list of structs", num, OpIn, []struct{}{{}}},
		{"list for equal", text, OpEqual, []string{"a"}},
		{"bad date", date, OpEqual, "tomorrow"},
		{"time has no functions", clock, OpEqual, FuncToday},
		{"date rejects NOW", date, OpEqual, "NOW()"},
		{"no code", label, OpEqual, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.field.ConditionQuery(tt.op, tt.value)
			if err == nil {
				t.Fatalf("ConditionQuery() = %q, want a contract violation", got)
			}
			if !errors.Is(err, ErrContractViolation) {
				t.Errorf("error = %v, want ErrContractViolation", err)
			}
			var cerr *ContractError
			if !errors.As(err, &cerr) {
				t.Errorf("error %T is not a *ContractError", err)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":            `""`,
		"plain":       `"plain"`,
		`a"b`:         `"a\"b"`,
		`back\kslash`: `"back\\kslash"`,
	}
	for in, want := range tests {
		if got := Quote(in); got != want {
			t.Errorf("Quote(%q) = %s, want %s", in, got, want)
		}
	}
}
