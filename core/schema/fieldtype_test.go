package schema

import "testing"

func TestTypeForWireName_RoundTrip(t *testing.T) {
	types := FieldTypes()
	if len(types) != 28 {
		t.Fatalf("FieldTypes() has %d entries, want 28", len(types))
	}
	for _, typ := range types {
		name := typ.WireName()
		if name == "" {
			t.Errorf("%d has no wire name", int(typ))
			continue
		}
		if got := TypeForWireName(name); got != typ {
			t.Errorf("TypeForWireName(%q) = %v, want %v", name, got, typ)
		}
	}
}

func TestTypeForWireName_Unknown(t *testing.T) {
	for _, name := range []string{"", "TEXT", "single_line_text", "__ID__", "GROUP"} {
		if got := TypeForWireName(name); got != FieldTypeUnsupported {
			t.Errorf("TypeForWireName(%q) = %v, want UNSUPPORTED", name, got)
		}
	}
}

func TestDescribe_OutOfRange(t *testing.T) {
	for _, typ := range []FieldType{0, -1, FieldTypeUnsupported + 1} {
		if got := Describe(typ).Type; got != FieldTypeUnsupported {
			t.Errorf("Describe(%d).Type = %v, want UNSUPPORTED", int(typ), got)
		}
	}
}

func TestDescribe_Operators(t *testing.T) {
	all := NewOperatorSet(OpEqual, OpNotEqual, OpGreaterThan, OpLessThan,
		OpGreaterThanOrEqual, OpLessThanOrEqual, OpIn, OpNotIn)

	tests := []struct {
		typ  FieldType
		want OperatorSet
	}{
		{FieldTypeSingleLineText, NewOperatorSet(OpEqual, OpNotEqual, OpLike, OpNotLike, OpIn, OpNotIn)},
		{FieldTypeLink, NewOperatorSet(OpEqual, OpNotEqual, OpLike, OpNotLike, OpIn, OpNotIn)},
		{FieldTypeNumber, all},
		{FieldTypeCalc, all},
		{FieldTypeRecordNumber, all},
		{FieldTypeMultiLineText, NewOperatorSet(OpLike, OpNotLike)},
		{FieldTypeRichText, NewOperatorSet(OpLike, OpNotLike)},
		{FieldTypeFile, NewOperatorSet(OpLike, OpNotLike)},
		{FieldTypeCheckBox, NewOperatorSet(OpEqual, OpNotEqual, OpIn, OpNotIn)},
		{FieldTypeStatus, NewOperatorSet(OpEqual, OpNotEqual, OpIn, OpNotIn)},
		{FieldTypeDate, NewOperatorSet(OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual)},
		{FieldTypeTime, NewOperatorSet(OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual)},
		{FieldTypeUserSelect, NewOperatorSet(OpIn, OpNotIn)},
		{FieldTypeCreator, NewOperatorSet(OpIn, OpNotIn)},
		{FieldTypeCategory, NewOperatorSet(OpIn, OpNotIn)},
		{FieldTypeLabel, 0},
		{FieldTypeSubtable, 0},
		{FieldTypeReferenceTable, 0},
		{FieldTypeUnsupported, 0},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := Describe(tt.typ).Operators; got != tt.want {
				t.Errorf("Operators = [%v], want [%v]", got, tt.want)
			}
		})
	}
}

func TestDescribe_Settable(t *testing.T) {
	settable := map[FieldType]bool{
		FieldTypeSingleLineText: true,
		FieldTypeNumber:         true,
		FieldTypeMultiLineText:  true,
		FieldTypeRichText:       true,
		FieldTypeCheckBox:       true,
		FieldTypeRadioButton:    true,
		FieldTypeDropDown:       true,
		FieldTypeMultiSelect:    true,
		FieldTypeFile:           true,
		FieldTypeDate:           true,
		FieldTypeTime:           true,
		FieldTypeDatetime:       true,
		FieldTypeLink:           true,
		FieldTypeUserSelect:     true,
		FieldTypeCategory:       true,
	}
	for _, typ := range FieldTypes() {
		if got := Describe(typ).Settable(); got != settable[typ] {
			t.Errorf("%v Settable() = %v, want %v", typ, got, settable[typ])
		}
	}
}

func TestParseOperator(t *testing.T) {
	tests := []struct {
		token string
		want  Operator
		ok    bool
	}{
		{"=", OpEqual, true},
		{"!=", OpNotEqual, true},
		{">=", OpGreaterThanOrEqual, true},
		{"in", OpIn, true},
		{"NOT IN", OpNotIn, true},
		{"not   like", OpNotLike, true},
		{"==", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseOperator(tt.token)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseOperator(%q) = %v, %v, want %v, %v", tt.token, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOperator_String(t *testing.T) {
	want := map[Operator]string{
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
	for op, token := range want {
		if got := op.String(); got != token {
			t.Errorf("%d.String() = %q, want %q", int(op), got, token)
		}
	}
	if got := Operator(42).String(); got != "" {
		t.Errorf("unknown operator String() = %q, want empty", got)
	}
}
