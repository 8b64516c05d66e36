package schema

import "strings"

// FieldType identifies one of the kintone field variants.
type FieldType int

const (
	FieldTypeLabel FieldType = iota + 1
	FieldTypeSingleLineText
	FieldTypeNumber
	FieldTypeCalc
	FieldTypeMultiLineText
	FieldTypeRichText
	FieldTypeCheckBox
	FieldTypeRadioButton
	FieldTypeDropDown
	FieldTypeMultiSelect
	FieldTypeFile
	FieldTypeDate
	// FieldTypeTime takes the full date operator set, <= included.
	FieldTypeTime
	FieldTypeDatetime
	FieldTypeLink
	FieldTypeUserSelect
	FieldTypeLookup
	FieldTypeReferenceTable
	FieldTypeCategory
	FieldTypeStatus
	FieldTypeStatusAssignee
	FieldTypeRecordNumber
	FieldTypeCreator
	FieldTypeCreatedTime
	FieldTypeModifier
	FieldTypeUpdatedTime
	FieldTypeSubtable
	FieldTypeUnsupported
)

// Shape is the value contract SetValue enforces for a field type.
type Shape int

const (
	// ShapeNone marks types whose value is server-derived or structural.
	ShapeNone Shape = iota
	ShapeText
	ShapeNumber
	ShapeOption
	// ShapeOptionList is a list of strings, each checked against options
	// when the field has any.
	ShapeOptionList
	ShapeUsers
	ShapeFiles
	ShapeDate
	ShapeTime
	ShapeDatetime
)

// Attr is a bit set of the optional schema attributes a type reads.
type Attr uint16

const (
	AttrRequired Attr = 1 << iota
	AttrNoLabel
	AttrUnique
	AttrLength
	AttrRange
	AttrDefaultValue
	AttrDefaultExpression
	AttrOptions
	AttrExpression
	AttrDigit
	AttrProtocol
	AttrFormat
	AttrFields
)

// Has reports whether every bit of a is set.
func (s Attr) Has(a Attr) bool { return s&a == a }

// wireKind is how a type's value is laid out in record JSON.
type wireKind int

const (
	wireRaw wireKind = iota
	wireString
	wireNumber
	wireStrings
	wireUser
	wireUsers
	wireFiles
	wireDate
	wireTime
	wireDatetime
	wireRows
)

// literalKind is how a type's comparison values are written in a query.
type literalKind int

const (
	literalNone literalKind = iota
	literalText
	literalNumber
	literalDate
	literalTime
	literalDatetime
)

// Descriptor is the static capability record of a field type.
type Descriptor struct {
	Type      FieldType
	WireName  string
	Operators OperatorSet
	Shape     Shape
	Attrs     Attr

	wire    wireKind
	literal literalKind
}

// Settable reports whether SetValue can assign values of this type.
func (d Descriptor) Settable() bool { return d.Shape != ShapeNone }

var (
	textOps   = NewOperatorSet(OpEqual, OpNotEqual, OpLike, OpNotLike, OpIn, OpNotIn)
	numberOps = NewOperatorSet(OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual, OpIn, OpNotIn)
	likeOps   = NewOperatorSet(OpLike, OpNotLike)
	selectOps = NewOperatorSet(OpEqual, OpNotEqual, OpIn, OpNotIn)
	dateOps   = NewOperatorSet(OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual)
	userOps   = NewOperatorSet(OpIn, OpNotIn)
)

const (
	textAttrs   = AttrRequired | AttrNoLabel | AttrUnique | AttrLength | AttrDefaultValue
	choiceAttrs = AttrRequired | AttrNoLabel | AttrOptions | AttrDefaultValue
	dateAttrs   = AttrRequired | AttrNoLabel | AttrDefaultValue | AttrDefaultExpression
)

// descriptors is indexed by FieldType and never written after init.
var descriptors = [...]Descriptor{
	FieldTypeLabel:          {WireName: "LABEL"},
	FieldTypeSingleLineText: {WireName: "SINGLE_LINE_TEXT", Operators: textOps, Shape: ShapeText, Attrs: textAttrs | AttrExpression, wire: wireString, literal: literalText},
	FieldTypeNumber:         {WireName: "NUMBER", Operators: numberOps, Shape: ShapeNumber, Attrs: AttrRequired | AttrNoLabel | AttrUnique | AttrRange | AttrDefaultValue | AttrDigit, wire: wireNumber, literal: literalNumber},
	FieldTypeCalc:           {WireName: "CALC", Operators: numberOps, Attrs: AttrNoLabel | AttrExpression | AttrFormat | AttrDigit, wire: wireString, literal: literalNumber},
	FieldTypeMultiLineText:  {WireName: "MULTI_LINE_TEXT", Operators: likeOps, Shape: ShapeText, Attrs: AttrRequired | AttrNoLabel | AttrDefaultValue, wire: wireString, literal: literalText},
	FieldTypeRichText:       {WireName: "RICH_TEXT", Operators: likeOps, Shape: ShapeText, Attrs: AttrRequired | AttrNoLabel | AttrDefaultValue, wire: wireString, literal: literalText},
	FieldTypeCheckBox:       {WireName: "CHECK_BOX", Operators: selectOps, Shape: ShapeOptionList, Attrs: choiceAttrs, wire: wireStrings, literal: literalText},
	FieldTypeRadioButton:    {WireName: "RADIO_BUTTON", Operators: selectOps, Shape: ShapeOption, Attrs: choiceAttrs, wire: wireString, literal: literalText},
	FieldTypeDropDown:       {WireName: "DROP_DOWN", Operators: selectOps, Shape: ShapeOption, Attrs: choiceAttrs, wire: wireString, literal: literalText},
	FieldTypeMultiSelect:    {WireName: "MULTI_SELECT", Operators: selectOps, Shape: ShapeOptionList, Attrs: choiceAttrs, wire: wireStrings, literal: literalText},
	FieldTypeFile:           {WireName: "FILE", Operators: likeOps, Shape: ShapeFiles, Attrs: AttrRequired | AttrNoLabel, wire: wireFiles, literal: literalText},
	FieldTypeDate:           {WireName: "DATE", Operators: dateOps, Shape: ShapeDate, Attrs: dateAttrs | AttrUnique, wire: wireDate, literal: literalDate},
	FieldTypeTime:           {WireName: "TIME", Operators: dateOps, Shape: ShapeTime, Attrs: dateAttrs, wire: wireTime, literal: literalTime},
	FieldTypeDatetime:       {WireName: "DATETIME", Operators: dateOps, Shape: ShapeDatetime, Attrs: dateAttrs | AttrUnique, wire: wireDatetime, literal: literalDatetime},
	FieldTypeLink:           {WireName: "LINK", Operators: textOps, Shape: ShapeText, Attrs: textAttrs | AttrProtocol, wire: wireString, literal: literalText},
	FieldTypeUserSelect:     {WireName: "USER_SELECT", Operators: userOps, Shape: ShapeUsers, Attrs: AttrRequired | AttrNoLabel | AttrDefaultValue, wire: wireUsers, literal: literalText},
	FieldTypeLookup:         {WireName: "LOOKUP", Operators: textOps, Attrs: AttrRequired | AttrNoLabel, wire: wireString, literal: literalText},
	FieldTypeReferenceTable: {WireName: "REFERENCE_TABLE", Attrs: AttrNoLabel},
	FieldTypeCategory:       {WireName: "CATEGORY", Operators: userOps, Shape: ShapeOptionList, Attrs: AttrOptions, wire: wireStrings, literal: literalText},
	FieldTypeStatus:         {WireName: "STATUS", Operators: selectOps, wire: wireString, literal: literalText},
	FieldTypeStatusAssignee: {WireName: "STATUS_ASSIGNEE", Operators: selectOps, wire: wireUsers, literal: literalText},
	FieldTypeRecordNumber:   {WireName: "RECORD_NUMBER", Operators: numberOps, Attrs: AttrNoLabel, wire: wireString, literal: literalNumber},
	FieldTypeCreator:        {WireName: "CREATOR", Operators: userOps, Attrs: AttrNoLabel, wire: wireUser, literal: literalText},
	FieldTypeCreatedTime:    {WireName: "CREATED_TIME", Operators: dateOps, Attrs: AttrNoLabel, wire: wireDatetime, literal: literalDatetime},
	FieldTypeModifier:       {WireName: "MODIFIER", Operators: userOps, Attrs: AttrNoLabel, wire: wireUser, literal: literalText},
	FieldTypeUpdatedTime:    {WireName: "UPDATED_TIME", Operators: dateOps, Attrs: AttrNoLabel, wire: wireDatetime, literal: literalDatetime},
	FieldTypeSubtable:       {WireName: "SUBTABLE", Attrs: AttrFields, wire: wireRows},
	FieldTypeUnsupported:    {WireName: "UNSUPPORTED"},
}

var wireNames = func() map[string]FieldType {
	m := make(map[string]FieldType, len(descriptors))
	for t := FieldTypeLabel; t <= FieldTypeUnsupported; t++ {
		descriptors[t].Type = t
		m[descriptors[t].WireName] = t
	}
	return m
}()

// Describe returns the descriptor of t. Values outside the enum describe
// FieldTypeUnsupported.
func Describe(t FieldType) Descriptor {
	if t < FieldTypeLabel || t > FieldTypeUnsupported {
		t = FieldTypeUnsupported
	}
	return descriptors[t]
}

// TypeForWireName maps a JSON type name to its FieldType. Names this
// package does not know resolve to FieldTypeUnsupported.
func TypeForWireName(name string) FieldType {
	if t, ok := wireNames[strings.TrimSpace(name)]; ok {
		return t
	}
	return FieldTypeUnsupported
}

// WireName returns the JSON type name of t.
func (t FieldType) WireName() string {
	return Describe(t).WireName
}

// String implements fmt.Stringer.
func (t FieldType) String() string {
	return t.WireName()
}

// FieldTypes lists every known type, Unsupported last.
func FieldTypes() []FieldType {
	types := make([]FieldType, 0, FieldTypeUnsupported)
	for t := FieldTypeLabel; t <= FieldTypeUnsupported; t++ {
		types = append(types, t)
	}
	return types
}
