package schema

import (
	"math"
	"slices"
	"sort"
	"strings"
)

// Field is one typed slot of an app's schema together with its current
// value. The schema attributes are fixed at construction; the value only
// changes through SetValue and the file helpers.
//
// A Field is not safe for concurrent mutation.
type Field struct {
	typ   FieldType
	code  string
	label string

	// rawType keeps the wire name of a type this package does not know.
	rawType string

	noLabel  bool
	required bool
	unique   bool

	minLength *int
	maxLength *int
	minValue  *float64
	maxValue  *float64

	defaultValue      any
	defaultExpression string
	options           []string
	expression        string
	digit             bool
	protocol          string
	format            string

	fields map[string]*Field

	value any
}

// NewField builds a field from a property bag, usually one entry of the
// form API's properties. "type" is required and may be a FieldType or a
// wire name. Only the attributes the type reads are looked at; unknown
// keys are ignored and attribute values are read leniently. A "value"
// entry is decoded as trusted server data, without SetValue's checks.
func NewField(props map[string]any) (*Field, error) {
	typ, err := typeFromProps(props)
	if err != nil {
		return nil, err
	}
	f := &Field{typ: typ}
	if name, ok := props["type"].(string); ok && typ == FieldTypeUnsupported {
		f.rawType = strings.TrimSpace(name)
	}
	if f.code, err = stringProp(props, "code"); err != nil {
		return nil, err
	}
	if f.label, err = stringProp(props, "label"); err != nil {
		return nil, err
	}
	f.readAttrs(props)

	if f.typ == FieldTypeSubtable {
		if raw, ok := props["fields"]; ok && raw != nil {
			nested, err := fieldsFromProperties(raw)
			if err != nil {
				return nil, err
			}
			f.fields = nested
		}
	}

	if raw, ok := props["value"]; ok && raw != nil {
		v, err := decodeValue(f, raw)
		if err != nil {
			return nil, contractf(f.code, "NewField", "%v", err)
		}
		f.value = v
	}
	return f, nil
}

// MustNewField is NewField that panics on error.
func MustNewField(props map[string]any) *Field {
	f, err := NewField(props)
	if err != nil {
		panic(err)
	}
	return f
}

func typeFromProps(props map[string]any) (FieldType, error) {
	switch t := props["type"].(type) {
	case FieldType:
		if t < FieldTypeLabel || t > FieldTypeUnsupported {
			return 0, contractf("", "NewField", "unknown field type %d", int(t))
		}
		return t, nil
	case string:
		return TypeForWireName(t), nil
	case nil:
		return 0, contractf("", "NewField", "type is required")
	default:
		return 0, contractf("", "NewField", "type must be a FieldType or string, got %T", t)
	}
}

func stringProp(props map[string]any, key string) (string, error) {
	switch v := props[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", contractf("", "NewField", "%s must be a string, got %T", key, v)
	}
}

func (f *Field) readAttrs(props map[string]any) {
	attrs := Describe(f.typ).Attrs
	if attrs.Has(AttrNoLabel) {
		f.noLabel, _ = parseBool(props["noLabel"])
	}
	if attrs.Has(AttrRequired) {
		f.required, _ = parseBool(props["required"])
	}
	if attrs.Has(AttrUnique) {
		f.unique, _ = parseBool(props["unique"])
	}
	if attrs.Has(AttrLength) {
		f.minLength = optionalInt(props["minLength"])
		f.maxLength = optionalInt(props["maxLength"])
	}
	if attrs.Has(AttrRange) {
		f.minValue = optionalFloat(props["minValue"])
		f.maxValue = optionalFloat(props["maxValue"])
	}
	if attrs.Has(AttrDefaultValue) {
		f.defaultValue = normalizeDefault(props["defaultValue"])
	}
	if attrs.Has(AttrDefaultExpression) {
		f.defaultExpression, _ = props["defaultExpression"].(string)
	}
	if attrs.Has(AttrOptions) {
		f.options = parseOptions(props["options"])
	}
	if attrs.Has(AttrExpression) {
		f.expression, _ = props["expression"].(string)
	}
	if attrs.Has(AttrDigit) {
		f.digit, _ = parseBool(props["digit"])
	}
	if attrs.Has(AttrProtocol) {
		f.protocol, _ = props["protocol"].(string)
	}
	if attrs.Has(AttrFormat) {
		f.format, _ = props["format"].(string)
	}
}

// optionalInt returns nil for absent, empty or unparsable values; the form
// API reports an unset bound as "".
func optionalInt(v any) *int {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := parseInt(v)
	if err != nil {
		return nil
	}
	return &n
}

func optionalFloat(v any) *float64 {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := parseFloat(v)
	if err != nil || math.IsNaN(n) {
		return nil
	}
	return &n
}

func normalizeDefault(v any) any {
	if list, ok := v.([]any); ok {
		if strs, ok := stringsFromAny(list); ok {
			return strs
		}
	}
	return v
}

// parseOptions reads options given as a list of labels or as the form
// API object {label: {label, index}}, ordered by index.
func parseOptions(v any) []string {
	switch o := v.(type) {
	case []string:
		return slices.Clone(o)
	case []any:
		strs, _ := stringsFromAny(o)
		return strs
	case map[string]any:
		type option struct {
			label string
			index int
		}
		opts := make([]option, 0, len(o))
		for key, raw := range o {
			opt := option{label: key, index: math.MaxInt}
			if m, ok := raw.(map[string]any); ok {
				if s, ok := m["label"].(string); ok && s != "" {
					opt.label = s
				}
				if n, err := parseInt(m["index"]); err == nil {
					opt.index = n
				}
			}
			opts = append(opts, opt)
		}
		sort.Slice(opts, func(i, j int) bool {
			if opts[i].index != opts[j].index {
				return opts[i].index < opts[j].index
			}
			return opts[i].label < opts[j].label
		})
		labels := make([]string, len(opts))
		for i, opt := range opts {
			labels[i] = opt.label
		}
		return labels
	}
	return nil
}

func stringsFromAny(list []any) ([]string, bool) {
	strs := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		strs = append(strs, s)
	}
	return strs, true
}

func (f *Field) Type() FieldType { return f.typ }

// WireName is the JSON type name, as received for unsupported types.
func (f *Field) WireName() string {
	if f.rawType != "" {
		return f.rawType
	}
	return f.typ.WireName()
}

func (f *Field) Descriptor() Descriptor { return Describe(f.typ) }
func (f *Field) Code() string           { return f.code }
func (f *Field) Label() string          { return f.label }
func (f *Field) NoLabel() bool          { return f.noLabel }
func (f *Field) Required() bool         { return f.required }
func (f *Field) Unique() bool           { return f.unique }

// MinLength is the inclusive lower length bound in characters, 0 when
// unconfigured.
func (f *Field) MinLength() int {
	if f.minLength == nil {
		return 0
	}
	return *f.minLength
}

// MaxLength is the inclusive upper length bound, math.MaxInt when
// unconfigured.
func (f *Field) MaxLength() int {
	if f.maxLength == nil {
		return math.MaxInt
	}
	return *f.maxLength
}

// MinValue is the inclusive lower bound, -math.MaxFloat64 when
// unconfigured.
func (f *Field) MinValue() float64 {
	if f.minValue == nil {
		return -math.MaxFloat64
	}
	return *f.minValue
}

// MaxValue is the inclusive upper bound, math.MaxFloat64 when
// unconfigured.
func (f *Field) MaxValue() float64 {
	if f.maxValue == nil {
		return math.MaxFloat64
	}
	return *f.maxValue
}

func (f *Field) DefaultValue() any         { return f.defaultValue }
func (f *Field) DefaultExpression() string { return f.defaultExpression }
func (f *Field) Expression() string        { return f.expression }
func (f *Field) Digit() bool               { return f.digit }
func (f *Field) Protocol() string          { return f.protocol }
func (f *Field) Format() string            { return f.format }

// Options returns the configured choices in display order.
func (f *Field) Options() []string { return slices.Clone(f.options) }

// HasOption reports whether s is one of the configured choices.
func (f *Field) HasOption(s string) bool { return slices.Contains(f.options, s) }

// Fields returns the nested schema of a SUBTABLE field.
func (f *Field) Fields() map[string]*Field {
	if f.fields == nil {
		return nil
	}
	out := make(map[string]*Field, len(f.fields))
	for code, nested := range f.fields {
		out[code] = nested
	}
	return out
}

// Value returns the current value, nil when unset. See SetValue for the Go
// type each field type holds.
func (f *Field) Value() any { return f.value }

// HasValue reports whether a value is set.
func (f *Field) HasValue() bool { return f.value != nil }

// Clone returns a copy sharing nothing mutable with f.
func (f *Field) Clone() *Field {
	c := *f
	c.options = slices.Clone(f.options)
	if f.fields != nil {
		c.fields = make(map[string]*Field, len(f.fields))
		for code, nested := range f.fields {
			c.fields[code] = nested.Clone()
		}
	}
	c.value = cloneValue(f.value)
	return &c
}

// Blank returns a copy of the schema with no value, for filling in a new
// record.
func (f *Field) Blank() *Field {
	c := f.Clone()
	c.value = nil
	return c
}

func (f *Field) displayName() string {
	if f.code != "" {
		return f.code
	}
	if f.label != "" {
		return f.label
	}
	return f.typ.WireName()
}
