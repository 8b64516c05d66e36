package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/kintone/domain/attachment"
)

// encodeValue returns the record JSON representation of f's value.
func encodeValue(f *Field) any {
	if f.value == nil {
		return nil
	}
	d := Describe(f.typ)
	switch d.wire {
	case wireNumber:
		if n, ok := f.value.(float64); ok {
			return formatNumber(n)
		}
	case wireDate:
		if t, ok := f.value.(time.Time); ok {
			return t.Format(DateLayout)
		}
	case wireTime:
		if t, ok := f.value.(time.Time); ok {
			return t.Format(TimeLayout)
		}
	case wireDatetime:
		if t, ok := f.value.(time.Time); ok {
			return t.UTC().Format(DatetimeLayout)
		}
	case wireRows:
		if rows, ok := f.value.([]*Record); ok {
			out := make([]map[string]any, len(rows))
			for i, row := range rows {
				out[i] = map[string]any{"id": row.rowID, "value": row}
			}
			return out
		}
	}
	return f.value
}

// decodeValue converts a value decoded from record JSON into the Go type
// f's type holds. Server data is trusted: no bounds or options checks.
func decodeValue(f *Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	d := Describe(f.typ)
	switch d.wire {
	case wireString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64:
			return formatNumber(v), nil
		case json.Number:
			return v.String(), nil
		}
		return nil, fmt.Errorf("%s value must be a string, got %T", d.WireName, raw)

	case wireNumber:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		n, err := parseFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%s value: %w", d.WireName, err)
		}
		return n, nil

	case wireStrings:
		strs, ok := toStrings(raw)
		if !ok {
			return nil, fmt.Errorf("%s value must be a list of strings, got %T", d.WireName, raw)
		}
		return strs, nil

	case wireUser:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s value must be an object, got %T", d.WireName, raw)
		}
		u, _ := userFromMap(m)
		return u, nil

	case wireUsers:
		users, ok := toUsers(raw)
		if !ok {
			return nil, fmt.Errorf("%s value must be a list of users, got %T", d.WireName, raw)
		}
		return users, nil

	case wireFiles:
		if files, ok := raw.([]*attachment.File); ok {
			return cloneValue(files), nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%s value must be a list, got %T", d.WireName, raw)
		}
		files := make([]*attachment.File, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s entry must be an object, got %T", d.WireName, item)
			}
			files = append(files, attachment.FromProperties(m))
		}
		return files, nil

	case wireDate:
		return decodeTime(d, raw, DateLayout)
	case wireTime:
		v, err := decodeTime(d, raw, TimeLayout, "15:04:05")
		if t, ok := v.(time.Time); ok {
			return clockOf(t), err
		}
		return v, err
	case wireDatetime:
		v, err := decodeTime(d, raw, time.RFC3339)
		if t, ok := v.(time.Time); ok {
			return t.UTC(), err
		}
		return v, err

	case wireRows:
		return decodeRows(raw)
	}
	return raw, nil
}

func decodeTime(d Descriptor, raw any, layouts ...string) (any, error) {
	if t, ok := raw.(time.Time); ok {
		return t, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%s value must be a string, got %T", d.WireName, raw)
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%s value %q does not match %s", d.WireName, s, layouts[0])
}

func decodeRows(raw any) (any, error) {
	if rows, ok := raw.([]*Record); ok {
		return cloneValue(rows), nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("SUBTABLE value must be a list, got %T", raw)
	}
	rows := make([]*Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("SUBTABLE row %d must be an object, got %T", i, item)
		}
		values, _ := m["value"].(map[string]any)
		row, err := recordFromMap(values)
		if err != nil {
			return nil, fmt.Errorf("SUBTABLE row %d: %w", i, err)
		}
		switch id := m["id"].(type) {
		case string:
			row.rowID = id
		case float64:
			row.rowID = formatNumber(id)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// MarshalJSON emits the type, code, label, the attributes the type
// supports and the value in record JSON form.
func (f *Field) MarshalJSON() ([]byte, error) {
	d := Describe(f.typ)
	out := map[string]any{
		"type":  f.WireName(),
		"value": encodeValue(f),
	}
	if f.code != "" {
		out["code"] = f.code
	}
	if f.label != "" {
		out["label"] = f.label
	}

	attrs := d.Attrs
	if attrs.Has(AttrNoLabel) {
		out["noLabel"] = f.noLabel
	}
	if attrs.Has(AttrRequired) {
		out["required"] = f.required
	}
	if attrs.Has(AttrUnique) {
		out["unique"] = f.unique
	}
	if attrs.Has(AttrLength) {
		if f.minLength != nil {
			out["minLength"] = strconv.Itoa(*f.minLength)
		}
		if f.maxLength != nil {
			out["maxLength"] = strconv.Itoa(*f.maxLength)
		}
	}
	if attrs.Has(AttrRange) {
		if f.minValue != nil {
			out["minValue"] = formatNumber(*f.minValue)
		}
		if f.maxValue != nil {
			out["maxValue"] = formatNumber(*f.maxValue)
		}
	}
	if attrs.Has(AttrDefaultValue) && f.defaultValue != nil {
		out["defaultValue"] = f.defaultValue
	}
	if attrs.Has(AttrDefaultExpression) && f.defaultExpression != "" {
		out["defaultExpression"] = f.defaultExpression
	}
	if attrs.Has(AttrOptions) && len(f.options) > 0 {
		opts := make(map[string]any, len(f.options))
		for i, label := range f.options {
			opts[label] = map[string]string{"label": label, "index": strconv.Itoa(i)}
		}
		out["options"] = opts
	}
	if attrs.Has(AttrExpression) && f.expression != "" {
		out["expression"] = f.expression
	}
	if attrs.Has(AttrDigit) {
		out["digit"] = f.digit
	}
	if attrs.Has(AttrProtocol) && f.protocol != "" {
		out["protocol"] = f.protocol
	}
	if attrs.Has(AttrFormat) && f.format != "" {
		out["format"] = f.format
	}
	if attrs.Has(AttrFields) && f.fields != nil {
		out["fields"] = f.fields
	}
	return json.Marshal(out)
}

// ErrNoProperties is returned by FieldsFromJSON for a document without a
// properties member.
var ErrNoProperties = errors.New("schema: form JSON has no properties")

// FieldsFromJSON reads a form fields document, {"properties": ...}, into
// fields keyed by code. properties may be an object keyed by code or an
// array. Entries without a code, such as labels, are skipped.
func FieldsFromJSON(data []byte) (map[string]*Field, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode form: %w", err)
	}
	props, ok := doc["properties"]
	if !ok || props == nil {
		return nil, ErrNoProperties
	}
	return fieldsFromProperties(props)
}

func fieldsFromProperties(raw any) (map[string]*Field, error) {
	var entries []any
	switch p := raw.(type) {
	case map[string]any:
		entries = make([]any, 0, len(p))
		for _, entry := range p {
			entries = append(entries, entry)
		}
	case []any:
		entries = p
	default:
		return nil, fmt.Errorf("properties must be an object or array, got %T", raw)
	}

	fields := make(map[string]*Field, len(entries))
	for _, entry := range entries {
		props, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if code, _ := props["code"].(string); code == "" {
			continue
		}
		f, err := NewField(props)
		if err != nil {
			return nil, err
		}
		fields[f.code] = f
	}
	return fields, nil
}
