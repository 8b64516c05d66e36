package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/artpar/kintone/domain/attachment"
)

// Codes of the system entries the records API adds to every record.
const (
	CodeID       = "$id"
	CodeRevision = "$revision"
)

// Record is a set of fields keyed by code. A Record is not safe for
// concurrent mutation.
type Record struct {
	fields map[string]*Field

	// rowID identifies a SUBTABLE row; empty for top-level records.
	rowID string
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]*Field)}
}

// AddField inserts f, replacing any field with the same code. A field
// without a code cannot be addressed in a record; adding one panics with
// a *ContractError.
func (r *Record) AddField(f *Field) {
	if f == nil {
		panic(contractf("", "AddField", "field is nil"))
	}
	if f.code == "" {
		panic(contractf(f.displayName(), "AddField", "field has no code"))
	}
	if r.fields == nil {
		r.fields = make(map[string]*Field)
	}
	r.fields[f.code] = f
}

// RemoveField drops the field with code and reports whether it existed.
func (r *Record) RemoveField(code string) bool {
	if _, ok := r.fields[code]; !ok {
		return false
	}
	delete(r.fields, code)
	return true
}

// Field returns the field with code, nil when absent.
func (r *Record) Field(code string) *Field {
	return r.fields[code]
}

// Codes returns the field codes in sorted order.
func (r *Record) Codes() []string {
	codes := make([]string, 0, len(r.fields))
	for code := range r.fields {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Fields returns the fields ordered by code.
func (r *Record) Fields() []*Field {
	codes := r.Codes()
	out := make([]*Field, len(codes))
	for i, code := range codes {
		out[i] = r.fields[code]
	}
	return out
}

func (r *Record) Len() int { return len(r.fields) }

// RowID is the id of a SUBTABLE row, empty for new rows and records.
func (r *Record) RowID() string { return r.rowID }

// fieldOfType returns the first field of t by code order.
func (r *Record) fieldOfType(t FieldType) *Field {
	for _, code := range r.Codes() {
		if f := r.fields[code]; f.typ == t {
			return f
		}
	}
	return nil
}

func (r *Record) RecordNumber() *Field { return r.fieldOfType(FieldTypeRecordNumber) }
func (r *Record) Creator() *Field      { return r.fieldOfType(FieldTypeCreator) }
func (r *Record) CreatedTime() *Field  { return r.fieldOfType(FieldTypeCreatedTime) }
func (r *Record) Modifier() *Field     { return r.fieldOfType(FieldTypeModifier) }
func (r *Record) UpdatedTime() *Field  { return r.fieldOfType(FieldTypeUpdatedTime) }

// ID returns the record id from the $id entry.
func (r *Record) ID() (int64, bool) {
	return r.systemInt(CodeID)
}

// Revision returns the record revision from the $revision entry.
func (r *Record) Revision() (int64, bool) {
	return r.systemInt(CodeRevision)
}

func (r *Record) systemInt(code string) (int64, bool) {
	f := r.fields[code]
	if f == nil || f.value == nil {
		return 0, false
	}
	switch v := f.value.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{fields: make(map[string]*Field, len(r.fields)), rowID: r.rowID}
	for code, f := range r.fields {
		c.fields[code] = f.Clone()
	}
	return c
}

// Equal reports whether both records hold the same codes with equal
// fields.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.rowID != o.rowID || len(r.fields) != len(o.fields) {
		return false
	}
	for code, f := range r.fields {
		if !f.Equal(o.fields[code]) {
			return false
		}
	}
	return true
}

// MarshalJSON emits the record JSON shape {code: {type, value}}.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.fields))
	for code, f := range r.fields {
		out[code] = map[string]any{"type": f.WireName(), "value": encodeValue(f)}
	}
	return json.Marshal(out)
}

// Payload returns the body of a create or update request,
// {code: {"value": v}}. Only settable fields with a value are included,
// plus SUBTABLE rows. Deleted attachments and ones without a file key are
// left out.
func (r *Record) Payload() map[string]any {
	out := make(map[string]any, len(r.fields))
	for code, f := range r.fields {
		if f.value == nil || (len(code) > 0 && code[0] == '$') {
			continue
		}
		switch {
		case f.typ == FieldTypeSubtable:
			rows := f.Rows()
			payload := make([]map[string]any, len(rows))
			for i, row := range rows {
				entry := map[string]any{"value": row.Payload()}
				if row.rowID != "" {
					entry["id"] = row.rowID
				}
				payload[i] = entry
			}
			out[code] = map[string]any{"value": payload}
		case f.typ == FieldTypeFile:
			keys := make([]map[string]string, 0)
			for _, file := range f.Files() {
				if file.Deleted() || file.FileKey() == "" {
					continue
				}
				keys = append(keys, map[string]string{"fileKey": file.FileKey()})
			}
			out[code] = map[string]any{"value": keys}
		case Describe(f.typ).Settable():
			out[code] = map[string]any{"value": encodeValue(f)}
		}
	}
	return out
}

// PendingFiles returns the attachments of every FILE field that still need
// an upload: not deleted and without a file key.
func (r *Record) PendingFiles() []*attachment.File {
	var pending []*attachment.File
	for _, f := range r.Fields() {
		if f.typ != FieldTypeFile {
			continue
		}
		for _, file := range f.Files() {
			if !file.Deleted() && file.FileKey() == "" {
				pending = append(pending, file)
			}
		}
	}
	return pending
}

// RecordFromJSON builds a record from {code: {type, value}} or from the
// record API's {"record": {...}} envelope. Values are decoded per type
// without SetValue's checks; unknown types become FieldTypeUnsupported.
func RecordFromJSON(data []byte) (*Record, error) {
	var doc map[string]any
	if err := unmarshalObject(data, &doc); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if inner, ok := unwrapEnvelope(doc, "record"); ok {
		doc = inner
	}
	return recordFromMap(doc)
}

// RecordsFromJSON builds records from a JSON array or from the records
// API's {"records": [...]} envelope, keeping their order.
func RecordsFromJSON(data []byte) ([]*Record, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	list, ok := doc.([]any)
	if !ok {
		m, isObject := doc.(map[string]any)
		if !isObject {
			return nil, fmt.Errorf("decode records: want array or object, got %T", doc)
		}
		if list, ok = m["records"].([]any); !ok {
			return nil, fmt.Errorf("decode records: object has no records array")
		}
	}

	records := make([]*Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode records: entry %d is %T, not an object", i, item)
		}
		r, err := recordFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("decode records: entry %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func unmarshalObject(data []byte, v *map[string]any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("empty document")
	}
	return json.Unmarshal(data, v)
}

// unwrapEnvelope returns doc[key] when doc is exactly {key: {...}} and the
// inner object is not itself a field entry.
func unwrapEnvelope(doc map[string]any, key string) (map[string]any, bool) {
	if len(doc) != 1 {
		return nil, false
	}
	inner, ok := doc[key].(map[string]any)
	if !ok {
		return nil, false
	}
	if _, isField := inner["type"].(string); isField {
		return nil, false
	}
	return inner, true
}

func recordFromMap(m map[string]any) (*Record, error) {
	r := NewRecord()
	for code, raw := range m {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q is %T, not an object", code, raw)
		}
		typ := FieldTypeUnsupported
		name, _ := entry["type"].(string)
		if name != "" {
			typ = TypeForWireName(name)
		}
		f := &Field{typ: typ, code: code}
		if typ == FieldTypeUnsupported {
			f.rawType = name
		}
		v, err := decodeValue(f, entry["value"])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", code, err)
		}
		f.value = v
		r.fields[code] = f
	}
	return r, nil
}
