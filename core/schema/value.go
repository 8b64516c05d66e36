package schema

import (
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/artpar/kintone/domain/attachment"
)

// User references a kintone user, group or organization by code.
type User struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// Wire layouts of the temporal types.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DatetimeLayout = "2006-01-02T15:04:05Z"
)

// SetValue validates v against the field type and, on success, stores it.
// On failure the stored value is unchanged and a *ValidationError is
// returned.
//
// Accepted values per type:
//
//	SINGLE_LINE_TEXT, MULTI_LINE_TEXT, RICH_TEXT, LINK  string, length bounds checked
//	NUMBER                                            any Go number or json.Number, stored as float64
//	RADIO_BUTTON, DROP_DOWN                           string from options
//	CHECK_BOX, MULTI_SELECT                           []string from options
//	CATEGORY                                          []string
//	USER_SELECT                                       []User, each with a code
//	FILE                                              []*attachment.File, copied in
//	DATE, TIME, DATETIME                              time.Time or a string in the wire layout
//
// Every other type is server-assigned or structural and rejects SetValue.
func (f *Field) SetValue(v any) error {
	norm, verr := normalize(f, v)
	if verr != nil {
		return verr
	}
	f.value = norm
	return nil
}

// CheckValue reports whether f.SetValue(v) would succeed, without
// changing f.
func CheckValue(f *Field, v any) error {
	if _, verr := normalize(f, v); verr != nil {
		return verr
	}
	return nil
}

func normalize(f *Field, v any) (any, *ValidationError) {
	d := Describe(f.typ)
	if !d.Settable() {
		return nil, invalid(f, ConstraintSettable, v, "%s fields are not settable", d.WireName)
	}
	if v == nil {
		return nil, invalid(f, ConstraintType, v, "value must not be nil")
	}

	switch d.Shape {
	case ShapeText:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a string, got %T", v)
		}
		if verr := checkLength(f, s); verr != nil {
			return nil, verr
		}
		return s, nil

	case ShapeNumber:
		n, err := toFloat64(v)
		if err != nil {
			return nil, invalid(f, ConstraintType, v, "must be a number, got %T", v)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, invalid(f, ConstraintType, v, "must be a finite number")
		}
		if verr := checkRange(f, n); verr != nil {
			return nil, verr
		}
		return n, nil

	case ShapeOption:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a string, got %T", v)
		}
		if verr := checkOptions(f, s); verr != nil {
			return nil, verr
		}
		return s, nil

	case ShapeOptionList:
		strs, ok := toStrings(v)
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a list of strings, got %T", v)
		}
		if verr := checkOptions(f, strs...); verr != nil {
			return nil, verr
		}
		return strs, nil

	case ShapeUsers:
		users, ok := toUsers(v)
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a list of users, got %T", v)
		}
		for _, u := range users {
			if u.Code == "" {
				return nil, invalid(f, ConstraintUserCode, v, "every user needs a code")
			}
		}
		return users, nil

	case ShapeFiles:
		files, ok := v.([]*attachment.File)
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a list of files, got %T", v)
		}
		out := make([]*attachment.File, len(files))
		for i, file := range files {
			if file == nil {
				return nil, invalid(f, ConstraintType, v, "file %d is nil", i)
			}
			out[i] = file.Clone()
		}
		return out, nil

	case ShapeDate:
		t, ok := toTime(v, DateLayout)
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a date (%s), got %v", DateLayout, v)
		}
		return dateOf(t), nil

	case ShapeTime:
		t, ok := toTime(v, TimeLayout, "15:04:05")
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a time (%s), got %v", TimeLayout, v)
		}
		return clockOf(t), nil

	case ShapeDatetime:
		t, ok := toTime(v, time.RFC3339)
		if !ok {
			return nil, invalid(f, ConstraintType, v, "must be a datetime (RFC 3339), got %v", v)
		}
		return t.UTC().Truncate(time.Second), nil
	}
	return nil, invalid(f, ConstraintSettable, v, "%s fields are not settable", d.WireName)
}

func toStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		if s == nil {
			return []string{}, true
		}
		return slices.Clone(s), true
	case []any:
		return stringsFromAny(s)
	}
	return nil, false
}

func toUsers(v any) ([]User, bool) {
	switch u := v.(type) {
	case []User:
		return slices.Clone(u), true
	case []*User:
		out := make([]User, 0, len(u))
		for _, p := range u {
			if p == nil {
				return nil, false
			}
			out = append(out, *p)
		}
		return out, true
	case []map[string]any:
		out := make([]User, 0, len(u))
		for _, m := range u {
			user, ok := userFromMap(m)
			if !ok {
				return nil, false
			}
			out = append(out, user)
		}
		return out, true
	case []any:
		out := make([]User, 0, len(u))
		for _, item := range u {
			var user User
			switch x := item.(type) {
			case User:
				user = x
			case map[string]any:
				var ok bool
				if user, ok = userFromMap(x); !ok {
					return nil, false
				}
			default:
				return nil, false
			}
			out = append(out, user)
		}
		return out, true
	}
	return nil, false
}

func userFromMap(m map[string]any) (User, bool) {
	code, ok := m["code"].(string)
	if !ok {
		return User{}, false
	}
	name, _ := m["name"].(string)
	return User{Code: code, Name: name}, true
}

func toTime(v any, layouts ...string) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		for _, layout := range layouts {
			if p, err := time.Parse(layout, t); err == nil {
				return p, true
			}
		}
	}
	return time.Time{}, false
}

// dateOf keeps the calendar date of t as seen in t's own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// clockOf keeps hour and minute, the precision of a TIME field.
func clockOf(t time.Time) time.Time {
	return time.Date(0, 1, 1, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		return slices.Clone(x)
	case []User:
		return slices.Clone(x)
	case []*attachment.File:
		out := make([]*attachment.File, len(x))
		for i, file := range x {
			out[i] = file.Clone()
		}
		return out
	case []*Record:
		out := make([]*Record, len(x))
		for i, row := range x {
			out[i] = row.Clone()
		}
		return out
	}
	return v
}

// Text returns a string value, "" otherwise.
func (f *Field) Text() string {
	s, _ := f.value.(string)
	return s
}

// Number returns a NUMBER value.
func (f *Field) Number() (float64, bool) {
	n, ok := f.value.(float64)
	return n, ok
}

// Strings returns the selection of a CHECK_BOX, MULTI_SELECT or CATEGORY
// field.
func (f *Field) Strings() []string {
	s, _ := f.value.([]string)
	return slices.Clone(s)
}

// Users returns the users of a USER_SELECT or STATUS_ASSIGNEE field.
func (f *Field) Users() []User {
	u, _ := f.value.([]User)
	return slices.Clone(u)
}

// User returns the user of a CREATOR or MODIFIER field.
func (f *Field) User() (User, bool) {
	u, ok := f.value.(User)
	return u, ok
}

// Time returns the value of a temporal field.
func (f *Field) Time() (time.Time, bool) {
	t, ok := f.value.(time.Time)
	return t, ok
}

// Rows returns the rows of a SUBTABLE field.
func (f *Field) Rows() []*Record {
	rows, _ := f.value.([]*Record)
	return slices.Clone(rows)
}

// Files returns the attachments of a FILE field, deleted ones included.
func (f *Field) Files() []*attachment.File {
	files, _ := f.value.([]*attachment.File)
	return slices.Clone(files)
}

// FileAt returns the i-th attachment, nil when out of range.
func (f *Field) FileAt(i int) *attachment.File {
	files, _ := f.value.([]*attachment.File)
	if i < 0 || i >= len(files) {
		return nil
	}
	return files[i]
}

// AddFile appends a copy of file to a FILE field.
func (f *Field) AddFile(file *attachment.File) error {
	if f.typ != FieldTypeFile {
		return contractf(f.code, "AddFile", "field type %s holds no files", f.typ)
	}
	if file == nil {
		return invalid(f, ConstraintType, nil, "file is nil")
	}
	files, _ := f.value.([]*attachment.File)
	f.value = append(slices.Clone(files), file.Clone())
	return nil
}

// DeleteFile marks the attachment with file's key, or file itself, as
// deleted. It reports whether one was found.
func (f *Field) DeleteFile(file *attachment.File) bool {
	if file == nil {
		return false
	}
	files, _ := f.value.([]*attachment.File)
	for _, held := range files {
		if held == file || (file.FileKey() != "" && held.FileKey() == file.FileKey()) {
			held.SetDeleted(true)
			return true
		}
	}
	return false
}

// DeleteFileAt marks the i-th attachment deleted.
func (f *Field) DeleteFileAt(i int) bool {
	file := f.FileAt(i)
	if file == nil {
		return false
	}
	file.SetDeleted(true)
	return true
}

// Equal compares type, code and value. Schema attributes are not
// compared, and files are compared by their wire metadata.
func (f *Field) Equal(o *Field) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.typ == o.typ && f.code == o.code && valuesEqual(f.value, o.value)
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []*attachment.File:
		y, ok := b.([]*attachment.File)
		return ok && slices.EqualFunc(x, y, (*attachment.File).WireEqual)
	case []*Record:
		y, ok := b.([]*Record)
		return ok && slices.EqualFunc(x, y, (*Record).Equal)
	}
	return reflect.DeepEqual(a, b)
}
