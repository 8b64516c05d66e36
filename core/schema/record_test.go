package schema

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/artpar/kintone/domain/attachment"
)

const recordJSON = `{
  "$id": {"type": "__ID__", "value": "42"},
  "$revision": {"type": "__REVISION__", "value": "3"},
  "num": {"type": "RECORD_NUMBER", "value": "APP-42"},
  "title": {"type": "SINGLE_LINE_TEXT", "value": "hello"},
  "amount": {"type": "NUMBER", "value": "12.5"},
  "empty": {"type": "NUMBER", "value": ""},
  "tags": {"type": "CHECK_BOX", "value": ["a", "b"]},
  "owner": {"type": "USER_SELECT", "value": [{"code": "alice", "name": "Alice"}]},
  "author": {"type": "CREATOR", "value": {"code": "bob", "name": "Bob"}},
  "created": {"type": "CREATED_TIME", "value": "2024-03-01T09:00:00Z"},
  "updated": {"type": "UPDATED_TIME", "value": "2024-03-02T10:30:00Z"},
  "editor": {"type": "MODIFIER", "value": {"code": "carol", "name": "Carol"}},
  "due": {"type": "DATE", "value": "2024-04-01"},
  "at": {"type": "TIME", "value": "13:45"},
  "docs": {"type": "FILE", "value": [{"contentType": "text/plain", "fileKey": "k1", "name": "a.txt", "size": "5"}]},
  "items": {"type": "SUBTABLE", "value": [
    {"id": "100", "value": {"qty": {"type": "NUMBER", "value": "2"}, "name": {"type": "SINGLE_LINE_TEXT", "value": "pen"}}}
  ]},
  "calc": {"type": "CALC", "value": "25"},
  "mystery": {"type": "BRAND_NEW", "value": {"x": 1}}
}`

func TestRecordFromJSON(t *testing.T) {
	r, err := RecordFromJSON([]byte(recordJSON))
	if err != nil {
		t.Fatalf("RecordFromJSON() error = %v", err)
	}

	if id, ok := r.ID(); !ok || id != 42 {
		t.Errorf("ID() = %d, %v, want 42", id, ok)
	}
	if rev, ok := r.Revision(); !ok || rev != 3 {
		t.Errorf("Revision() = %d, %v, want 3", rev, ok)
	}
	if got := r.RecordNumber().Text(); got != "APP-42" {
		t.Errorf("RecordNumber() = %q", got)
	}
	if u, _ := r.Creator().User(); u.Code != "bob" {
		t.Errorf("Creator() = %+v", u)
	}
	if u, _ := r.Modifier().User(); u.Code != "carol" {
		t.Errorf("Modifier() = %+v", u)
	}
	if ts, _ := r.CreatedTime().Time(); !ts.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedTime() = %v", ts)
	}
	if ts, _ := r.UpdatedTime().Time(); ts.Minute() != 30 {
		t.Errorf("UpdatedTime() = %v", ts)
	}
	if n, ok := r.Field("amount").Number(); !ok || n != 12.5 {
		t.Errorf("amount = %v, %v", n, ok)
	}
	if r.Field("empty").HasValue() {
		t.Error("empty NUMBER decoded to a value")
	}
	if got := r.Field("tags").Strings(); len(got) != 2 || got[1] != "b" {
		t.Errorf("tags = %v", got)
	}
	if got := r.Field("owner").Users(); len(got) != 1 || got[0].Name != "Alice" {
		t.Errorf("owner = %v", got)
	}
	if f := r.Field("docs").FileAt(0); f == nil || f.FileKey() != "k1" || f.Size() != 5 {
		t.Errorf("docs[0] = %+v", f)
	}
	rows := r.Field("items").Rows()
	if len(rows) != 1 || rows[0].RowID() != "100" {
		t.Fatalf("items rows = %v", rows)
	}
	if n, _ := rows[0].Field("qty").Number(); n != 2 {
		t.Errorf("items[0].qty = %v", n)
	}
	if m := r.Field("mystery"); m.Type() != FieldTypeUnsupported || m.WireName() != "BRAND_NEW" {
		t.Errorf("mystery = %v %q", m.Type(), m.WireName())
	}
}

func TestRecordFromJSON_Envelope(t *testing.T) {
	r, err := RecordFromJSON([]byte(`{"record": {"title": {"type": "SINGLE_LINE_TEXT", "value": "x"}}}`))
	if err != nil {
		t.Fatalf("RecordFromJSON() error = %v", err)
	}
	if r.Len() != 1 || r.Field("title").Text() != "x" {
		t.Errorf("envelope not unwrapped: codes %v", r.Codes())
	}

	// A field that happens to be called "record" is not an envelope.
	r, err = RecordFromJSON([]byte(`{"record": {"type": "SINGLE_LINE_TEXT", "value": "y"}}`))
	if err != nil {
		t.Fatalf("RecordFromJSON() error = %v", err)
	}
	if r.Field("record") == nil || r.Field("record").Text() != "y" {
		t.Errorf("field named record was unwrapped: codes %v", r.Codes())
	}
}

func TestRecordFromJSON_Errors(t *testing.T) {
	for _, data := range []string{``, `[]`, `{"title": "bare"}`, `{"n": {"type": "NUMBER", "value": "x"}}`} {
		if _, err := RecordFromJSON([]byte(data)); err == nil {
			t.Errorf("RecordFromJSON(%q) should fail", data)
		}
	}
}

func TestRecordsFromJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"array", `[{"a": {"type": "SINGLE_LINE_TEXT", "value": "1"}}, {"a": {"type": "SINGLE_LINE_TEXT", "value": "2"}}]`},
		{"envelope", `{"records": [{"a": {"type": "SINGLE_LINE_TEXT", "value": "1"}}, {"a": {"type": "SINGLE_LINE_TEXT", "value": "2"}}], "totalCount": "2"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := RecordsFromJSON([]byte(tt.data))
			if err != nil {
				t.Fatalf("RecordsFromJSON() error = %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("got %d records, want 2", len(records))
			}
			for i, want := range []string{"1", "2"} {
				if got := records[i].Field("a").Text(); got != want {
					t.Errorf("records[%d].a = %q, want %q", i, got, want)
				}
			}
		})
	}

	if _, err := RecordsFromJSON([]byte(`{"record": {}}`)); err == nil {
		t.Error("object without records should fail")
	}
}

func buildRecord(t *testing.T) *Record {
	t.Helper()
	r := NewRecord()
	set := func(props map[string]any, v any) {
		f := MustNewField(props)
		if v != nil {
			if err := f.SetValue(v); err != nil {
				t.Fatalf("SetValue(%s, %v) error = %v", f.Code(), v, err)
			}
		}
		r.AddField(f)
	}

	doc := attachment.New(nil, "a.txt", "text/plain")
	doc.SetFileKey("k1")

	set(map[string]any{"type": "SINGLE_LINE_TEXT", "code": "title"}, "hello \"world\"")
	set(map[string]any{"type": "NUMBER", "code": "amount"}, 1234.5)
	set(map[string]any{"type": "CHECK_BOX", "code": "tags"}, []string{"a"})
	set(map[string]any{"type": "MULTI_SELECT", "code": "multi"}, []string{})
	set(map[string]any{"type": "USER_SELECT", "code": "owner"}, []User{{Code: "alice", Name: "Alice"}})
	set(map[string]any{"type": "DATE", "code": "due"}, "2024-04-01")
	set(map[string]any{"type": "TIME", "code": "at"}, "13:45")
	set(map[string]any{"type": "DATETIME", "code": "when"}, "2024-04-01T08:15:00Z")
	set(map[string]any{"type": "FILE", "code": "docs"}, []*attachment.File{doc})
	set(map[string]any{"type": "RICH_TEXT", "code": "body"}, nil)
	return r
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	r := buildRecord(t)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	back, err := RecordFromJSON(data)
	if err != nil {
		t.Fatalf("RecordFromJSON error = %v\n%s", err, data)
	}
	if !back.Equal(r) {
		t.Errorf("round trip changed the record\n got codes %v\nwant codes %v\n%s", back.Codes(), r.Codes(), data)
	}
}

func TestRecord_JSONRoundTripLocalFile(t *testing.T) {
	att := MustNewField(map[string]any{"type": "FILE", "code": "att"})
	if err := att.SetValue([]*attachment.File{attachment.New([]byte("hi"), "a.txt", "text/plain")}); err != nil {
		t.Fatalf("SetValue error = %v", err)
	}
	r := NewRecord()
	r.AddField(att)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	want := `{"att":{"type":"FILE","value":[{"contentType":"text/plain","fileKey":"","name":"a.txt","size":"2"}]}}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
	back, err := RecordFromJSON(data)
	if err != nil {
		t.Fatalf("RecordFromJSON error = %v", err)
	}
	if !back.Equal(r) {
		t.Errorf("round trip changed a record holding a local file\n%s", data)
	}
}

func TestRecord_AddFieldReplaces(t *testing.T) {
	r := NewRecord()
	first := MustNewField(map[string]any{"type": "SINGLE_LINE_TEXT", "code": "x"})
	second := MustNewField(map[string]any{"type": "NUMBER", "code": "x"})
	r.AddField(first)
	r.AddField(second)

	if r.Len() != 1 || r.Field("x") != second {
		t.Errorf("AddField did not replace by code: len %d", r.Len())
	}
	if r.RecordNumber() != nil || r.Creator() != nil {
		t.Error("system accessors should be nil without system fields")
	}
	if _, ok := r.ID(); ok {
		t.Error("ID() ok without $id")
	}
}

func TestRecord_AddFieldWithoutCode(t *testing.T) {
	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, ErrContractViolation) {
			t.Errorf("recover() = %v, want a contract violation", rec)
		}
	}()
	NewRecord().AddField(MustNewField(map[string]any{"type": "LABEL", "label": "heading"}))
}

func TestRecord_Payload(t *testing.T) {
	r := buildRecord(t)

	docs := r.Field("docs")
	pending := attachment.New([]byte("x"), "b.txt", "text/plain")
	if err := docs.AddFile(pending); err != nil {
		t.Fatalf("AddFile error = %v", err)
	}
	gone := attachment.New(nil, "c.txt", "text/plain")
	gone.SetFileKey("k3")
	if err := docs.AddFile(gone); err != nil {
		t.Fatalf("AddFile error = %v", err)
	}
	docs.DeleteFileAt(2)

	sys, err := RecordFromJSON([]byte(`{"$id": {"type": "__ID__", "value": "1"}, "num": {"type": "RECORD_NUMBER", "value": "1"}}`))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range sys.Fields() {
		r.AddField(f)
	}

	data, err := json.Marshal(r.Payload())
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	var got map[string]map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}

	for _, code := range []string{"$id", "num", "body"} {
		if _, ok := got[code]; ok {
			t.Errorf("payload has %s", code)
		}
	}
	if got["amount"]["value"] != "1234.5" {
		t.Errorf("amount = %v", got["amount"]["value"])
	}
	if got["when"]["value"] != "2024-04-01T08:15:00Z" {
		t.Errorf("when = %v", got["when"]["value"])
	}
	files, _ := got["docs"]["value"].([]any)
	if len(files) != 1 {
		t.Fatalf("docs payload = %v, want only the uploaded, kept file", got["docs"]["value"])
	}
	if key := files[0].(map[string]any)["fileKey"]; key != "k1" {
		t.Errorf("docs[0].fileKey = %v", key)
	}

	if p := r.PendingFiles(); len(p) != 1 || p[0].Name() != "b.txt" {
		t.Errorf("PendingFiles() = %v", p)
	}
}

func TestRecord_PayloadSubtable(t *testing.T) {
	r, err := RecordFromJSON([]byte(`{"items": {"type": "SUBTABLE", "value": [
	  {"id": "7", "value": {"qty": {"type": "NUMBER", "value": "2"}, "sum": {"type": "CALC", "value": "4"}}}
	]}}`))
	if err != nil {
		t.Fatal(err)
	}

	data, _ := json.Marshal(r.Payload())
	want := `{"items":{"value":[{"id":"7","value":{"qty":{"value":"2"}}}]}}`
	if string(data) != want {
		t.Errorf("Payload() = %s, want %s", data, want)
	}
}
