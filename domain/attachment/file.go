// Package attachment models a file attached to a kintone FILE field.
package attachment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoFileKey is returned when an upload response carries no fileKey.
var ErrNoFileKey = errors.New("attachment: response has no fileKey")

// File is a value object: attachment metadata, optional content and the
// remote key an upload assigns. Files are copied, never shared, between
// fields.
type File struct {
	name        string
	contentType string
	size        int64
	data        []byte
	fileKey     string
	deleted     bool
}

// New returns a local file ready to upload. Size is taken from data.
func New(data []byte, name, contentType string) *File {
	f := &File{name: name, contentType: contentType}
	if data != nil {
		f.data = bytes.Clone(data)
		f.size = int64(len(data))
	}
	return f
}

// FromProperties builds a File from the metadata object the records API
// returns for each attachment: contentType, fileKey, name and size.
func FromProperties(props map[string]any) *File {
	f := &File{}
	if s, ok := props["name"].(string); ok {
		f.name = s
	}
	if s, ok := props["contentType"].(string); ok {
		f.contentType = s
	}
	if s, ok := props["fileKey"].(string); ok {
		f.fileKey = s
	}
	switch v := props["size"].(type) {
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			f.size = n
		}
	case float64:
		f.size = int64(v)
	case int:
		f.size = int64(v)
	case int64:
		f.size = v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			f.size = n
		}
	}
	return f
}

func (f *File) Name() string        { return f.name }
func (f *File) ContentType() string { return f.contentType }
func (f *File) Size() int64         { return f.size }
func (f *File) FileKey() string     { return f.fileKey }
func (f *File) Deleted() bool       { return f.deleted }

// Data returns the file content, nil for metadata-only files.
func (f *File) Data() []byte { return f.data }

// SetData replaces the content and updates the size.
func (f *File) SetData(data []byte) {
	f.data = bytes.Clone(data)
	f.size = int64(len(data))
}

// SetDeleted marks the file for removal on the next record update.
func (f *File) SetDeleted(deleted bool) { f.deleted = deleted }

func (f *File) SetFileKey(key string) { f.fileKey = key }

// SetFileKeyFromJSON reads the {"fileKey": "..."} body of an upload
// response.
func (f *File) SetFileKeyFromJSON(data []byte) error {
	var resp struct {
		FileKey string `json:"fileKey"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode upload response: %w", err)
	}
	if resp.FileKey == "" {
		return ErrNoFileKey
	}
	f.fileKey = resp.FileKey
	return nil
}

// Clone returns a deep copy.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	c := *f
	if f.data != nil {
		c.data = bytes.Clone(f.data)
	}
	return &c
}

// WireEqual compares the metadata the records API carries: name, content
// type, size and file key.
func (f *File) WireEqual(o *File) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.name == o.name &&
		f.contentType == o.contentType &&
		f.size == o.size &&
		f.fileKey == o.fileKey
}

// Equal compares metadata and content.
func (f *File) Equal(o *File) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.name == o.name &&
		f.contentType == o.contentType &&
		f.size == o.size &&
		f.fileKey == o.fileKey &&
		f.deleted == o.deleted &&
		bytes.Equal(f.data, o.data)
}

type wireFile struct {
	ContentType string `json:"contentType"`
	FileKey     string `json:"fileKey"`
	Name        string `json:"name"`
	Size        string `json:"size"`
}

// MarshalJSON emits the metadata in the records API layout; size is a
// decimal string there.
func (f *File) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFile{
		ContentType: f.contentType,
		FileKey:     f.fileKey,
		Name:        f.name,
		Size:        strconv.FormatInt(f.size, 10),
	})
}

func (f *File) UnmarshalJSON(data []byte) error {
	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return err
	}
	*f = *FromProperties(props)
	return nil
}
