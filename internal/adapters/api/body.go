package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// Body is a request payload. Construct one with JSON or a Form.
type Body interface {
	encode() (io.Reader, string, error)
}

type jsonBody struct{ v any }

// JSON encodes v as application/json.
func JSON(v any) Body { return jsonBody{v: v} }

func (b jsonBody) encode() (io.Reader, string, error) {
	data, err := json.Marshal(b.v)
	if err != nil {
		return nil, "", fmt.Errorf("encode json body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// File is one uploaded file of a multipart form.
type File struct {
	Field    string
	Filename string
	Content  []byte
}

type formField struct {
	name  string
	value string
}

// Form is a multipart/form-data payload. Fields keep insertion order and a name may
// repeat, which is how id lists are sent.
type Form struct {
	fields []formField
	files  []File
}

// NewForm returns an empty multipart form.
func NewForm() *Form { return &Form{} }

// Add appends a text field.
func (f *Form) Add(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// AddAll appends one field per value under the same name.
func (f *Form) AddAll(name string, values []string) *Form {
	for _, v := range values {
		f.Add(name, v)
	}
	return f
}

// AddFile appends a file part.
func (f *Form) AddFile(file File) *Form {
	f.files = append(f.files, file)
	return f
}

// Values returns the text values recorded for name.
func (f *Form) Values(name string) []string {
	var out []string
	for _, fld := range f.fields {
		if fld.name == name {
			out = append(out, fld.value)
		}
	}
	return out
}

// Files returns the file parts.
func (f *Form) Files() []File { return append([]File(nil), f.files...) }

func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, fld := range f.fields {
		if err := w.WriteField(fld.name, fld.value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", fld.name, err)
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", file.Field, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", fmt.Errorf("write form file %s: %w", file.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Encode renders b exactly as Client would send it.
func Encode(b Body) ([]byte, string, error) {
	r, ct, err := b.encode()
	if err != nil {
		return nil, "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read encoded body: %w", err)
	}
	return data, ct, nil
}
