package apiclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// Multipart is a multipart/form-data body. It is encoded once per call and
// replayed unchanged on every retry.
type Multipart struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name, value string
}

type formFile struct {
	field, filename string
	open            func() (io.ReadCloser, error)
}

// NewMultipart creates an empty multipart body.
func NewMultipart() *Multipart {
	return &Multipart{}
}

// AddField appends a plain form field.
func (m *Multipart) AddField(name, value string) *Multipart {
	m.fields = append(m.fields, formField{name: name, value: value})
	return m
}

// AddFile appends a file part whose contents are read from open.
func (m *Multipart) AddFile(field, filename string, open func() (io.ReadCloser, error)) *Multipart {
	m.files = append(m.files, formFile{field: field, filename: filename, open: open})
	return m
}

func (m *Multipart) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range m.fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	for _, f := range m.files {
		if err := copyFile(w, f); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func copyFile(w *multipart.Writer, f formFile) error {
	src, err := f.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.filename, err)
	}
	defer src.Close()

	part, err := w.CreateFormFile(f.field, f.filename)
	if err != nil {
		return fmt.Errorf("create part %s: %w", f.field, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy %s: %w", f.filename, err)
	}
	return nil
}
