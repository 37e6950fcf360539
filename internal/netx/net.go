// Package netx holds HTTP helpers for the operator console: multipart body
// assembly and response status checks.
package netx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
)

// FilePart is one file attached to a multipart body under the form key Role.
type FilePart struct {
	Role string
	Path string
}

// StatusError is returned when the server answers with an unexpected code.
// Message carries the "error" field of a JSON error body when present.
type StatusError struct {
	Code    int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", http.StatusText(e.Code), e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// MultipartBody encodes fields and files into a multipart/form-data body.
// Fields are written in key order so the output is stable.
func MultipartBody(fields map[string]string, files []FilePart) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	for _, f := range files {
		if err := addFile(mw, f); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func addFile(mw *multipart.Writer, f FilePart) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer src.Close()

	part, err := mw.CreateFormFile(f.Role, filepath.Base(f.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy %s: %w", f.Path, err)
	}
	return nil
}

// CheckStatus returns nil when resp.StatusCode is one of want, otherwise a
// *StatusError built from the body. The body is consumed on error.
func CheckStatus(resp *http.Response, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{Code: resp.StatusCode, Body: b}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil {
		se.Message = payload.Error
	}
	return se
}
