package rag

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxUploadBytes caps how much of an uploaded file is read.
const MaxUploadBytes = 20 << 20

var ErrUnsupportedType = errors.New("unsupported file type")

var fileTypes = map[string]string{
	".txt":      "text",
	".md":       "text",
	".markdown": "text",
	".log":      "text",
	".csv":      "csv",
	".json":     "json",
}

// FileType maps a filename to the type label stored with the document.
func FileType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ft, ok := fileTypes[ext]
	if !ok {
		if ext == "" {
			ext = "(none)"
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	return ft, nil
}

// ExtractText reads r and returns its text content for the given file type.
// JSON is re-indented so that chunk boundaries fall on line breaks.
func ExtractText(fileType string, r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if fileType == "json" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			raw = buf.Bytes()
		}
	}
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, []byte("�"))
	}
	return string(raw), nil
}
