// Package extraction turns uploaded documents into plain text.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

var (
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrNoText          = errors.New("no text could be extracted from document")
)

// extensionTypes maps accepted file extensions to their canonical MIME type
var extensionTypes = map[string]string{
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".txt":  MimeText,
}

// TypeForExtension returns the canonical MIME type for a filename extension
func TypeForExtension(ext string) (string, bool) {
	mt, ok := extensionTypes[strings.ToLower(ext)]
	return mt, ok
}

// Extractor reads a stored document and returns its normalized text
type Extractor interface {
	Extract(ctx context.Context, path, mimeType string) (string, error)
}

type FileExtractor struct{}

func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

// Extract dispatches on mimeType, falling back to the path extension when the
// type is empty or a generic container type.
func (e *FileExtractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	kind := canonicalType(mimeType)
	if kind == "" {
		if mt, ok := TypeForExtension(filepath.Ext(path)); ok {
			kind = mt
		}
	}

	var (
		raw string
		err error
	)
	switch kind {
	case MimePDF:
		raw, err = extractPDF(ctx, path)
	case MimeDOCX:
		raw, err = extractDOCX(path)
	case MimeText:
		raw, err = extractText(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if err != nil {
		return "", err
	}

	text := Normalize(raw)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func canonicalType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case MimePDF, MimeDOCX, MimeText:
		return mt
	}
	return ""
}
