// Package extract pulls plain text out of uploaded PDF and DOCX documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pavelanni/docexam/internal/model"
)

// Content types accepted for upload.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnsupportedFormat is returned for anything other than PDF or DOCX.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrUnreadable is returned for corrupt or password-protected files.
	ErrUnreadable = errors.New("file is corrupted or password protected")
	// ErrParse is returned when the file opened but its text could not be read.
	ErrParse = errors.New("failed to parse document")
)

// Format identifies a supported document format.
type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
)

// DefaultMaxUnpacked caps the total uncompressed size of a DOCX package.
const DefaultMaxUnpacked = 64 << 20

// Extractor reads document text.
type Extractor struct {
	maxUnpacked int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxUnpacked rejects DOCX packages whose parts unpack to more than n
// bytes. Zero disables the check.
func WithMaxUnpacked(n int64) Option {
	return func(e *Extractor) { e.maxUnpacked = n }
}

// New returns an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{maxUnpacked: DefaultMaxUnpacked}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the plain text of doc.
func (e *Extractor) Extract(ctx context.Context, doc model.Document) (string, error) {
	format := Detect(doc)
	slog.Debug("extracting document", "filename", doc.Filename, "format", format, "bytes", len(doc.Data))

	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(ctx, doc.Data)
	case FormatDOCX:
		text, err = e.extractDOCX(ctx, doc.Data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, describe(doc))
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Detect decides the document format from the declared content type or the
// filename extension. Content sniffing breaks the tie when the declared type
// is empty or generic.
func Detect(doc model.Document) Format {
	ct := baseContentType(doc.ContentType)
	switch ct {
	case ContentTypePDF:
		return FormatPDF
	case ContentTypeDOCX:
		return FormatDOCX
	}

	switch strings.ToLower(filepath.Ext(doc.Filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	}

	if ct == "" || ct == "application/octet-stream" || ct == "application/zip" {
		return sniff(doc.Data)
	}
	return FormatUnknown
}

func sniff(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}
	m := mimetype.Detect(data)
	switch {
	case m.Is(ContentTypePDF):
		return FormatPDF
	case m.Is(ContentTypeDOCX):
		return FormatDOCX
	}
	return FormatUnknown
}

func baseContentType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

func describe(doc model.Document) string {
	if doc.ContentType != "" {
		return doc.ContentType
	}
	if ext := filepath.Ext(doc.Filename); ext != "" {
		return ext
	}
	return "unknown"
}
