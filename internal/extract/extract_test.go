package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pavelanni/docexam/internal/model"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body + `</w:body></w:document>`,
	}
	for _, name := range []string{"[Content_Types].xml", "word/document.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// buildPDF writes a single-page PDF with a correct xref table.
func buildPDF(t *testing.T, text string) []byte {
	t.Helper()
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	docx := buildDOCX(t, `<w:p><w:r><w:t>x</w:t></w:r></w:p>`)
	pdf := buildPDF(t, "x")

	tests := []struct {
		name string
		doc  model.Document
		want Format
	}{
		{"pdf content type", model.Document{Filename: "a.bin", ContentType: "application/pdf"}, FormatPDF},
		{"docx content type", model.Document{Filename: "a", ContentType: ContentTypeDOCX}, FormatDOCX},
		{"content type with params", model.Document{ContentType: "application/pdf; charset=binary"}, FormatPDF},
		{"pdf extension", model.Document{Filename: "Notes.PDF", ContentType: "text/plain"}, FormatPDF},
		{"docx extension", model.Document{Filename: "notes.docx"}, FormatDOCX},
		{"sniffed pdf", model.Document{Filename: "upload", ContentType: "application/octet-stream", Data: pdf}, FormatPDF},
		{"sniffed docx", model.Document{Filename: "upload", Data: docx}, FormatDOCX},
		{"plain text", model.Document{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hello")}, FormatUnknown},
		{"legacy doc", model.Document{Filename: "notes.doc", ContentType: "application/msword"}, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.doc); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractDOCX(t *testing.T) {
	body := `<w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>part</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Третий абзац</w:t></w:r></w:p>`
	doc := model.Document{Filename: "lecture.docx", Data: buildDOCX(t, body)}

	got, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "First paragraph\nSecond part\ttabbed\nТретий абзац"
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractPDF(t *testing.T) {
	doc := model.Document{Filename: "lecture.pdf", ContentType: "application/pdf", Data: buildPDF(t, "Cells divide by mitosis")}

	got, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Cells divide by mitosis") {
		t.Errorf("Extract() = %q, want the page text", got)
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  model.Document
		want error
	}{
		{"unsupported", model.Document{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hello")}, ErrUnsupportedFormat},
		{"corrupt pdf", model.Document{Filename: "broken.pdf", Data: []byte("%PDF-1.4\nnot really a pdf")}, ErrUnreadable},
		{"corrupt docx", model.Document{Filename: "broken.docx", Data: []byte("PK not a zip")}, ErrUnreadable},
		{"docx without body", model.Document{Filename: "empty.docx", Data: emptyZip(t)}, ErrUnreadable},
		{"malformed xml", model.Document{Filename: "bad.docx", Data: buildDOCX(t, `<w:p><w:t>unclosed`)}, ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Extract(context.Background(), tt.doc)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := model.Document{Filename: "lecture.docx", Data: buildDOCX(t, `<w:p><w:r><w:t>text</w:t></w:r></w:p>`)}
	if _, err := New().Extract(ctx, doc); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func emptyZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := w.Write([]byte("nothing here")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDOCXTable(t *testing.T) {
	body := `<w:p><w:r><w:t>Before</w:t></w:r></w:p>` +
		`<w:tbl><w:tr>` +
		`<w:tc><w:p><w:r><w:t>Organelle</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc>` +
		`</w:tr><w:tr>` +
		`<w:tc><w:p><w:r><w:t>Ribosome</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>Protein</w:t></w:r></w:p><w:p><w:r><w:t>synthesis</w:t></w:r></w:p></w:tc>` +
		`</w:tr></w:tbl>`
	got, err := New().Extract(context.Background(), model.Document{Filename: "table.docx", Data: buildDOCX(t, body)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Before\nOrganelle\tRole\nRibosome\tProtein synthesis"
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractDOCXSizeLimit(t *testing.T) {
	// Highly repetitive text compresses to a small fraction of its size.
	para := `<w:p><w:r><w:t>` + strings.Repeat("a", 4096) + `</w:t></w:r></w:p>`
	data := buildDOCX(t, strings.Repeat(para, 256))
	doc := model.Document{Filename: "bomb.docx", Data: data}

	if len(data) > 64<<10 {
		t.Fatalf("fixture is %d bytes, expected it to compress", len(data))
	}
	if _, err := New(WithMaxUnpacked(512<<10)).Extract(context.Background(), doc); !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}

	got, err := New(WithMaxUnpacked(0)).Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract without limit: %v", err)
	}
	if len(got) < 1<<20 {
		t.Errorf("extracted %d bytes, want the full text", len(got))
	}
}
