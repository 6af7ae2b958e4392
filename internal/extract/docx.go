package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

const documentPart = "word/document.xml"

func (e *Extractor) extractDOCX(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	// archive/zip refuses to inflate past the declared sizes, so the header
	// totals bound what parsing can allocate.
	var (
		total   uint64
		hasBody bool
	)
	for _, f := range zr.File {
		total += f.UncompressedSize64
		if f.Name == documentPart {
			hasBody = true
		}
	}
	if !hasBody {
		return "", fmt.Errorf("%w: missing %s", ErrUnreadable, documentPart)
	}
	if e.maxUnpacked > 0 && total > uint64(e.maxUnpacked) {
		return "", fmt.Errorf("%w: unpacks to %d bytes, limit is %d", ErrUnreadable, total, e.maxUnpacked)
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrParse, err)
	}
	return bodyText(ctx, doc.Document.Body.Items)
}

// bodyText joins paragraph and table text, one block per line.
func bodyText(ctx context.Context, items []any) (string, error) {
	var b strings.Builder
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch block := it.(type) {
		case *docx.Paragraph:
			b.WriteString(block.String())
		case *docx.Table:
			writeTable(&b, block)
		default:
			continue
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// writeTable writes one line per row with cells separated by tabs.
func writeTable(b *strings.Builder, t *docx.Table) {
	for i, row := range t.TableRows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range row.TableCells {
			if j > 0 {
				b.WriteByte('\t')
			}
			for k, p := range cell.Paragraphs {
				if k > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(p.String())
			}
		}
	}
}
