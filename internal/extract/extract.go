// Package extract turns stored PDF and TXT bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrCorruptDocument     = errors.New("document could not be parsed")
	ErrUnsupportedEncoding = errors.New("unsupported text encoding")
	ErrUnsupportedType     = errors.New("unsupported file type")
)

// Extractor converts raw document bytes of the given file type to text.
type Extractor interface {
	Extract(ctx context.Context, fileType string, data []byte) (string, error)
}

// DocumentExtractor handles "pdf" and "txt" documents.
type DocumentExtractor struct{}

func New() *DocumentExtractor {
	return &DocumentExtractor{}
}

func (e *DocumentExtractor) Extract(ctx context.Context, fileType string, data []byte) (string, error) {
	switch fileType {
	case "pdf":
		return extractPDF(ctx, data)
	case "txt":
		return decodeText(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
}

// extractPDF joins the text of all non-blank pages with blank lines.
func extractPDF(ctx context.Context, data []byte) (string, error) {
	head := data[:min(len(data), 1024)]
	if !bytes.Contains(head, pdfMagic) {
		return "", fmt.Errorf("%w: missing PDF header", ErrCorruptDocument)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrCorruptDocument, i+1, err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

var (
	pdfMagic = []byte("%PDF-")
	utf16LE  = []byte{0xFF, 0xFE}
	utf16BE  = []byte{0xFE, 0xFF}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// decodeText accepts UTF-8 (with or without BOM) and BOM-marked UTF-16.
func decodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf16LE) || bytes.HasPrefix(data, utf16BE) {
		out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedEncoding, err)
		}
		data = out
	} else {
		data = bytes.TrimPrefix(data, utf8BOM)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedEncoding)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: text contains NUL bytes", ErrUnsupportedEncoding)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}
