// Package extract turns pasted text and uploaded files into plain email text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"triage_server/core/domain"
)

// ErrUnsupported marks a file whose extension is neither .txt nor .pdf.
// Callers skip such files without reporting them.
var ErrUnsupported = errors.New("unsupported file type")

// Kind distinguishes the two input variants.
type Kind int

const (
	KindPastedText Kind = iota
	KindFile
)

// Item is one unit of input before extraction.
type Item struct {
	Kind     Kind
	Filename string
	Content  string // pasted text
	Data     []byte // file bytes
}

// PastedText builds a pasted-text item.
func PastedText(content string) Item {
	return Item{Kind: KindPastedText, Filename: domain.PastedTextSource, Content: content}
}

// File builds a file item.
func File(filename string, data []byte) Item {
	return Item{Kind: KindFile, Filename: filename, Data: data}
}

// PDFTextFunc returns the text of every page of a PDF, concatenated in page order.
type PDFTextFunc func(data []byte) (string, error)

// Extractor produces trimmed plain text from an Item.
type Extractor struct {
	pdfText PDFTextFunc
}

// NewExtractor creates an extractor backed by the ledongthuc/pdf reader.
func NewExtractor() *Extractor {
	return &Extractor{pdfText: ReadPDFText}
}

// NewExtractorWithPDF creates an extractor with a custom PDF text function.
func NewExtractorWithPDF(fn PDFTextFunc) *Extractor {
	if fn == nil {
		fn = ReadPDFText
	}
	return &Extractor{pdfText: fn}
}

// Extract returns the trimmed text of item. An empty string with a nil error
// means the item has nothing to classify.
func (e *Extractor) Extract(ctx context.Context, item Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch item.Kind {
	case KindPastedText:
		return strings.TrimSpace(item.Content), nil
	case KindFile:
		return e.extractFile(item)
	default:
		return "", fmt.Errorf("unknown item kind %d", item.Kind)
	}
}

func (e *Extractor) extractFile(item Item) (string, error) {
	switch strings.ToLower(filepath.Ext(item.Filename)) {
	case ".txt":
		if !utf8.Valid(item.Data) {
			return "", fmt.Errorf("%s: %w", item.Filename, domain.ErrDecode)
		}
		return strings.TrimSpace(strings.TrimPrefix(string(item.Data), "\ufeff")), nil

	case ".pdf":
		text, err := e.pdfText(item.Data)
		if err != nil {
			return "", fmt.Errorf("%s: %w: %v", item.Filename, domain.ErrPDFProcessing, err)
		}
		return strings.TrimSpace(text), nil

	default:
		return "", fmt.Errorf("%s: %w", item.Filename, ErrUnsupported)
	}
}
