// Package extract turns uploaded files into plain text. PDFs are read from
// their text layer with an OCR fallback for scanned documents, images go
// straight to OCR, and text files are validated as UTF-8.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/provider"
)

// ocrMinChars is the text-layer yield below which a PDF is treated as
// scanned and sent to OCR. Genuine text PDFs always clear this; scanned
// PDFs typically yield nothing or stray artifacts.
const ocrMinChars = 50

var (
	// ErrUnsupportedType indicates a file extension outside the supported
	// pdf, image and text sets.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrInvalidEncoding indicates a text file that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("text file is not valid UTF-8")

	// ErrNoText indicates extraction produced no usable text at all.
	ErrNoText = errors.New("no text could be extracted")
)

// Page is the text of one PDF page, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// Result is the outcome of extracting one file.
type Result struct {
	FileType doc.FileType
	Text     string

	// Pages carries per-page text for the chunker's page attribution.
	// Nil for images and text files, which have no page structure.
	Pages []Page

	// UsedOCR reports whether the text came from OCR rather than the
	// file's own text layer.
	UsedOCR bool
}

// Extractor extracts text from uploaded files.
type Extractor struct {
	ocr    provider.OCR
	logger *slog.Logger
}

// New creates an extractor. ocr may be nil when no OCR provider is
// configured; extraction then fails only for inputs that need it.
func New(ocr provider.OCR, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ocr: ocr, logger: logger}
}

var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
}

// DetectFileType classifies a filename by extension.
func DetectFileType(filename string) (doc.FileType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return doc.FileTypePDF, nil
	case imageMIMETypes[ext] != "":
		return doc.FileTypeImage, nil
	case textExtensions[ext]:
		return doc.FileTypeText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}

// Extract produces the text of an uploaded file.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (*Result, error) {
	fileType, err := DetectFileType(filename)
	if err != nil {
		return nil, err
	}

	switch fileType {
	case doc.FileTypePDF:
		return e.extractPDF(ctx, filename, data)
	case doc.FileTypeImage:
		return e.extractImage(ctx, filename, data)
	default:
		return extractText(data)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, filename string, data []byte) (*Result, error) {
	pages, layerErr := pdfTextLayer(data)

	var combined strings.Builder
	for i, p := range pages {
		if i > 0 {
			combined.WriteString("\n\n")
		}
		combined.WriteString(p.Text)
	}
	layerText := strings.TrimSpace(combined.String())

	if layerErr == nil && len(layerText) >= ocrMinChars {
		return &Result{FileType: doc.FileTypePDF, Text: layerText, Pages: pages}, nil
	}

	// Near-empty text layer: likely a scanned document.
	var ocrErr error
	if e.ocr != nil {
		e.logger.Info("pdf text layer too thin, falling back to OCR",
			"filename", filename, "layer_chars", len(layerText))
		ocrPages, err := e.ocr.ExtractPages(ctx, "application/pdf", data)
		if err == nil {
			if res := resultFromOCRPages(ocrPages); res != nil {
				return res, nil
			}
		}
		ocrErr = err
		if err != nil && !errors.Is(err, provider.ErrNoCredential) {
			e.logger.Warn("pdf OCR fallback failed", "filename", filename, "error", err)
		}
	}

	// OCR unavailable or failed; a thin text layer is still better than
	// nothing.
	if layerText != "" {
		return &Result{FileType: doc.FileTypePDF, Text: layerText, Pages: pages}, nil
	}
	// A scanned document blocked on a missing OCR key is an operator
	// problem, not a bad upload. Keep the credential error distinguishable.
	if errors.Is(ocrErr, provider.ErrNoCredential) {
		return nil, fmt.Errorf("scanned pdf needs OCR: %w", ocrErr)
	}
	if layerErr != nil {
		return nil, fmt.Errorf("reading pdf: %w", layerErr)
	}
	return nil, fmt.Errorf("%w: pdf has no text layer and OCR is unavailable", ErrNoText)
}

func (e *Extractor) extractImage(ctx context.Context, filename string, data []byte) (*Result, error) {
	if e.ocr == nil {
		return nil, fmt.Errorf("%w: image extraction requires OCR", provider.ErrNoCredential)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	ocrPages, err := e.ocr.ExtractPages(ctx, imageMIMETypes[ext], data)
	if err != nil {
		return nil, fmt.Errorf("image OCR: %w", err)
	}
	text := strings.TrimSpace(strings.Join(ocrPages, "\n\n"))
	if text == "" {
		return nil, fmt.Errorf("%w: OCR found no text in image", ErrNoText)
	}
	return &Result{FileType: doc.FileTypeImage, Text: text, UsedOCR: true}, nil
}

// resultFromOCRPages builds a paged result from per-page OCR text. Returns
// nil when OCR recognized nothing at all.
func resultFromOCRPages(ocrPages []string) *Result {
	var pages []Page
	var combined strings.Builder
	for i, text := range ocrPages {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n\n")
		}
		combined.WriteString(text)
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	if len(pages) == 0 {
		return nil
	}
	return &Result{FileType: doc.FileTypePDF, Text: combined.String(), Pages: pages, UsedOCR: true}
}

func extractText(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("%w: file is empty", ErrNoText)
	}
	return &Result{FileType: doc.FileTypeText, Text: text}, nil
}

// pdfTextLayer reads each page's text layer. Pages that fail to parse are
// skipped rather than failing the whole document. The parser panics on some
// malformed files, so the whole read runs under a recover.
func pdfTextLayer(data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, Page{Number: i, Text: text})
		}
	}
	return pages, nil
}
