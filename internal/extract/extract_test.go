package extract

import (
	"context"
	"errors"
	"testing"

	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/provider"
)

type mockOCR struct {
	pages    []string
	err      error
	calls    int
	lastMIME string
}

func (m *mockOCR) ExtractPages(_ context.Context, mimeType string, _ []byte) ([]string, error) {
	m.calls++
	m.lastMIME = mimeType
	return m.pages, m.err
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		filename string
		want     doc.FileType
		wantErr  bool
	}{
		{"report.pdf", doc.FileTypePDF, false},
		{"Report.PDF", doc.FileTypePDF, false},
		{"photo.png", doc.FileTypeImage, false},
		{"photo.JPEG", doc.FileTypeImage, false},
		{"notes.txt", doc.FileTypeText, false},
		{"readme.md", doc.FileTypeText, false},
		{"data.csv", doc.FileTypeText, false},
		{"archive.zip", "", true},
		{"noextension", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFileType(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedType) {
					t.Fatalf("DetectFileType() error = %v, want ErrUnsupportedType", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectFileType() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFileType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractTextFile(t *testing.T) {
	e := New(nil, nil)

	res, err := e.Extract(context.Background(), "notes.txt", []byte("  hello world\n"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != "hello world" || res.FileType != doc.FileTypeText || res.UsedOCR {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestExtractTextFileInvalidUTF8(t *testing.T) {
	e := New(nil, nil)
	if _, err := e.Extract(context.Background(), "notes.txt", []byte{0xff, 0xfe, 0x00}); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Extract() error = %v, want ErrInvalidEncoding", err)
	}
}

func TestExtractTextFileEmpty(t *testing.T) {
	e := New(nil, nil)
	if _, err := e.Extract(context.Background(), "notes.txt", []byte("   \n ")); !errors.Is(err, ErrNoText) {
		t.Errorf("Extract() error = %v, want ErrNoText", err)
	}
}

func TestExtractImage(t *testing.T) {
	ocr := &mockOCR{pages: []string{"speed limit 50"}}
	e := New(ocr, nil)

	res, err := e.Extract(context.Background(), "sign.png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != "speed limit 50" || !res.UsedOCR {
		t.Errorf("unexpected result: %+v", res)
	}
	if ocr.lastMIME != "image/png" {
		t.Errorf("OCR mime = %q, want image/png", ocr.lastMIME)
	}
}

func TestExtractImageWithoutOCR(t *testing.T) {
	e := New(nil, nil)
	if _, err := e.Extract(context.Background(), "sign.png", []byte{1}); !errors.Is(err, provider.ErrNoCredential) {
		t.Errorf("Extract() error = %v, want ErrNoCredential", err)
	}
}

func TestExtractImageNoTextFound(t *testing.T) {
	e := New(&mockOCR{pages: []string{"  "}}, nil)
	if _, err := e.Extract(context.Background(), "blank.png", []byte{1}); !errors.Is(err, ErrNoText) {
		t.Errorf("Extract() error = %v, want ErrNoText", err)
	}
}

func TestExtractScannedPDFFallsBackToOCR(t *testing.T) {
	// Not a parseable PDF, so the text layer yields nothing and the
	// extractor must fall back to OCR.
	ocr := &mockOCR{pages: []string{"first scanned page", "", "third scanned page"}}
	e := New(ocr, nil)

	res, err := e.Extract(context.Background(), "scan.pdf", []byte("not really a pdf"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !res.UsedOCR {
		t.Error("result should be marked as OCR")
	}
	if res.Text != "first scanned page\n\nthird scanned page" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Pages) != 2 || res.Pages[0].Number != 1 || res.Pages[1].Number != 3 {
		t.Errorf("page attribution lost: %+v", res.Pages)
	}
	if ocr.calls != 1 || ocr.lastMIME != "application/pdf" {
		t.Errorf("OCR called %d times with mime %q", ocr.calls, ocr.lastMIME)
	}
}

func TestExtractScannedPDFWithoutOCR(t *testing.T) {
	e := New(nil, nil)
	if _, err := e.Extract(context.Background(), "scan.pdf", []byte("not really a pdf")); err == nil {
		t.Fatal("Extract() should fail when the pdf is unreadable and OCR is unavailable")
	}
}

func TestExtractScannedPDFMissingOCRCredential(t *testing.T) {
	e := New(&mockOCR{err: provider.ErrNoCredential}, nil)
	_, err := e.Extract(context.Background(), "scan.pdf", []byte("not really a pdf"))
	if !errors.Is(err, provider.ErrNoCredential) {
		t.Errorf("Extract() error = %v, want ErrNoCredential surfaced", err)
	}
}

func TestExtractPDFOCRFailureKeepsNothing(t *testing.T) {
	e := New(&mockOCR{err: errors.New("ocr down")}, nil)
	if _, err := e.Extract(context.Background(), "scan.pdf", []byte("not really a pdf")); err == nil {
		t.Fatal("Extract() should fail when both the text layer and OCR fail")
	}
}

func TestExtractUnsupportedExtension(t *testing.T) {
	e := New(nil, nil)
	if _, err := e.Extract(context.Background(), "malware.exe", []byte{1}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Extract() error = %v, want ErrUnsupportedType", err)
	}
}
