// Package chunk splits extracted text into overlapping retrieval units.
// Splitting prefers paragraph boundaries; only paragraphs longer than the
// chunk size are hard-split. The algorithm is deterministic: the same text
// and settings always produce the same chunks.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidSize    = errors.New("chunk size must be positive")
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than the chunk size")
)

// Page is one unit of page-attributed input text.
type Page struct {
	Number int
	Text   string
}

// Piece is one produced chunk. Indexes are contiguous from 0 across the
// whole document, including across page boundaries.
type Piece struct {
	Index      int
	Content    string
	TokenCount int
	PageNumber *int // nil when the input has no page attribution

	// EmbedText is what gets embedded: the content prefixed by a short
	// header naming the source document and page. The header helps the
	// embedding place an out-of-context excerpt; it is never shown to users
	// and never stored as chunk content.
	EmbedText string
}

// Chunker splits text with a fixed size and overlap, both measured in runes.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. overlap must be smaller than size or the hard-split
// loop could not advance.
func New(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits unpaged text into pieces. source names the origin document
// for the embed-text header.
func (c *Chunker) Chunk(source, text string) []Piece {
	return c.pieces(source, c.Split(text), nil, 0)
}

// ChunkPages splits page-attributed text, chunking each page independently
// so every piece carries the page it came from. Piece indexes run
// contiguously across pages.
func (c *Chunker) ChunkPages(source string, pages []Page) []Piece {
	var all []Piece
	for _, p := range pages {
		page := p.Number
		all = append(all, c.pieces(source, c.Split(p.Text), &page, len(all))...)
	}
	return all
}

func (c *Chunker) pieces(source string, parts []string, pageNumber *int, startIndex int) []Piece {
	result := make([]Piece, 0, len(parts))
	for i, content := range parts {
		result = append(result, Piece{
			Index:      startIndex + i,
			Content:    content,
			TokenCount: EstimateTokens(content),
			PageNumber: pageNumber,
			EmbedText:  embedText(source, pageNumber, content),
		})
	}
	return result
}

func embedText(source string, pageNumber *int, content string) string {
	if source == "" {
		return content
	}
	if pageNumber != nil {
		return fmt.Sprintf("Source: %s, page %d\n\n%s", source, *pageNumber, content)
	}
	return fmt.Sprintf("Source: %s\n\n%s", source, content)
}

// Split breaks text into overlapping strings. Paragraphs (separated by blank
// lines) are packed into chunks up to the size limit; a new chunk starts
// with the tail of the previous one as overlap. Paragraphs longer than the
// size limit are hard-split by a sliding rune window.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	current := ""

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraLen := utf8.RuneCountInString(para)
		if utf8.RuneCountInString(current)+paraLen+2 <= c.size {
			if current == "" {
				current = para
			} else {
				current += "\n\n" + para
			}
			continue
		}

		if current != "" {
			chunks = append(chunks, current)
		}

		if paraLen > c.size {
			chunks = append(chunks, c.hardSplit(para)...)
			current = ""
			continue
		}

		if len(chunks) > 0 && c.overlap > 0 {
			current = c.tail(chunks[len(chunks)-1]) + "\n\n" + para
		} else {
			current = para
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// hardSplit slides a rune window over one oversized paragraph. A trailing
// remainder no longer than the overlap is dropped: it is already present as
// the tail of the previous window.
func (c *Chunker) hardSplit(para string) []string {
	runes := []rune(para)
	step := c.size - c.overlap

	var chunks []string
	for len(runes) > 0 {
		end := min(c.size, len(runes))
		chunks = append(chunks, string(runes[:end]))
		runes = runes[min(step, len(runes)):]
		if len(runes) <= c.overlap {
			break
		}
	}
	return chunks
}

// tail returns the last overlap runes of a chunk.
func (c *Chunker) tail(chunk string) string {
	runes := []rune(chunk)
	if len(runes) <= c.overlap {
		return chunk
	}
	return string(runes[len(runes)-c.overlap:])
}

// EstimateTokens approximates a token count at roughly four characters per
// token, never less than one. Good enough for context budgeting; exact
// tokenization would tie the store to one vendor's tokenizer.
func EstimateTokens(text string) int {
	return max(1, utf8.RuneCountInString(text)/4)
}
