// Package chunker splits message text into fixed-size overlapping chunks for embedding.
package chunker

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunker bounds per-chunk embedding cost by splitting long text.
type Chunker struct {
	size     int
	splitter textsplitter.RecursiveCharacter
}

// New returns a Chunker producing chunks of at most size characters that
// overlap by overlap characters. Invalid values fall back to the defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
		if DefaultOverlap < size {
			overlap = DefaultOverlap
		}
	}
	return &Chunker{
		size: size,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// Split returns the chunks of text. Blank text yields no chunks and text
// that fits in one chunk is returned whole.
func (c *Chunker) Split(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if len([]rune(text)) <= c.size {
		return []string{text}, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
