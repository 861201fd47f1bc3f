package ingestion

import (
	"strings"
	"unicode"
)

// Chunking defaults, in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Chunker splits free text into overlapping windows of at most Size runes.
// Windows end on whitespace when there is whitespace in their second half.
type Chunker struct {
	// Size is the maximum window length in runes.
	Size int
	// Overlap is how many runes consecutive windows share.
	Overlap int
}

// normalized returns c with defaults applied and Overlap < Size.
func (c Chunker) normalized() Chunker {
	if c.Size <= 0 {
		c.Size = DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.Size {
		c.Overlap = c.Size / 10
	}
	return c
}

// Split returns the trimmed, non-empty windows of text in order.
func (c Chunker) Split(text string) []string {
	c = c.normalized()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+c.Size, len(runes))
		if end < len(runes) {
			if cut := lastSpace(runes[start:end]); cut > c.Size/2 {
				end = start + cut
			}
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSpace returns the index of the last whitespace rune in r, or -1.
func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return -1
}
