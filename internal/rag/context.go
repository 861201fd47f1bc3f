package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxContext is the default character budget for BuildContext.
	DefaultMaxContext = 1500

	// minFragment is the smallest truncated block worth emitting.
	minFragment = 100

	ellipsis = "..."
)

// BuildContext renders results as "[Source i]: text" blocks separated by a
// blank line, keeping the summed text length within maxLength characters.
// The first block that does not fit is truncated with an ellipsis when at
// least 100 characters of budget remain, otherwise dropped; nothing after it
// is added. No results yield an empty string.
func BuildContext(results []SearchResult, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxContext
	}

	var parts []string
	total := 0
	for i, r := range results {
		text := strings.TrimSpace(r.Text)
		n := utf8.RuneCountInString(text)

		if total+n > maxLength {
			remaining := maxLength - total
			if remaining < minFragment {
				break
			}
			text = truncateRunes(text, remaining) + ellipsis
			parts = append(parts, fmt.Sprintf("[Source %d]: %s", i+1, text))
			break
		}

		parts = append(parts, fmt.Sprintf("[Source %d]: %s", i+1, text))
		total += n
	}
	return strings.Join(parts, "\n\n")
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
