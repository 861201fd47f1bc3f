package ingestion

import (
	"strings"
	"testing"
)

func TestChunker_Split(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    Chunker
		text string
		want []string
	}{
		{"empty", Chunker{}, "   ", nil},
		{"fits in one window", Chunker{Size: 100}, "  short text  ", []string{"short text"}},
		{"breaks on whitespace", Chunker{Size: 10}, "aaaa bbbb cccc", []string{"aaaa bbbb", "cccc"}},
		{"hard cut with overlap", Chunker{Size: 10, Overlap: 3}, "abcdefghijklmnop", []string{"abcdefghij", "hijklmnop"}},
		{"multibyte runes", Chunker{Size: 3}, "ééééé", []string{"ééé", "éé"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.c.Split(tc.text)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Errorf("Split() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChunker_OverlapNotBelowSize(t *testing.T) {
	t.Parallel()
	c := Chunker{Size: 4, Overlap: 9}.normalized()
	if c.Overlap >= c.Size {
		t.Errorf("overlap %d must be below size %d", c.Overlap, c.Size)
	}
	// Must terminate and cover the input.
	got := Chunker{Size: 4, Overlap: 9}.Split("abcdefghij")
	if len(got) == 0 || !strings.HasSuffix(got[len(got)-1], "j") {
		t.Errorf("Split() = %q", got)
	}
}

func TestChunker_Defaults(t *testing.T) {
	t.Parallel()
	c := Chunker{}.normalized()
	if c.Size != DefaultChunkSize || c.Overlap != 0 {
		t.Errorf("normalized() = %+v", c)
	}
	got := Chunker{}.Split(strings.Repeat("word ", 500))
	if len(got) != 3 {
		t.Errorf("got %d chunks for 2500 runes at size %d", len(got), DefaultChunkSize)
	}
}
