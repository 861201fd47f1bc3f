package rag

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildContext_Empty(t *testing.T) {
	t.Parallel()
	if got := BuildContext(nil, 1500); got != "" {
		t.Errorf("BuildContext(nil) = %q, want empty", got)
	}
	if got := BuildContext([]SearchResult{}, 1500); got != "" {
		t.Errorf("BuildContext([]) = %q, want empty", got)
	}
}

func TestBuildContext_LabelsAndJoins(t *testing.T) {
	t.Parallel()
	got := BuildContext([]SearchResult{
		{Text: "  Diabetes is a chronic condition. ", Score: 0.9},
		{Text: "Insulin regulates blood sugar.", Score: 0.8},
	}, 1500)
	want := "[Source 1]: Diabetes is a chronic condition.\n\n[Source 2]: Insulin regulates blood sugar."
	if got != want {
		t.Errorf("BuildContext =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildContext_TruncatesOversizedBlock(t *testing.T) {
	t.Parallel()
	got := BuildContext([]SearchResult{{Text: strings.Repeat("A", 2000), Score: 0.9}}, 1500)

	if !strings.HasPrefix(got, "[Source 1]: ") {
		t.Fatalf("missing label: %q", got[:20])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated block should end with an ellipsis")
	}
	if strings.Count(got, "[Source") != 1 {
		t.Errorf("want exactly one block")
	}
	overhead := len("[Source 1]: ") + len("...")
	if len(got) > 1500+overhead {
		t.Errorf("len = %d, want <= %d", len(got), 1500+overhead)
	}
	if body := strings.TrimSuffix(strings.TrimPrefix(got, "[Source 1]: "), "..."); len(body) != 1500 {
		t.Errorf("body length = %d, want 1500", len(body))
	}
}

func TestBuildContext_StopsAfterTruncation(t *testing.T) {
	t.Parallel()
	got := BuildContext([]SearchResult{
		{Text: strings.Repeat("a", 1000)},
		{Text: strings.Repeat("b", 1000)},
		{Text: "c"},
	}, 1500)

	if strings.Contains(got, "[Source 3]") {
		t.Errorf("blocks after a truncated one must be dropped")
	}
	if !strings.Contains(got, "[Source 2]: "+strings.Repeat("b", 500)+"...") {
		t.Errorf("second block should be cut to the 500 remaining characters")
	}
}

func TestBuildContext_SkipsTinyRemainder(t *testing.T) {
	t.Parallel()
	got := BuildContext([]SearchResult{
		{Text: strings.Repeat("a", 1450)},
		{Text: strings.Repeat("b", 300)},
		{Text: "short"},
	}, 1500)

	if strings.Contains(got, "[Source 2]") || strings.Contains(got, "[Source 3]") {
		t.Errorf("with 50 characters left nothing more should be added: %q", got[len(got)-30:])
	}
}

func TestBuildContext_CountsRunes(t *testing.T) {
	t.Parallel()
	got := BuildContext([]SearchResult{{Text: strings.Repeat("é", 300)}}, 200)
	body := strings.TrimSuffix(strings.TrimPrefix(got, "[Source 1]: "), "...")
	if n := utf8.RuneCountInString(body); n != 200 {
		t.Errorf("rune count = %d, want 200", n)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8")
	}
}
