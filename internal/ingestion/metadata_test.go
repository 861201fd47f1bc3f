package ingestion

import (
	"path/filepath"
	"testing"
)

func TestTitleOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		text string
		want string
	}{
		{"markdown heading", "x/asthma.md", "\n# Asthma Overview\n\nAsthma is...", "Asthma Overview"},
		{"second level heading", "x/a.md", "## Type 2 Diabetes\ntext", "Type 2 Diabetes"},
		{"empty heading skipped", "x/a.md", "#\n# Real Title", "Real Title"},
		{"file name fallback", "x/high_blood-pressure.txt", "plain text only", "high blood pressure"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := titleOf(tc.path, tc.text); got != tc.want {
				t.Errorf("titleOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFileMetadata(t *testing.T) {
	t.Parallel()
	root := filepath.Join("data", "kb")

	nested := fileMetadata(root, filepath.Join(root, "cardiology", "hypertension.md"), "# Hypertension", 2)
	if nested["source"] != "cardiology/hypertension.md" {
		t.Errorf("source = %v", nested["source"])
	}
	if nested["category"] != "cardiology" {
		t.Errorf("category = %v", nested["category"])
	}
	if nested["title"] != "Hypertension" || nested["chunk_index"] != 2 {
		t.Errorf("metadata = %v", nested)
	}

	top := fileMetadata(root, filepath.Join(root, "flu.txt"), "Flu is viral.", 0)
	if _, ok := top["category"]; ok {
		t.Errorf("top-level file should have no category: %v", top)
	}
}
