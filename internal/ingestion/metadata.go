package ingestion

import (
	"bufio"
	"path/filepath"
	"strings"
)

// headingScanLines bounds how far into a document a title heading is looked
// for.
const headingScanLines = 20

// fileMetadata describes a chunk cut from the file at path under root.
// category is the first directory below root, so a dataset laid out as
// cardiology/*.md, dermatology/*.md is labelled by specialty.
func fileMetadata(root, path, text string, index int) map[string]any {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	md := map[string]any{
		"source":      rel,
		"title":       titleOf(path, text),
		"chunk_index": index,
	}
	if dir, _, ok := strings.Cut(rel, "/"); ok {
		md["category"] = dir
	}
	return md
}

// titleOf returns the first markdown heading of text, or a title derived
// from the file name.
func titleOf(path, text string) string {
	sc := bufio.NewScanner(strings.NewReader(text))
	for i := 0; i < headingScanLines && sc.Scan(); i++ {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return t
			}
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
