package core

import (
	"path"
	"strings"
)

// Extension sets for file classification. Classification feeds feature
// correlation only; no correctness decision reads these flags.
var (
	configExtensions = map[string]bool{
		".yaml": true, ".yml": true, ".json": true, ".toml": true,
		".ini": true, ".env": true, ".cfg": true,
	}
	markupExtensions = map[string]bool{
		".md": true, ".rst": true, ".html": true, ".adoc": true, ".txt": true,
	}
	sourceExtensions = map[string]bool{
		".go": true, ".py": true, ".js": true, ".ts": true, ".rb": true,
		".java": true, ".c": true, ".cc": true, ".cpp": true, ".rs": true,
		".sh": true,
	}
)

// ClassifyFile derives the persisted change record for one file path.
func ClassifyFile(p string) FileChangeRecord {
	ext := strings.ToLower(path.Ext(p))
	rec := FileChangeRecord{
		Path:      p,
		Extension: ext,
	}

	rec.IsConfig = configExtensions[ext]
	rec.IsMarkup = markupExtensions[ext]
	rec.IsSource = sourceExtensions[ext]

	// Workflow files are identified by location, not extension.
	norm := strings.ReplaceAll(p, "\\", "/")
	if strings.Contains(norm, ".github/workflows/") || strings.Contains(norm, ".gitlab-ci") {
		rec.IsWorkflow = true
	}

	base := path.Base(norm)
	if strings.Contains(base, "_test.") || strings.HasPrefix(base, "test_") ||
		strings.Contains(norm, "/tests/") || strings.Contains(norm, "/testdata/") {
		rec.IsTest = true
	}

	return rec
}

// ClassifyFiles maps a change-set file list to persisted records, preserving
// input order.
func ClassifyFiles(paths []string) []FileChangeRecord {
	records := make([]FileChangeRecord, len(paths))
	for i, p := range paths {
		records[i] = ClassifyFile(p)
	}
	return records
}
