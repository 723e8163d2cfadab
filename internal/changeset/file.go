package changeset

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/triage/internal/core"
)

// changeDoc is the YAML document format for declarative change sets:
//
//	files:
//	  - config/app.yaml
//	  - internal/engine/engine.go
//	author: dev@example.com
//	commit: 4f2a91c
//	timestamp: 2026-05-01T10:00:00Z
type changeDoc struct {
	Files     []string  `yaml:"files"`
	Author    string    `yaml:"author"`
	Commit    string    `yaml:"commit"`
	Timestamp time.Time `yaml:"timestamp"`
}

// FileProvider reads a change set from a YAML file.
type FileProvider struct {
	Path string
}

// Collect parses the file into a change context. A zero timestamp defaults
// to the current time.
func (p FileProvider) Collect(ctx context.Context) (core.ChangeContext, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return core.ChangeContext{}, fmt.Errorf("read change set: %w", err)
	}

	var doc changeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return core.ChangeContext{}, fmt.Errorf("parse change set %s: %w", p.Path, err)
	}
	if len(doc.Files) == 0 {
		return core.ChangeContext{}, fmt.Errorf("change set %s lists no files", p.Path)
	}
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}

	return core.ChangeContext{
		Files:     doc.Files,
		Author:    doc.Author,
		CommitID:  doc.Commit,
		Timestamp: doc.Timestamp.UTC(),
	}, nil
}
