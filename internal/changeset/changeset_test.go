package changeset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProviderCollect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.yaml")
	doc := `
files:
  - config/app.yaml
  - internal/engine/engine.go
author: dev@example.com
commit: 4f2a91c
timestamp: 2026-05-01T10:00:00Z
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cc, err := FileProvider{Path: path}.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"config/app.yaml", "internal/engine/engine.go"}, cc.Files)
	assert.Equal(t, "dev@example.com", cc.Author)
	assert.Equal(t, "4f2a91c", cc.CommitID)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), cc.Timestamp)
}

func TestFileProviderDefaultsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.yaml")
	doc := `
files: [a.go]
author: dev
commit: abc
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	before := time.Now().UTC()
	cc, err := FileProvider{Path: path}.Collect(context.Background())
	require.NoError(t, err)
	assert.False(t, cc.Timestamp.Before(before))
}

func TestFileProviderRejectsEmptyFileList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("author: dev\ncommit: abc\n"), 0o644))

	_, err := FileProvider{Path: path}.Collect(context.Background())
	assert.Error(t, err)
}

func TestFileProviderMissingFile(t *testing.T) {
	_, err := FileProvider{Path: filepath.Join(t.TempDir(), "nope.yaml")}.Collect(context.Background())
	assert.Error(t, err)
}

func TestGitProviderCollect(t *testing.T) {
	p := NewGitProvider("/repo", "")
	p.run = func(ctx context.Context, dir string, args ...string) (string, error) {
		require.Equal(t, "/repo", dir)
		switch args[0] {
		case "diff":
			assert.Equal(t, []string{"diff", "--name-only", "HEAD~1", "HEAD"}, args)
			return "config/app.yaml\ninternal/engine/engine.go\n", nil
		case "log":
			return "4f2a91cdeadbeef\ndev@example.com\n1777800000\n", nil
		default:
			return "", fmt.Errorf("unexpected git command %v", args)
		}
	}

	cc, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"config/app.yaml", "internal/engine/engine.go"}, cc.Files)
	assert.Equal(t, "dev@example.com", cc.Author)
	assert.Equal(t, "4f2a91cdeadbeef", cc.CommitID)
	assert.Equal(t, time.Unix(1777800000, 0).UTC(), cc.Timestamp)
}

func TestGitProviderNoChanges(t *testing.T) {
	p := NewGitProvider("/repo", "main")
	p.run = func(ctx context.Context, dir string, args ...string) (string, error) {
		return "", nil
	}

	_, err := p.Collect(context.Background())
	assert.Error(t, err)
}

func TestStaticProvider(t *testing.T) {
	want := Static{}
	cc, err := want.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cc.Files)
}
