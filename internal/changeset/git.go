package changeset

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/triage/internal/core"
)

// GitProvider collects the change context from a git working copy by
// shelling out to the git binary.
type GitProvider struct {
	// Dir is the repository root.
	Dir string

	// Base is the diff base ref. Defaults to HEAD~1.
	Base string

	// run allows tests to substitute command output.
	run func(ctx context.Context, dir string, args ...string) (string, error)
}

// NewGitProvider returns a provider for the given repository root.
func NewGitProvider(dir, base string) *GitProvider {
	if base == "" {
		base = "HEAD~1"
	}
	return &GitProvider{Dir: dir, Base: base, run: runGit}
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Collect runs git diff and git log to assemble the change tuple.
func (p *GitProvider) Collect(ctx context.Context) (core.ChangeContext, error) {
	runner := p.run
	if runner == nil {
		runner = runGit
	}

	diffOut, err := runner(ctx, p.Dir, "diff", "--name-only", p.Base, "HEAD")
	if err != nil {
		return core.ChangeContext{}, fmt.Errorf("collect change set: %w", err)
	}
	files := splitLines(diffOut)
	if len(files) == 0 {
		return core.ChangeContext{}, fmt.Errorf("no changed files between %s and HEAD", p.Base)
	}

	// %H commit hash, %ae author email, %ct commit unix timestamp.
	logOut, err := runner(ctx, p.Dir, "log", "-1", "--format=%H%n%ae%n%ct")
	if err != nil {
		return core.ChangeContext{}, fmt.Errorf("collect change set: %w", err)
	}
	lines := splitLines(logOut)
	if len(lines) < 3 {
		return core.ChangeContext{}, fmt.Errorf("unexpected git log output: %q", logOut)
	}

	unix, err := strconv.ParseInt(lines[2], 10, 64)
	if err != nil {
		return core.ChangeContext{}, fmt.Errorf("parse commit timestamp %q: %w", lines[2], err)
	}

	return core.ChangeContext{
		Files:     files,
		Author:    lines[1],
		CommitID:  lines[0],
		Timestamp: time.Unix(unix, 0).UTC(),
	}, nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
