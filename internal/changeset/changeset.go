// Package changeset is the boundary to the version-control collaborator.
// The engine needs exactly one tuple from it: changed files, author, commit
// id, timestamp. No other VCS semantics leak past this package.
package changeset

import (
	"context"

	"github.com/roach88/triage/internal/core"
)

// Provider supplies the change context for one orchestration pass.
type Provider interface {
	Collect(ctx context.Context) (core.ChangeContext, error)
}

// Static is a fixed change context, used by tests and the benchmark harness
// to replay the same change set across iterations.
type Static struct {
	Context core.ChangeContext
}

// Collect returns the fixed context.
func (s Static) Collect(ctx context.Context) (core.ChangeContext, error) {
	return s.Context, nil
}
