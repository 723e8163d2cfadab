package engine

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/roach88/triage/internal/core"
)

// evidenceLimit bounds the output captured per rule. Only the tail is kept;
// the end of a tool's output usually carries its verdict.
const evidenceLimit = 4096

// Runner executes one rule and reports its outcome. Failures of the rule
// command (non-zero exit, crash, timeout) surface as failed outcomes, never
// as errors; only the orchestrator decides what a failure means for the run.
type Runner interface {
	Run(ctx context.Context, rule core.Rule) core.RuleOutcome
}

// CommandRunner invokes rules as external commands with combined output
// capture and a per-rule timeout.
type CommandRunner struct{}

// Run implements Runner.
func (CommandRunner) Run(ctx context.Context, rule core.Rule) core.RuleOutcome {
	outcome := core.RuleOutcome{
		RuleID:   rule.ID,
		Severity: rule.Severity,
	}
	if len(rule.Command) == 0 {
		outcome.Message = (&core.RuleExecutionError{
			RuleID:   rule.ID,
			ExitCode: -1,
			Message:  "empty command",
		}).Error()
		return outcome
	}

	runCtx := ctx
	if rule.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, rule.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(runCtx, rule.Command[0], rule.Command[1:]...)
	output, err := cmd.CombinedOutput()
	outcome.Duration = time.Since(start)
	outcome.Evidence = tail(output)

	if err == nil {
		outcome.Passed = true
		return outcome
	}

	execErr := &core.RuleExecutionError{
		RuleID:   rule.ID,
		ExitCode: -1,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
		Message:  err.Error(),
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	outcome.Message = execErr.Error()
	return outcome
}

// tail returns at most evidenceLimit bytes from the end of output.
func tail(output []byte) string {
	if len(output) > evidenceLimit {
		output = output[len(output)-evidenceLimit:]
	}
	return string(output)
}
