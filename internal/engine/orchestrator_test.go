package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/changeset"
	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/testutil"
)

// scriptRunner returns canned outcomes and records the execution order.
type scriptRunner struct {
	fail     map[string]bool
	duration map[string]time.Duration
	executed []string
}

func (r *scriptRunner) Run(_ context.Context, rule core.Rule) core.RuleOutcome {
	r.executed = append(r.executed, rule.ID)
	d := r.duration[rule.ID]
	if d == 0 {
		d = 10 * time.Millisecond
	}
	return core.RuleOutcome{
		RuleID:   rule.ID,
		Severity: rule.Severity,
		Passed:   !r.fail[rule.ID],
		Duration: d,
	}
}

type scriptPredictor struct {
	scores  map[string]float64
	trained bool
	version string
}

func (p *scriptPredictor) Predict(context.Context, core.ChangeContext, []core.Rule) (map[string]float64, error) {
	return p.scores, nil
}
func (p *scriptPredictor) Trained() bool   { return p.trained }
func (p *scriptPredictor) Version() string { return p.version }

// memRecorder fails the first failures calls, then succeeds.
type memRecorder struct {
	failures int
	calls    int
	recorded []*core.ValidationRun
}

func (r *memRecorder) RecordRun(_ context.Context, run *core.ValidationRun) error {
	r.calls++
	if r.calls <= r.failures {
		return errors.New("disk full")
	}
	r.recorded = append(r.recorded, run)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrchestrator(rules []core.Rule, runner Runner, predictor Predictor, recorder Recorder) *Orchestrator {
	cfg := core.DefaultConfig()
	o := New(rules, predictor, runner, recorder, cfg, quietLogger())
	o.now = testutil.FixedClock{Instant: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}.Now
	o.newID = (&testutil.SequentialIDs{}).Next
	return o
}

func testProvider() changeset.Provider {
	return changeset.Static{Context: core.ChangeContext{
		Files:     []string{"config.yaml", "main.go"},
		Author:    "dev@example.com",
		CommitID:  "abc123",
		Timestamp: time.Date(2026, 4, 1, 8, 59, 0, 0, time.UTC),
	}}
}

func TestExecuteFixedModeRunsAllRules(t *testing.T) {
	rules := ruleSet()
	runner := &scriptRunner{}
	recorder := &memRecorder{}
	o := testOrchestrator(rules, runner, &scriptPredictor{}, recorder)

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)

	assert.Equal(t, []string{"lint", "schema", "links", "secrets"}, runner.executed)
	assert.Equal(t, StateRecorded, o.State())
	assert.True(t, res.Run.Passed())
	assert.False(t, res.Run.StoppedEarly)
	assert.Equal(t, 4, res.Run.TotalRules)
	assert.Len(t, recorder.recorded, 1)
	assert.Zero(t, res.PredictionTime)
}

func TestExecutePrioritizedModeOrdersByScore(t *testing.T) {
	runner := &scriptRunner{}
	predictor := &scriptPredictor{
		scores:  map[string]float64{"lint": 0.1, "schema": 0.2, "links": 0.95, "secrets": 0.3},
		trained: true,
		version: "v-abc",
	}
	o := testOrchestrator(ruleSet(), runner, predictor, &memRecorder{})

	res, err := o.Execute(context.Background(), testProvider(), core.ModePrioritized)
	require.NoError(t, err)

	assert.Equal(t, []string{"links", "secrets", "schema", "lint"}, runner.executed)
	assert.Equal(t, "v-abc", res.ModelVersion)
}

func TestExecuteFailFastOnCritical(t *testing.T) {
	rules := ruleSet()
	runner := &scriptRunner{fail: map[string]bool{"schema": true}}
	o := testOrchestrator(rules, runner, &scriptPredictor{}, &memRecorder{})

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)

	// schema is CRITICAL and second in fixed order: links and secrets never run.
	assert.Equal(t, []string{"lint", "schema"}, runner.executed)
	assert.True(t, res.Run.StoppedEarly)
	assert.Len(t, res.Run.Outcomes, 2)
	assert.Equal(t, 1, res.Run.FailedRules)
	assert.False(t, res.Run.Passed())
}

func TestExecuteNonCriticalFailureContinues(t *testing.T) {
	runner := &scriptRunner{fail: map[string]bool{"lint": true}}
	o := testOrchestrator(ruleSet(), runner, &scriptPredictor{}, &memRecorder{})

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)

	assert.Len(t, runner.executed, 4)
	assert.False(t, res.Run.StoppedEarly)
	assert.Equal(t, 1, res.Run.FailedRules)
}

func TestExecuteFailFastDisabled(t *testing.T) {
	runner := &scriptRunner{fail: map[string]bool{"schema": true}}
	o := testOrchestrator(ruleSet(), runner, &scriptPredictor{}, &memRecorder{})
	o.cfg.FailFast = false

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)

	assert.Len(t, runner.executed, 4)
	assert.False(t, res.Run.StoppedEarly)
}

func TestTimeToFirstFailure(t *testing.T) {
	runner := &scriptRunner{
		fail: map[string]bool{"links": true},
		duration: map[string]time.Duration{
			"lint":   100 * time.Millisecond,
			"schema": 200 * time.Millisecond,
			"links":  50 * time.Millisecond,
		},
	}
	o := testOrchestrator(ruleSet(), runner, &scriptPredictor{}, &memRecorder{})

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)

	assert.Equal(t, 350*time.Millisecond, res.Run.TimeToFirst)
}

func TestOutcomeOrderIndicesAreSequential(t *testing.T) {
	o := testOrchestrator(ruleSet(), &scriptRunner{}, &scriptPredictor{}, &memRecorder{})

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)

	for i, outcome := range res.Run.Outcomes {
		assert.Equal(t, int64(i+1), outcome.OrderIndex)
	}
}

func TestRecordRetriesOnce(t *testing.T) {
	recorder := &memRecorder{failures: 1}
	o := testOrchestrator(ruleSet(), &scriptRunner{}, &scriptPredictor{}, recorder)

	_, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)
	assert.Equal(t, 2, recorder.calls)
	assert.Len(t, recorder.recorded, 1)
}

func TestRecordFailureStillReturnsRun(t *testing.T) {
	recorder := &memRecorder{failures: 10}
	o := testOrchestrator(ruleSet(), &scriptRunner{}, &scriptPredictor{}, recorder)

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.Error(t, err)
	assert.True(t, core.IsPersistenceError(err))
	require.NotNil(t, res)
	assert.True(t, res.Run.Passed())
	assert.NotEqual(t, StateRecorded, o.State())
}

func TestExecuteUnknownMode(t *testing.T) {
	o := testOrchestrator(ruleSet(), &scriptRunner{}, &scriptPredictor{}, &memRecorder{})
	_, err := o.Execute(context.Background(), testProvider(), core.RunMode("random"))
	require.Error(t, err)
}

func TestFileChangesClassifiedOnRun(t *testing.T) {
	o := testOrchestrator(ruleSet(), &scriptRunner{}, &scriptPredictor{}, &memRecorder{})

	res, err := o.Execute(context.Background(), testProvider(), core.ModeFixed)
	require.NoError(t, err)

	require.Len(t, res.Run.Files, 2)
	assert.True(t, res.Run.Files[0].IsConfig)
	assert.True(t, res.Run.Files[1].IsSource)
}
