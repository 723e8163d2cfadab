package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/triage/internal/changeset"
	"github.com/roach88/triage/internal/core"
)

// State is the orchestrator's position in the run lifecycle. Transitions are
// strictly forward; a new run starts a new pass through the machine.
type State string

const (
	StateIdle             State = "IDLE"
	StateContextCollected State = "CONTEXT_COLLECTED"
	StatePrioritized      State = "PRIORITIZED"
	StateExecuting        State = "EXECUTING"
	StateCompleted        State = "COMPLETED"
	StateStoppedEarly     State = "STOPPED_EARLY"
	StateRecorded         State = "RECORDED"
)

// Predictor scores rules for a change context. Satisfied by model.Predictor.
type Predictor interface {
	Predict(ctx context.Context, change core.ChangeContext, rules []core.Rule) (map[string]float64, error)
	Trained() bool
	Version() string
}

// Recorder persists finished runs. Satisfied by store.Store.
type Recorder interface {
	RecordRun(ctx context.Context, run *core.ValidationRun) error
}

// DiscardRecorder drops runs instead of persisting them, for passes that
// must not pollute history.
type DiscardRecorder struct{}

// RecordRun implements Recorder.
func (DiscardRecorder) RecordRun(context.Context, *core.ValidationRun) error {
	return nil
}

// Result is one finished validation pass with its ordering rationale.
type Result struct {
	Run    *core.ValidationRun
	Order  []core.Rule
	Scores map[string]float64

	// PredictionTime is the ordering overhead, kept separate from rule
	// execution time so overhead is visible rather than buried in totals.
	PredictionTime time.Duration

	// ModelVersion is the snapshot that scored this run, or "" when the
	// failure-rate fallback ordered it.
	ModelVersion string
}

// Orchestrator drives one validation run end to end: collect, order,
// execute, record.
type Orchestrator struct {
	rules     []core.Rule
	predictor Predictor
	runner    Runner
	recorder  Recorder
	cfg       core.Config
	log       *slog.Logger

	state State

	// Injection points for deterministic tests.
	now   func() time.Time
	newID func() string
}

// New constructs an orchestrator over a compiled rule set.
func New(rules []core.Rule, predictor Predictor, runner Runner, recorder Recorder, cfg core.Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		rules:     rules,
		predictor: predictor,
		runner:    runner,
		recorder:  recorder,
		cfg:       cfg,
		log:       log,
		state:     StateIdle,
		now:       time.Now,
		newID:     newRunID,
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return o.state
}

// Execute runs the full lifecycle for one change set. The run is recorded
// with one retry; if persistence still fails, the in-memory result is
// returned together with a core.PersistenceError so the caller can warn
// without losing the verdict.
func (o *Orchestrator) Execute(ctx context.Context, provider changeset.Provider, mode core.RunMode) (*Result, error) {
	o.state = StateIdle

	change, err := provider.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect change context: %w", err)
	}
	o.state = StateContextCollected

	res := &Result{}
	switch mode {
	case core.ModeFixed:
		res.Order = FixedOrder(o.rules)
	case core.ModePrioritized:
		start := time.Now()
		scores, err := o.predictor.Predict(ctx, change, o.rules)
		if err != nil {
			return nil, fmt.Errorf("predict failure probabilities: %w", err)
		}
		res.PredictionTime = time.Since(start)
		res.Scores = scores
		res.Order = Prioritize(o.rules, scores, o.cfg.NeutralPrior)
		res.ModelVersion = o.predictor.Version()
	default:
		return nil, fmt.Errorf("unknown run mode %q", mode)
	}
	o.state = StatePrioritized

	res.Run = o.executeRules(ctx, res.Order, change, mode)
	if res.Run.StoppedEarly {
		o.state = StateStoppedEarly
	} else {
		o.state = StateCompleted
	}

	if err := o.record(ctx, res.Run); err != nil {
		return res, err
	}
	o.state = StateRecorded
	return res, nil
}

// executeRules runs the ordered rules sequentially. A CRITICAL failure with
// fail-fast enabled halts the pass; rules after the halt never execute and
// do not appear in the run.
func (o *Orchestrator) executeRules(ctx context.Context, ordered []core.Rule, change core.ChangeContext, mode core.RunMode) *core.ValidationRun {
	o.state = StateExecuting

	run := &core.ValidationRun{
		ID:         o.newID(),
		CommitID:   change.CommitID,
		Author:     change.Author,
		Timestamp:  o.now().UTC(),
		Mode:       mode,
		Files:      core.ClassifyFiles(change.Files),
		TotalRules: len(ordered),
	}

	clock := NewClock()
	for _, rule := range ordered {
		if ctx.Err() != nil {
			o.log.Warn("run interrupted", "rule", rule.ID, "error", ctx.Err())
			run.StoppedEarly = true
			break
		}

		outcome := o.runner.Run(ctx, rule)
		outcome.OrderIndex = clock.Next()
		run.Outcomes = append(run.Outcomes, outcome)
		run.TotalTime += outcome.Duration

		if outcome.Passed {
			o.log.Debug("rule passed", "rule", rule.ID, "duration", outcome.Duration)
			continue
		}

		run.FailedRules++
		if run.TimeToFirst == 0 {
			run.TimeToFirst = run.TotalTime
		}
		o.log.Info("rule failed",
			"rule", rule.ID,
			"severity", rule.Severity.String(),
			"duration", outcome.Duration,
		)

		if o.cfg.FailFast && rule.Severity == core.SeverityCritical {
			o.log.Warn("halting on critical failure", "rule", rule.ID)
			run.StoppedEarly = true
			break
		}
	}

	return run
}

// record persists the run, retrying once.
func (o *Orchestrator) record(ctx context.Context, run *core.ValidationRun) error {
	err := o.recorder.RecordRun(ctx, run)
	if err == nil {
		return nil
	}

	o.log.Warn("history write failed, retrying", "run", run.ID, "error", err)
	if err = o.recorder.RecordRun(ctx, run); err == nil {
		return nil
	}
	return &core.PersistenceError{Op: "record run", Err: err}
}
