package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/triage/internal/core"
)

// RuleFailureRate returns the empirical failure rate and mean execution time
// over the most recent limit outcomes for a rule. With no recorded history
// it returns the configured neutral priors rather than erroring.
func (s *Store) RuleFailureRate(ctx context.Context, ruleID string, limit int) (rate float64, avgTime time.Duration, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT passed, duration_ms
		FROM rule_outcomes
		WHERE rule_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, ruleID, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("rule failure rate: %w", err)
	}
	defer rows.Close()

	var total, failed int
	var totalMs int64
	for rows.Next() {
		var passed int
		var durationMs int64
		if err := rows.Scan(&passed, &durationMs); err != nil {
			return 0, 0, fmt.Errorf("rule failure rate: scan: %w", err)
		}
		total++
		totalMs += durationMs
		if passed == 0 {
			failed++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("rule failure rate: iterate: %w", err)
	}

	if total == 0 {
		return s.priors.FailureRate, s.priors.Latency, nil
	}

	rate = float64(failed) / float64(total)
	avgTime = time.Duration(totalMs/int64(total)) * time.Millisecond
	return rate, avgTime, nil
}

// FilePatternCorrelation returns the empirical failure rate of a rule
// restricted to past runs whose changed files included any of the given
// extensions. Falls back to the neutral prior when no such runs exist.
func (s *Store) FilePatternCorrelation(ctx context.Context, extensions []string, ruleID string) (float64, error) {
	if len(extensions) == 0 {
		return s.priors.FailureRate, nil
	}

	placeholders := strings.Repeat("?,", len(extensions))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(extensions)+1)
	args = append(args, ruleID)
	for _, ext := range extensions {
		args = append(args, ext)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN o.passed = 0 THEN 1 ELSE 0 END), 0)
		FROM rule_outcomes o
		WHERE o.rule_id = ?
		  AND o.run_id IN (SELECT DISTINCT run_id FROM file_changes WHERE extension IN (%s))
	`, placeholders)

	var total, failed int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total, &failed); err != nil {
		return 0, fmt.Errorf("file pattern correlation: %w", err)
	}

	if total == 0 {
		return s.priors.FailureRate, nil
	}
	return float64(failed) / float64(total), nil
}

// CoOccurringFailures returns the top rules that have failed together with
// the given rule, ordered by count descending then rule id for determinism.
// Symmetric regardless of which side of the canonical pair the rule sits on.
func (s *Store) CoOccurringFailures(ctx context.Context, ruleID string, limit int) ([]core.CoFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN rule_a = ? THEN rule_b ELSE rule_a END AS other, count
		FROM failure_cooccurrence
		WHERE rule_a = ? OR rule_b = ?
		ORDER BY count DESC, other ASC
		LIMIT ?
	`, ruleID, ruleID, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("co-occurring failures: %w", err)
	}
	defer rows.Close()

	cofailures := []core.CoFailure{}
	for rows.Next() {
		var cf core.CoFailure
		if err := rows.Scan(&cf.RuleID, &cf.Count); err != nil {
			return nil, fmt.Errorf("co-occurring failures: scan: %w", err)
		}
		cofailures = append(cofailures, cf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("co-occurring failures: iterate: %w", err)
	}

	return cofailures, nil
}

// RunCount returns the total number of recorded validation runs.
func (s *Store) RunCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM validation_runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("run count: %w", err)
	}
	return n, nil
}

// TrainingCorpus returns a structured dump of runs, outcomes, and file
// patterns sufficient for feature re-extraction. Returns a typed
// InsufficientDataError when fewer than minSamples runs are recorded.
func (s *Store) TrainingCorpus(ctx context.Context, minSamples int) (*core.Corpus, error) {
	n, err := s.RunCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("training corpus: %w", err)
	}
	if n < minSamples {
		return nil, &core.InsufficientDataError{Have: n, Need: minSamples}
	}

	runs, err := s.readRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("training corpus: %w", err)
	}

	for i := range runs {
		outcomes, err := s.readOutcomes(ctx, runs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("training corpus: %w", err)
		}
		files, err := s.readFileChanges(ctx, runs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("training corpus: %w", err)
		}
		runs[i].Outcomes = outcomes
		runs[i].Files = files
	}

	return &core.Corpus{Runs: runs}, nil
}

// readRuns returns all validation runs in recording order.
func (s *Store) readRuns(ctx context.Context) ([]core.ValidationRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, commit_id, author, ts, mode, total_rules, failed_rules, total_time_ms, ttff_ms, stopped_early
		FROM validation_runs
		ORDER BY ts ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []core.ValidationRun
	for rows.Next() {
		var run core.ValidationRun
		var ts, totalMs, ttffMs int64
		var mode string
		var stoppedEarly int
		if err := rows.Scan(&run.ID, &run.CommitID, &run.Author, &ts, &mode,
			&run.TotalRules, &run.FailedRules, &totalMs, &ttffMs, &stoppedEarly); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Timestamp = time.UnixMilli(ts).UTC()
		run.Mode = core.RunMode(mode)
		run.TotalTime = time.Duration(totalMs) * time.Millisecond
		run.TimeToFirst = time.Duration(ttffMs) * time.Millisecond
		run.StoppedEarly = stoppedEarly != 0
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	if runs == nil {
		runs = []core.ValidationRun{}
	}
	return runs, nil
}

// readOutcomes returns a run's outcomes ordered by execution order index.
func (s *Store) readOutcomes(ctx context.Context, runID string) ([]core.RuleOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, passed, duration_ms, severity, message, evidence, order_index
		FROM rule_outcomes
		WHERE run_id = ?
		ORDER BY order_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []core.RuleOutcome{}
	for rows.Next() {
		var o core.RuleOutcome
		var passed int
		var durationMs int64
		var severity string
		if err := rows.Scan(&o.RuleID, &passed, &durationMs, &severity, &o.Message, &o.Evidence, &o.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Passed = passed != 0
		o.Duration = time.Duration(durationMs) * time.Millisecond
		sev, err := core.ParseSeverity(severity)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Severity = sev
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}

	return outcomes, nil
}

// readFileChanges returns a run's file-change records in insertion order.
func (s *Store) readFileChanges(ctx context.Context, runID string) ([]core.FileChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, extension, is_config, is_markup, is_source, is_workflow, is_test
		FROM file_changes
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query file changes: %w", err)
	}
	defer rows.Close()

	files := []core.FileChangeRecord{}
	for rows.Next() {
		var f core.FileChangeRecord
		var isConfig, isMarkup, isSource, isWorkflow, isTest int
		if err := rows.Scan(&f.Path, &f.Extension, &isConfig, &isMarkup, &isSource, &isWorkflow, &isTest); err != nil {
			return nil, fmt.Errorf("scan file change: %w", err)
		}
		f.IsConfig = isConfig != 0
		f.IsMarkup = isMarkup != 0
		f.IsSource = isSource != 0
		f.IsWorkflow = isWorkflow != 0
		f.IsTest = isTest != 0
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file changes: %w", err)
	}

	return files, nil
}

// LatestSnapshot returns the currently published model snapshot, or nil when
// none has been published yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*core.ModelSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.version, m.strategy, m.sample_count, m.metrics, m.artifact_path, m.trained_at
		FROM latest_snapshot l
		JOIN model_snapshots m ON m.version = l.version
		WHERE l.id = 1
	`)

	snap, err := scanSnapshot(row)
	if err != nil {
		if errNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// Snapshot returns a specific snapshot by version, or nil when unknown.
func (s *Store) Snapshot(ctx context.Context, version string) (*core.ModelSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, strategy, sample_count, metrics, artifact_path, trained_at
		FROM model_snapshots
		WHERE version = ?
	`, version)

	snap, err := scanSnapshot(row)
	if err != nil {
		if errNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

func scanSnapshot(row *sql.Row) (*core.ModelSnapshot, error) {
	var snap core.ModelSnapshot
	var metricsJSON string
	var trainedAt int64
	if err := row.Scan(&snap.Version, &snap.Strategy, &snap.SampleCount, &metricsJSON, &snap.ArtifactPath, &trainedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metricsJSON), &snap.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	snap.TrainedAt = time.UnixMilli(trainedAt).UTC()
	return &snap, nil
}

// RuleFailureCount pairs a rule id with its total recorded failures.
type RuleFailureCount struct {
	RuleID   string `json:"rule_id"`
	Failures int64  `json:"failures"`
}

// Stats is the operational-visibility aggregate over the whole store.
type Stats struct {
	TotalRuns     int                 `json:"total_runs"`
	TotalOutcomes int                 `json:"total_outcomes"`
	FailedRuns    int                 `json:"failed_runs"`
	AvgTimeToFail time.Duration       `json:"avg_time_to_first_failure"`
	TopFailing    []RuleFailureCount  `json:"top_failing_rules"`
	Latest        *core.ModelSnapshot `json:"latest_snapshot,omitempty"`
}

// AggregateStats computes run totals, the average time-to-first-failure over
// failing runs, the top-failing rules, and the latest snapshot summary.
func (s *Store) AggregateStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN failed_rules > 0 THEN 1 ELSE 0 END), 0)
		FROM validation_runs
	`).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: runs: %w", err)
	}

	var avgTTFF float64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(ttff_ms), 0) FROM validation_runs WHERE failed_rules > 0
	`).Scan(&avgTTFF)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: ttff: %w", err)
	}
	stats.AvgTimeToFail = time.Duration(avgTTFF) * time.Millisecond

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_outcomes`).Scan(&stats.TotalOutcomes)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: outcomes: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, COUNT(*) AS failures
		FROM rule_outcomes
		WHERE passed = 0
		GROUP BY rule_id
		ORDER BY failures DESC, rule_id ASC
		LIMIT 5
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: top failing: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rfc RuleFailureCount
		if err := rows.Scan(&rfc.RuleID, &rfc.Failures); err != nil {
			return nil, fmt.Errorf("aggregate stats: scan: %w", err)
		}
		stats.TopFailing = append(stats.TopFailing, rfc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate stats: iterate: %w", err)
	}

	latest, err := s.LatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	stats.Latest = latest

	return stats, nil
}
