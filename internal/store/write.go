package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/triage/internal/core"
)

// RecordRun persists a ValidationRun with all its outcomes, file-change
// records, and co-occurrence increments as a single transaction: either the
// entire run is visible to readers or none of it is.
//
// Duplicate run ids are rejected; every run id is minted fresh by the
// orchestrator.
func (s *Store) RecordRun(ctx context.Context, run *core.ValidationRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_runs
		(id, commit_id, author, ts, mode, total_rules, failed_rules, total_time_ms, ttff_ms, stopped_early)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CommitID,
		run.Author,
		run.Timestamp.UTC().UnixMilli(),
		string(run.Mode),
		run.TotalRules,
		run.FailedRules,
		run.TotalTime.Milliseconds(),
		run.TimeToFirst.Milliseconds(),
		boolToInt(run.StoppedEarly),
	)
	if err != nil {
		return fmt.Errorf("record run: insert run: %w", err)
	}

	for _, o := range run.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_outcomes
			(run_id, rule_id, passed, duration_ms, severity, message, evidence, order_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			o.RuleID,
			boolToInt(o.Passed),
			o.Duration.Milliseconds(),
			o.Severity.String(),
			o.Message,
			o.Evidence,
			o.OrderIndex,
		)
		if err != nil {
			return fmt.Errorf("record run: insert outcome %s: %w", o.RuleID, err)
		}
	}

	for _, f := range run.Files {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO file_changes
			(run_id, path, extension, is_config, is_markup, is_source, is_workflow, is_test)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			f.Path,
			f.Extension,
			boolToInt(f.IsConfig),
			boolToInt(f.IsMarkup),
			boolToInt(f.IsSource),
			boolToInt(f.IsWorkflow),
			boolToInt(f.IsTest),
		)
		if err != nil {
			return fmt.Errorf("record run: insert file change %s: %w", f.Path, err)
		}
	}

	if err := recordCoOccurrences(ctx, tx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}

	return nil
}

// recordCoOccurrences increments the aggregate count for every unordered
// pair of rules that failed in this run. Pairs are stored canonically with
// the smaller id first, so (A,B) and (B,A) always hit the same row.
func recordCoOccurrences(ctx context.Context, tx *sql.Tx, run *core.ValidationRun) error {
	failed := failedRuleIDs(run)
	if len(failed) < 2 {
		return nil
	}

	lastSeen := run.Timestamp.UTC().UnixMilli()
	for i := 0; i < len(failed); i++ {
		for j := i + 1; j < len(failed); j++ {
			// failed is sorted, so failed[i] < failed[j] holds.
			_, err := tx.ExecContext(ctx, `
				INSERT INTO failure_cooccurrence (rule_a, rule_b, count, last_seen)
				VALUES (?, ?, 1, ?)
				ON CONFLICT(rule_a, rule_b) DO UPDATE SET
					count = count + 1,
					last_seen = excluded.last_seen
			`, failed[i], failed[j], lastSeen)
			if err != nil {
				return fmt.Errorf("co-occurrence %s/%s: %w", failed[i], failed[j], err)
			}
		}
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// failedRuleIDs returns the sorted, de-duplicated ids of failed rules in a run.
func failedRuleIDs(run *core.ValidationRun) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, o := range run.Outcomes {
		if !o.Passed && !seen[o.RuleID] {
			seen[o.RuleID] = true
			ids = append(ids, o.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

// RecordSnapshot appends a model snapshot row. Prior snapshots are never
// mutated; the latest pointer is published separately via PublishLatest.
func (s *Store) RecordSnapshot(ctx context.Context, snap *core.ModelSnapshot) error {
	metricsJSON, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("record snapshot: marshal metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_snapshots
		(version, strategy, sample_count, accuracy, f1, fnr, metrics, artifact_path, trained_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version) DO NOTHING
	`,
		snap.Version,
		snap.Strategy,
		snap.SampleCount,
		snap.Metrics.Accuracy,
		snap.Metrics.F1,
		snap.Metrics.FalseNegativeRate,
		string(metricsJSON),
		snap.ArtifactPath,
		snap.TrainedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	return nil
}

// PublishLatest atomically repoints the latest-snapshot pointer at an
// already-recorded snapshot version. Publishing an unknown version fails the
// foreign key check, so a half-persisted snapshot can never become latest.
func (s *Store) PublishLatest(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO latest_snapshot (id, version, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at
	`, version, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("publish latest: %w", err)
	}
	return nil
}
