package core

import (
	"fmt"
	"time"
)

// Severity is the ordinal priority of a rule: CRITICAL > HIGH > MEDIUM.
// Used for fail-fast decisions and as a prioritization tie-breaker.
type Severity int

const (
	SeverityMedium Severity = iota
	SeverityHigh
	SeverityCritical
)

// ValidSeverities defines allowed severity names in registry files.
var ValidSeverities = []string{"CRITICAL", "HIGH", "MEDIUM"}

// String returns the canonical upper-case name.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Rank returns the ordering weight used for tie-breaking (higher runs first).
func (s Severity) Rank() int {
	return int(s)
}

// ParseSeverity converts a registry string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "CRITICAL":
		return SeverityCritical, nil
	case "HIGH":
		return SeverityHigh, nil
	case "MEDIUM":
		return SeverityMedium, nil
	default:
		return 0, fmt.Errorf("invalid severity %q: must be one of %v", s, ValidSeverities)
	}
}

// RuleCategory is a closed enumeration of rule kinds, resolved once at
// registry load time. Behavior never dispatches on free-text descriptions.
type RuleCategory int

const (
	CategoryCompliance RuleCategory = iota
	CategoryStructure
	CategoryContent
	CategoryWorkflow
	CategorySecurity
)

// ValidCategories defines allowed category names in registry files.
var ValidCategories = []string{"compliance", "structure", "content", "workflow", "security"}

func (c RuleCategory) String() string {
	switch c {
	case CategoryCompliance:
		return "compliance"
	case CategoryStructure:
		return "structure"
	case CategoryContent:
		return "content"
	case CategoryWorkflow:
		return "workflow"
	case CategorySecurity:
		return "security"
	default:
		return fmt.Sprintf("RuleCategory(%d)", int(c))
	}
}

// ParseCategory converts a registry string to a RuleCategory.
func ParseCategory(s string) (RuleCategory, error) {
	switch s {
	case "compliance":
		return CategoryCompliance, nil
	case "structure":
		return CategoryStructure, nil
	case "content":
		return CategoryContent, nil
	case "workflow":
		return CategoryWorkflow, nil
	case "security":
		return CategorySecurity, nil
	default:
		return 0, fmt.Errorf("invalid category %q: must be one of %v", s, ValidCategories)
	}
}

// Rule is one externally defined validation unit. The engine invokes the
// command but never interprets what the rule checks.
type Rule struct {
	ID       string        `json:"id"`
	Category RuleCategory  `json:"category"`
	Command  []string      `json:"command"` // argv, Command[0] is the executable
	Severity Severity      `json:"severity"`
	Timeout  time.Duration `json:"timeout"`

	// Order is the declaration position in the registry. It defines
	// fixed-mode execution order and the final prioritization tie-breaker.
	Order int `json:"order"`
}

// ChangeContext is the tuple supplied by the VCS collaborator.
type ChangeContext struct {
	Files     []string  `json:"files"`
	Author    string    `json:"author"`
	CommitID  string    `json:"commit_id"`
	Timestamp time.Time `json:"timestamp"`
}

// FileChangeRecord is one changed file as persisted with a run. The
// classification flags feed feature correlation only, never correctness.
type FileChangeRecord struct {
	Path       string `json:"path"`
	Extension  string `json:"extension"`
	IsConfig   bool   `json:"is_config"`
	IsMarkup   bool   `json:"is_markup"`
	IsSource   bool   `json:"is_source"`
	IsWorkflow bool   `json:"is_workflow"`
	IsTest     bool   `json:"is_test"`
}

// RuleOutcome is the recorded result of one rule invocation within a run.
// OrderIndex is unique within the run and reflects actual execution order.
type RuleOutcome struct {
	RuleID     string        `json:"rule_id"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration"`
	Severity   Severity      `json:"severity"`
	Message    string        `json:"message,omitempty"`
	Evidence   string        `json:"evidence,omitempty"`
	OrderIndex int64         `json:"order_index"`
}

// RunMode identifies how the rule order was chosen for a run.
type RunMode string

const (
	ModeFixed       RunMode = "fixed"
	ModePrioritized RunMode = "prioritized"
)

// ValidationRun is one execution pass of the rule set against a change-set.
// Immutable once recorded; owned exclusively by the history store.
type ValidationRun struct {
	ID           string             `json:"id"`
	CommitID     string             `json:"commit_id"`
	Author       string             `json:"author"`
	Timestamp    time.Time          `json:"timestamp"`
	Mode         RunMode            `json:"mode"`
	Files        []FileChangeRecord `json:"files"`
	Outcomes     []RuleOutcome      `json:"outcomes"`
	TotalRules   int                `json:"total_rules"`
	FailedRules  int                `json:"failed_rules"`
	TotalTime    time.Duration      `json:"total_time"`
	TimeToFirst  time.Duration      `json:"time_to_first_failure"` // zero when no rule failed
	StoppedEarly bool               `json:"stopped_early"`
}

// Passed reports whether every executed rule passed.
func (r *ValidationRun) Passed() bool {
	return r.FailedRules == 0
}

// CoOccurrence is an aggregate over runs in which two rules failed together.
// Stored canonically with RuleA < RuleB so (A,B) and (B,A) never both exist.
type CoOccurrence struct {
	RuleA    string    `json:"rule_a"`
	RuleB    string    `json:"rule_b"`
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Metrics is the full evaluation set produced by training.
type Metrics struct {
	Accuracy          float64 `json:"accuracy"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1                float64 `json:"f1"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	FalseNegativeRate float64 `json:"false_negative_rate"`

	// Confusion matrix counts over the holdout split.
	TruePositives  int `json:"true_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`

	// FeatureImportance is ranked highest first. Populated by the ensemble
	// strategy only.
	FeatureImportance []FeatureWeight `json:"feature_importance,omitempty"`
}

// FeatureWeight pairs a feature name with its importance or coefficient.
type FeatureWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Corpus is a structured dump of recorded history sufficient for feature
// re-extraction during training.
type Corpus struct {
	Runs []ValidationRun `json:"runs"`
}

// SampleCount returns the number of recorded runs in the corpus.
func (c *Corpus) SampleCount() int {
	return len(c.Runs)
}

// CoFailure is one co-failing rule with its aggregate count, as returned by
// co-occurrence queries.
type CoFailure struct {
	RuleID string `json:"rule_id"`
	Count  int64  `json:"count"`
}

// ModelSnapshot is a versioned, immutable trained model artifact reference
// with its metrics. Snapshots are never deleted; a separate latest pointer
// selects the active one.
type ModelSnapshot struct {
	Version      string    `json:"version"`
	Strategy     string    `json:"strategy"`
	SampleCount  int       `json:"sample_count"`
	Metrics      Metrics   `json:"metrics"`
	ArtifactPath string    `json:"artifact_path"`
	TrainedAt    time.Time `json:"trained_at"`
}
