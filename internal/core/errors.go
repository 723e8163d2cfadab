package core

import (
	"errors"
	"fmt"
)

// InsufficientDataError reports a training corpus below the minimum sample
// count. This is an expected outcome, not an exceptional one: callers branch
// on it with IsInsufficientData rather than aborting.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: have %d runs, need %d", e.Have, e.Need)
}

// IsInsufficientData returns true if the error is an InsufficientDataError.
// Uses errors.As to handle wrapped errors.
func IsInsufficientData(err error) bool {
	var ide *InsufficientDataError
	return errors.As(err, &ide)
}

// RuleExecutionError reports a non-zero exit, crash, or timeout of an
// external rule invocation. The orchestrator records it as a failed outcome;
// it never propagates as an orchestrator-level error.
type RuleExecutionError struct {
	RuleID   string
	ExitCode int
	TimedOut bool
	Message  string
}

func (e *RuleExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("rule %s timed out", e.RuleID)
	}
	return fmt.Sprintf("rule %s failed (exit %d): %s", e.RuleID, e.ExitCode, e.Message)
}

// PersistenceError reports a history store write that could not complete
// after one retry. The in-memory run result remains valid when this occurs.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError returns true if the error is a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ModelLoadError reports a missing, corrupt, or schema-incompatible model
// artifact. The predictor falls back to historical failure rates when one
// occurs; a run is never blocked by it.
type ModelLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ModelLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model load failed for %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("model load failed for %s: %s", e.Path, e.Reason)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// IsModelLoadError returns true if the error is a ModelLoadError.
func IsModelLoadError(err error) bool {
	var mle *ModelLoadError
	return errors.As(err, &mle)
}
