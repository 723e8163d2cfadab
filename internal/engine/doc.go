// Package engine runs validation passes: it collects the change context,
// orders rules (fixed or model-prioritized), executes them sequentially as
// external commands, and records the finished run in the history store.
//
// Every outcome is stamped with a strictly increasing order index from a
// monotonic logical clock, so recorded execution order never depends on
// wall-clock resolution.
package engine
