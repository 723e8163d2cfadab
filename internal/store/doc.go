// Package store persists validation history in SQLite.
//
// The schema is append-only: runs, outcomes, file changes, and model
// snapshots are inserted once and never updated or deleted, which keeps the
// training corpus reproducible and tamper-evident. The one mutable row is
// the latest-snapshot pointer, which is only ever repointed at a fully
// committed snapshot.
//
// Read queries never fail on missing history; they degrade to configured
// neutral priors so the orchestrator is never blocked by an empty store.
package store
