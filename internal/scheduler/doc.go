// Package scheduler drives the step dependency graph built by internal/dag
// to completion: it clones the graph, runs leaves with a bounded-concurrency
// work queue, propagates dependency failure and disabled-barrier status to
// dependents, invokes the cache loader when a step's start state names one,
// and returns the ordered result vector.
//
// Each dispatched step runs in its own goroutine and reports back on a
// completion channel; a single coordinating loop counts in-flight steps
// against the concurrency cap. The run only stops early on errors marked
// stepmodel.Fatal. An ordinary
// step failure does not cancel the run — it flows through to
// PARTIAL_SUCCESS_DUE_TO_DEPENDENCY_FAILURE on that step's dependents
// instead of skipping the rest of the graph outright.
package scheduler
