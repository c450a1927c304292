// Package jobstate implements the per-step façade steps use to read and
// write shared run state: the graph object store, the process-wide
// duplicate-key and type trackers, the shared key/value data store, and the
// optional upload sink.
//
// Trackers and the data store are run-scoped singletons threaded explicitly
// through an Engine value rather than held as package-level globals, so two
// concurrent runs in the same process never share state.
package jobstate
