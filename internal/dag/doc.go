// Package dag builds and validates the step dependency graph: it links
// steps to their declared dependencies and rejects cycles or references to
// unknown steps before any execution happens.
//
// Nodes and edges are built in two passes (register every node, then wire
// edges from DependsOn) so an edge referencing an unregistered node is
// always a reportable error rather than a silent no-op, and cycles are
// caught by Kahn's topological sort (nodes left unordered) before anything
// runs.
package dag
