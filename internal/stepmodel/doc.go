// Package stepmodel defines the declarative data model shared by every
// other package in this module: steps, their start states and results, and
// the graph objects (entities and relationships) a step produces.
//
// Nothing in this package executes anything; it is the vocabulary the
// dag, jobstate, scheduler, cache and sync packages are built on.
package stepmodel
