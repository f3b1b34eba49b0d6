// Package dag provides a small, concurrency-safe directed acyclic graph keyed
// by string IDs. It is used to validate job dependency lists, to order jobs
// for the scheduler DAG file, and to drive the local executor.
//
// An edge from -> to means "to depends on from": from must complete before
// to may start.
package dag
