// Package data provides the flat column bundle the zipper consumes.
// This package implements:
// - Flat and jagged (counts + values) Arrow-backed columns
// - Bundle assembly with shape validation
// - Decomposition of Arrow IPC record batches into bundles
package data
