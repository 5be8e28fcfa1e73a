// Package kernels provides the flat-buffer index transforms the zipper is
// built on.
// This package implements:
// - Counts to offsets derivation (jagged addressing primitive)
// - Local to global index rebasing
// - Nested index construction (positional tuple pairing)
// - Generator-tree kernels (children, distinct parent, distinct children)
package kernels
