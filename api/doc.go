// Package api provides the Arrow IPC serving surface of the zipper.
// This package implements:
// - Length-prefixed IPC message framing
// - The zip handler (flat batch in, nested tree batch out)
// - A TCP server and Prometheus metrics
package api
