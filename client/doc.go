// Package client provides a Go client for the zipper server along with
// the Arrow IPC codec the wire format uses.
package client
