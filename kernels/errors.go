package kernels

import "errors"

// Common errors for kernel operations
var (
	// ErrDataShape indicates malformed counts (negative entries) or a
	// counts/values length mismatch.
	ErrDataShape = errors.New("malformed data shape")

	// ErrIndexRange indicates a local index that falls outside its record's
	// sub-range in the target collection once globalized.
	ErrIndexRange = errors.New("index out of range")

	// ErrShapeMismatch indicates jagged inputs that do not share per-record
	// cardinality.
	ErrShapeMismatch = errors.New("jagged shape mismatch")
)
