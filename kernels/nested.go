package kernels

import "fmt"

// NestedIndex pairs two or more correlated index arrays positionally into
// fixed-arity tuples, preserving per-record jaggedness.
//
// All inputs must share per-record cardinality or the call fails with
// ErrShapeMismatch. Sentinel entries are kept in their tuple slot, not
// dropped, so consumers can detect partial matches.
//
// Example: [[0, 2, 4], [8, 6]] and [[1, 3, 5], [-1, 7]] yield
// [[[0, 1], [2, 3], [4, 5]], [[8, -1], [6, 7]]].
func NestedIndex(indices ...Jagged) (Nested, error) {
	if len(indices) < 2 {
		return Nested{}, fmt.Errorf("%w: nested index needs at least 2 arrays, got %d",
			ErrShapeMismatch, len(indices))
	}
	first := indices[0]
	for i, idx := range indices[1:] {
		if !sameShape(first, idx) {
			return Nested{}, fmt.Errorf("%w: nested index array %d does not match array 0",
				ErrShapeMismatch, i+1)
		}
	}

	arity := int64(len(indices))
	entries := int64(len(first.Content))

	// Interleave the flat contents: tuple j holds entry j of every input.
	content := make([]int64, arity*entries)
	for i, idx := range indices {
		for j, v := range idx.Content {
			content[int64(j)*arity+int64(i)] = v
		}
	}
	inner := make([]int64, entries+1)
	for j := range inner {
		inner[j] = int64(j) * arity
	}

	return Nested{
		Offsets: append([]int64(nil), first.Offsets...),
		Inner:   Jagged{Offsets: inner, Content: content},
	}, nil
}

// CountsToNestedIndex turns jagged local counts into a doubly-jagged global
// index into the target collection: consecutive global positions 0..total are
// split by the flattened local counts and regrouped by the counts' own
// offsets.
//
// Example: local counts [[4, 3, 2], [4, 2]] with target counts [9, 6] yield
// [[[0, 1, 2, 3], [4, 5, 6], [7, 8]], [[9, 10, 11, 12], [13, 14]]].
func CountsToNestedIndex(localCounts Jagged, targetCounts []int64) (Nested, error) {
	targetOffsets, err := CountsToOffsets(targetCounts)
	if err != nil {
		return Nested{}, err
	}
	inner, err := CountsToOffsets(localCounts.Content)
	if err != nil {
		return Nested{}, err
	}
	total := targetOffsets[len(targetOffsets)-1]
	if inner[len(inner)-1] != total {
		return Nested{}, fmt.Errorf("%w: local counts sum to %d but target holds %d items",
			ErrShapeMismatch, inner[len(inner)-1], total)
	}

	content := make([]int64, total)
	for i := range content {
		content[i] = int64(i)
	}
	return Nested{
		Offsets: append([]int64(nil), localCounts.Offsets...),
		Inner:   Jagged{Offsets: inner, Content: content},
	}, nil
}
