package kernels

import "fmt"

// CountsToOffsets converts per-record counts into a cumulative offsets array.
// The result has len(counts)+1 entries, starts at 0 and ends at the total
// count. Negative counts fail with ErrDataShape.
//
// Offsets for a given counts column should be derived once and reused;
// see OffsetsCache.
func CountsToOffsets(counts []int64) ([]int64, error) {
	offsets := make([]int64, len(counts)+1)
	for i, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("%w: negative count %d at record %d", ErrDataShape, c, i)
		}
		offsets[i+1] = offsets[i] + c
	}
	return offsets, nil
}

// OffsetsCache memoizes derived offsets per counts-column identity for one
// zip invocation. Several cross-references may share a target collection, and
// the target's offsets must be computed once, not per consumer.
//
// The cache is per-invocation state; it is created by the caller and discarded
// when the invocation completes.
type OffsetsCache struct {
	derived map[string][]int64
}

// NewOffsetsCache creates an empty offsets cache.
func NewOffsetsCache() *OffsetsCache {
	return &OffsetsCache{derived: make(map[string][]int64)}
}

// Get returns the offsets for the counts column identified by key, deriving
// them on first use.
func (c *OffsetsCache) Get(key string, counts []int64) ([]int64, error) {
	if offsets, ok := c.derived[key]; ok {
		return offsets, nil
	}
	offsets, err := CountsToOffsets(counts)
	if err != nil {
		return nil, err
	}
	c.derived[key] = offsets
	return offsets, nil
}
