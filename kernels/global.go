package kernels

import "fmt"

// LocalToGlobal converts a jagged array of record-local reference indices
// into indices valid against the target collection's flattened content.
//
// targetCounts describes the target collection's per-record population; the
// index array must span the same number of records. Entries equal to sentinel
// pass through unchanged. Any other entry e must satisfy 0 <= e <
// targetCounts[i] and is rebased to targetOffsets[i] + e; everything else
// fails with ErrIndexRange.
//
// The output has exactly the jaggedness of the input: entries are rewritten,
// never added, dropped or reordered.
//
// Example: index [[], [1], [], [2, 3]] with target counts [8, 7, 4, 7]
// yields [[], [9], [], [21, 22]] (21 = 8+7+4+2).
func LocalToGlobal(index Jagged, targetCounts []int64, sentinel int64) (Jagged, error) {
	if index.NumRecords() != len(targetCounts) {
		return Jagged{}, fmt.Errorf("%w: index spans %d records, target counts %d",
			ErrShapeMismatch, index.NumRecords(), len(targetCounts))
	}
	offsets, err := CountsToOffsets(targetCounts)
	if err != nil {
		return Jagged{}, err
	}
	return localToGlobal(index, offsets, sentinel)
}

// LocalToGlobalOffsets is LocalToGlobal with the target offsets already
// derived (e.g. from an OffsetsCache).
func LocalToGlobalOffsets(index Jagged, targetOffsets []int64, sentinel int64) (Jagged, error) {
	if index.NumRecords() != len(targetOffsets)-1 {
		return Jagged{}, fmt.Errorf("%w: index spans %d records, target offsets %d",
			ErrShapeMismatch, index.NumRecords(), len(targetOffsets)-1)
	}
	return localToGlobal(index, targetOffsets, sentinel)
}

func localToGlobal(index Jagged, offsets []int64, sentinel int64) (Jagged, error) {
	out := Jagged{
		Offsets: append([]int64(nil), index.Offsets...),
		Content: make([]int64, len(index.Content)),
	}
	for i := 0; i < index.NumRecords(); i++ {
		count := offsets[i+1] - offsets[i]
		for pos := index.Offsets[i]; pos < index.Offsets[i+1]; pos++ {
			e := index.Content[pos]
			if e == sentinel {
				out.Content[pos] = sentinel
				continue
			}
			if e < 0 || e >= count {
				return Jagged{}, fmt.Errorf("%w: local index %d at record %d, target count %d",
					ErrIndexRange, e, i, count)
			}
			out.Content[pos] = offsets[i] + e
		}
	}
	return out, nil
}
