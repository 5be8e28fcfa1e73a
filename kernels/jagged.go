package kernels

import "fmt"

// Jagged is an integer jagged array: a flat content buffer addressed by
// offsets. Offsets has one more entry than there are records; record i owns
// Content[Offsets[i]:Offsets[i+1]].
type Jagged struct {
	Offsets []int64
	Content []int64
}

// NewJagged builds a Jagged from per-record counts and a flat content buffer.
func NewJagged(counts []int64, content []int64) (Jagged, error) {
	offsets, err := CountsToOffsets(counts)
	if err != nil {
		return Jagged{}, err
	}
	if offsets[len(offsets)-1] != int64(len(content)) {
		return Jagged{}, fmt.Errorf("%w: counts sum to %d but content has %d entries",
			ErrDataShape, offsets[len(offsets)-1], len(content))
	}
	return Jagged{Offsets: offsets, Content: content}, nil
}

// NumRecords returns the number of records.
func (j Jagged) NumRecords() int {
	if len(j.Offsets) == 0 {
		return 0
	}
	return len(j.Offsets) - 1
}

// Record returns the sub-slice of Content owned by record i.
func (j Jagged) Record(i int) []int64 {
	return j.Content[j.Offsets[i]:j.Offsets[i+1]]
}

// Counts returns the per-record entry counts.
func (j Jagged) Counts() []int64 {
	counts := make([]int64, j.NumRecords())
	for i := range counts {
		counts[i] = j.Offsets[i+1] - j.Offsets[i]
	}
	return counts
}

// Nested is a doubly-jagged integer array: Inner is itself jagged over the
// flat content, and Offsets groups Inner's lists per record.
type Nested struct {
	Offsets []int64
	Inner   Jagged
}

// NumRecords returns the number of outer records.
func (n Nested) NumRecords() int {
	if len(n.Offsets) == 0 {
		return 0
	}
	return len(n.Offsets) - 1
}

// sameShape reports whether two jagged arrays share per-record cardinality.
func sameShape(a, b Jagged) bool {
	if len(a.Offsets) != len(b.Offsets) {
		return false
	}
	for i := range a.Offsets {
		if a.Offsets[i] != b.Offsets[i] {
			return false
		}
	}
	return true
}
