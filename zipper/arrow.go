package zipper

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/maxymnaumchyk/awkward-zipper/kernels"
)

// int64Array builds an Arrow int64 array from a slice.
func int64Array(mem memory.Allocator, vals []int64) arrow.Array {
	bld := array.NewInt64Builder(mem)
	defer bld.Release()
	bld.AppendValues(vals, nil)
	return bld.NewInt64Array()
}

// listArray wraps a flat values array as an Arrow list addressed by offsets.
// The values buffers are shared, not copied; only the offsets are converted
// to Arrow's int32 representation.
func listArray(offsets []int64, values arrow.Array) (arrow.Array, error) {
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: empty offsets", kernels.ErrDataShape)
	}
	if offsets[len(offsets)-1] != int64(values.Len()) {
		return nil, fmt.Errorf("%w: offsets address %d values, array has %d",
			kernels.ErrDataShape, offsets[len(offsets)-1], values.Len())
	}

	off32 := make([]int32, len(offsets))
	for i, o := range offsets {
		if o > math.MaxInt32 {
			return nil, fmt.Errorf("%w: offset %d overflows int32 list addressing",
				kernels.ErrDataShape, o)
		}
		off32[i] = int32(o)
	}

	buf := memory.NewBufferBytes(arrow.Int32Traits.CastToBytes(off32))
	d := array.NewData(
		arrow.ListOf(values.DataType()),
		len(offsets)-1,
		[]*memory.Buffer{nil, buf},
		[]arrow.ArrayData{values.Data()},
		0, 0,
	)
	defer d.Release()
	return array.NewListData(d), nil
}

// nestedListArray builds the per-item list<int64> child for a doubly-jagged
// computed field; the outer nesting comes from the owning group's list wrap.
func nestedListArray(mem memory.Allocator, inner kernels.Jagged) (arrow.Array, error) {
	content := int64Array(mem, inner.Content)
	defer content.Release()
	return listArray(inner.Offsets, content)
}

// structArray zips equally-long child arrays into an Arrow struct.
func structArray(children []arrow.Array, names []string) (arrow.Array, error) {
	for i := 1; i < len(children); i++ {
		if children[i].Len() != children[0].Len() {
			return nil, fmt.Errorf("%w: field %s has %d entries, %s has %d",
				kernels.ErrShapeMismatch,
				names[i], children[i].Len(), names[0], children[0].Len())
		}
	}
	sa, err := array.NewStructArray(children, names)
	if err != nil {
		return nil, fmt.Errorf("zipping struct fields: %w", err)
	}
	return sa, nil
}
