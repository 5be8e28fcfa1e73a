package data

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/maxymnaumchyk/awkward-zipper/kernels"
)

// Int64Values widens an integral Arrow array into an int64 slice. Count and
// index columns arrive in whatever width the producer chose; the kernels all
// operate on int64.
func Int64Values(arr arrow.Array) ([]int64, error) {
	out := make([]int64, arr.Len())
	switch a := arr.(type) {
	case *array.Int64:
		copy(out, a.Int64Values())
	case *array.Int32:
		for i, v := range a.Int32Values() {
			out[i] = int64(v)
		}
	case *array.Int16:
		for i, v := range a.Int16Values() {
			out[i] = int64(v)
		}
	case *array.Int8:
		for i, v := range a.Int8Values() {
			out[i] = int64(v)
		}
	case *array.Uint64:
		for i, v := range a.Uint64Values() {
			out[i] = int64(v)
		}
	case *array.Uint32:
		for i, v := range a.Uint32Values() {
			out[i] = int64(v)
		}
	case *array.Uint16:
		for i, v := range a.Uint16Values() {
			out[i] = int64(v)
		}
	case *array.Uint8:
		for i, v := range a.Uint8Values() {
			out[i] = int64(v)
		}
	default:
		return nil, fmt.Errorf("%w: %s is not an integral column", kernels.ErrDataShape, arr.DataType())
	}
	return out, nil
}
