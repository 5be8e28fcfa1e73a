package data

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/maxymnaumchyk/awkward-zipper/kernels"
)

// Column is one named column of a bundle. Flat columns hold one value per
// record; jagged columns pair per-record counts with a flattened values
// buffer. Counts and values always travel together.
type Column struct {
	name   string
	values arrow.Array
	counts []int64 // nil for flat columns
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Values returns the column's value buffer. For jagged columns this is the
// flattened content.
func (c *Column) Values() arrow.Array { return c.values }

// Counts returns the per-record counts, or nil for flat columns.
func (c *Column) Counts() []int64 { return c.counts }

// IsJagged reports whether the column carries per-record counts.
func (c *Column) IsJagged() bool { return c.counts != nil }

// Bundle is a read-only mapping from column name to flat or jagged column,
// as produced by an external reader. Insertion order is preserved.
type Bundle struct {
	order []string
	cols  map[string]*Column
	rows  int // -1 until the first column fixes it
}

// NewBundle creates an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{
		cols: make(map[string]*Column),
		rows: -1,
	}
}

// NumRecords returns the record count of the bundle, or 0 if empty.
func (b *Bundle) NumRecords() int {
	if b.rows < 0 {
		return 0
	}
	return b.rows
}

// AddFlat adds a flat column with one value per record.
func (b *Bundle) AddFlat(name string, values arrow.Array) error {
	if err := b.checkRows(name, values.Len()); err != nil {
		return err
	}
	values.Retain()
	b.cols[name] = &Column{name: name, values: values}
	b.order = append(b.order, name)
	return nil
}

// AddJagged adds a jagged column as a counts + flattened values pair.
// Counts must be non-negative and sum to the values length.
func (b *Bundle) AddJagged(name string, counts []int64, values arrow.Array) error {
	if err := b.checkRows(name, len(counts)); err != nil {
		return err
	}
	var total int64
	for i, c := range counts {
		if c < 0 {
			return fmt.Errorf("%w: column %s has negative count %d at record %d",
				kernels.ErrDataShape, name, c, i)
		}
		total += c
	}
	if total != int64(values.Len()) {
		return fmt.Errorf("%w: column %s counts sum to %d but values has %d entries",
			kernels.ErrDataShape, name, total, values.Len())
	}
	values.Retain()
	b.cols[name] = &Column{name: name, values: values, counts: counts}
	b.order = append(b.order, name)
	return nil
}

func (b *Bundle) checkRows(name string, rows int) error {
	if _, exists := b.cols[name]; exists {
		return fmt.Errorf("%w: duplicate column %s", kernels.ErrDataShape, name)
	}
	if b.rows < 0 {
		b.rows = rows
		return nil
	}
	if rows != b.rows {
		return fmt.Errorf("%w: column %s spans %d records, bundle has %d",
			kernels.ErrDataShape, name, rows, b.rows)
	}
	return nil
}

// Has reports whether a column with the given name exists.
func (b *Bundle) Has(name string) bool {
	_, ok := b.cols[name]
	return ok
}

// Get returns the named column.
func (b *Bundle) Get(name string) (*Column, bool) {
	col, ok := b.cols[name]
	return col, ok
}

// Names returns the column names in insertion order.
func (b *Bundle) Names() []string {
	return append([]string(nil), b.order...)
}

// Release releases the retained column arrays.
func (b *Bundle) Release() {
	for _, col := range b.cols {
		col.values.Release()
	}
	b.cols = make(map[string]*Column)
	b.order = nil
	b.rows = -1
}

// FromRecord decomposes an Arrow record batch into a bundle: list columns
// become jagged counts + flattened values pairs, everything else stays flat.
func FromRecord(rec arrow.Record) (*Bundle, error) {
	b := NewBundle()
	for i := 0; i < int(rec.NumCols()); i++ {
		name := rec.ColumnName(i)
		col := rec.Column(i)

		lst, ok := col.(*array.List)
		if !ok {
			if err := b.AddFlat(name, col); err != nil {
				b.Release()
				return nil, err
			}
			continue
		}

		offsets := lst.Offsets()
		start := lst.Data().Offset()
		counts := make([]int64, lst.Len())
		for j := range counts {
			counts[j] = int64(offsets[start+j+1] - offsets[start+j])
		}
		values := array.NewSlice(lst.ListValues(), int64(offsets[start]), int64(offsets[start+lst.Len()]))
		err := b.AddJagged(name, counts, values)
		values.Release() // AddJagged retains on success
		if err != nil {
			b.Release()
			return nil, err
		}
	}
	return b, nil
}
