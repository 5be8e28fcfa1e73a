package data

import (
	"errors"
	"reflect"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/maxymnaumchyk/awkward-zipper/kernels"
)

func TestBundleAddAndGet(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewBundle()
	defer b.Release()

	run := buildInt64(mem, []int64{1, 1, 2})
	defer run.Release()
	if err := b.AddFlat("Run", run); err != nil {
		t.Fatalf("AddFlat failed: %v", err)
	}

	pt := buildFloat64(mem, []float64{10, 20, 30, 40})
	defer pt.Release()
	if err := b.AddJagged("Jet_pt", []int64{2, 0, 2}, pt); err != nil {
		t.Fatalf("AddJagged failed: %v", err)
	}

	if b.NumRecords() != 3 {
		t.Errorf("Expected 3 records, got %d", b.NumRecords())
	}
	if !b.Has("Run") || !b.Has("Jet_pt") {
		t.Error("Expected both columns to be present")
	}

	col, ok := b.Get("Jet_pt")
	if !ok {
		t.Fatal("Jet_pt not found")
	}
	if !col.IsJagged() {
		t.Error("Expected Jet_pt to be jagged")
	}
	if !reflect.DeepEqual(col.Counts(), []int64{2, 0, 2}) {
		t.Errorf("Expected counts [2 0 2], got %v", col.Counts())
	}

	if !reflect.DeepEqual(b.Names(), []string{"Run", "Jet_pt"}) {
		t.Errorf("Expected insertion order, got %v", b.Names())
	}
}

func TestBundleShapeViolations(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	vals := buildFloat64(mem, []float64{1, 2, 3})
	defer vals.Release()

	b := NewBundle()
	defer b.Release()

	// counts/values length mismatch
	if err := b.AddJagged("Jet_pt", []int64{1, 1}, vals); !errors.Is(err, kernels.ErrDataShape) {
		t.Errorf("Expected ErrDataShape for counts/values mismatch, got %v", err)
	}

	// negative count
	if err := b.AddJagged("Jet_pt", []int64{4, -1}, vals); !errors.Is(err, kernels.ErrDataShape) {
		t.Errorf("Expected ErrDataShape for negative count, got %v", err)
	}

	// record count disagreement across columns
	if err := b.AddJagged("Jet_pt", []int64{1, 2}, vals); err != nil {
		t.Fatalf("AddJagged failed: %v", err)
	}
	other := buildInt64(mem, []int64{1, 2, 3})
	defer other.Release()
	if err := b.AddFlat("Run", other); !errors.Is(err, kernels.ErrDataShape) {
		t.Errorf("Expected ErrDataShape for record count mismatch, got %v", err)
	}

	// duplicate name
	short := buildInt64(mem, []int64{1, 2})
	defer short.Release()
	if err := b.AddFlat("Jet_pt", short); !errors.Is(err, kernels.ErrDataShape) {
		t.Errorf("Expected ErrDataShape for duplicate column, got %v", err)
	}
}

func TestFromRecord(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "Run", Type: arrow.PrimitiveTypes.Int64},
		{Name: "Jet_pt", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		{Name: "nJet", Type: arrow.PrimitiveTypes.Int32},
	}, nil)

	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()

	rb.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 1}, nil)

	lb := rb.Field(1).(*array.ListBuilder)
	vb := lb.ValueBuilder().(*array.Float64Builder)
	lb.Append(true)
	vb.AppendValues([]float64{50.0, 30.5}, nil)
	lb.Append(true)
	vb.AppendValues([]float64{99.9}, nil)

	rb.Field(2).(*array.Int32Builder).AppendValues([]int32{2, 1}, nil)

	rec := rb.NewRecord()
	defer rec.Release()

	b, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}
	defer b.Release()

	if b.NumRecords() != 2 {
		t.Errorf("Expected 2 records, got %d", b.NumRecords())
	}

	jet, ok := b.Get("Jet_pt")
	if !ok || !jet.IsJagged() {
		t.Fatal("Expected Jet_pt to be a jagged column")
	}
	if !reflect.DeepEqual(jet.Counts(), []int64{2, 1}) {
		t.Errorf("Expected counts [2 1], got %v", jet.Counts())
	}
	if jet.Values().Len() != 3 {
		t.Errorf("Expected 3 flattened values, got %d", jet.Values().Len())
	}

	run, ok := b.Get("Run")
	if !ok || run.IsJagged() {
		t.Fatal("Expected Run to be a flat column")
	}

	counts, err := Int64Values(mustGet(t, b, "nJet").Values())
	if err != nil {
		t.Fatalf("Int64Values failed: %v", err)
	}
	if !reflect.DeepEqual(counts, []int64{2, 1}) {
		t.Errorf("Expected nJet [2 1], got %v", counts)
	}
}

func TestInt64ValuesRejectsNonIntegral(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	vals := buildFloat64(mem, []float64{1.5})
	defer vals.Release()

	if _, err := Int64Values(vals); !errors.Is(err, kernels.ErrDataShape) {
		t.Errorf("Expected ErrDataShape for float column, got %v", err)
	}
}

func mustGet(t *testing.T, b *Bundle, name string) *Column {
	t.Helper()
	col, ok := b.Get(name)
	if !ok {
		t.Fatalf("column %s not found", name)
	}
	return col
}

func buildInt64(mem memory.Allocator, vals []int64) arrow.Array {
	bld := array.NewInt64Builder(mem)
	defer bld.Release()
	bld.AppendValues(vals, nil)
	return bld.NewInt64Array()
}

func buildFloat64(mem memory.Allocator, vals []float64) arrow.Array {
	bld := array.NewFloat64Builder(mem)
	defer bld.Release()
	bld.AppendValues(vals, nil)
	return bld.NewFloat64Array()
}
