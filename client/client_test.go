package client

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/maxymnaumchyk/awkward-zipper/api"
	"github.com/maxymnaumchyk/awkward-zipper/zipper"
)

// buildFlatBatch makes a small flat record with one electron collection.
func buildFlatBatch(t *testing.T, mem memory.Allocator) arrow.Record {
	t.Helper()

	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "event", Type: arrow.PrimitiveTypes.Int64},
			{Name: "nElectron", Type: arrow.PrimitiveTypes.Int32},
			{Name: "Electron_pt", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		},
		nil,
	)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	b.Field(1).(*array.Int32Builder).AppendValues([]int32{1, 2}, nil)

	pt := b.Field(2).(*array.ListBuilder)
	ptVals := pt.ValueBuilder().(*array.Float64Builder)
	pt.Append(true)
	ptVals.Append(22.4)
	pt.Append(true)
	ptVals.AppendValues([]float64{10.1, 45.0}, nil)

	return b.NewRecord()
}

func startServer(t *testing.T) *api.ZipServer {
	t.Helper()

	handler := api.NewZipHandler(zipper.NewBuilder(&zipper.Schema{}), nil)
	server := api.NewZipServer(handler, nil)
	if err := server.StartAsync("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)

	time.Sleep(100 * time.Millisecond)
	return server
}

func TestCodecRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := buildFlatBatch(t, mem)
	defer rec.Release()

	codec := NewCodec()
	payload, err := codec.Serialize(rec)
	if err != nil {
		t.Fatalf("Failed to serialize record: %v", err)
	}

	got, err := codec.Deserialize(payload)
	if err != nil {
		t.Fatalf("Failed to deserialize record: %v", err)
	}
	defer got.Release()

	if got.NumRows() != rec.NumRows() || got.NumCols() != rec.NumCols() {
		t.Errorf("Expected %dx%d record, got %dx%d",
			rec.NumRows(), rec.NumCols(), got.NumRows(), got.NumCols())
	}
	if !got.Schema().Equal(rec.Schema()) {
		t.Errorf("Schema changed in round trip: %v vs %v", got.Schema(), rec.Schema())
	}
}

func TestClientZip(t *testing.T) {
	server := startServer(t)

	c, err := Dial(server.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	defer c.Close()

	mem := memory.NewGoAllocator()
	rec := buildFlatBatch(t, mem)
	defer rec.Release()

	zipped, err := c.Zip(rec)
	if err != nil {
		t.Fatalf("Failed to zip batch: %v", err)
	}
	defer zipped.Release()

	if zipped.NumRows() != 2 {
		t.Errorf("Expected 2 rows, got %d", zipped.NumRows())
	}

	idx := zipped.Schema().FieldIndices("Electron")
	if len(idx) != 1 {
		t.Fatalf("Expected an Electron column, got schema %v", zipped.Schema())
	}
	if _, ok := zipped.Column(idx[0]).(*array.List); !ok {
		t.Errorf("Expected Electron to be a list column, got %T", zipped.Column(idx[0]))
	}
}

func TestClientExchangeServerError(t *testing.T) {
	server := startServer(t)

	c, err := Dial(server.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	defer c.Close()

	if _, err := c.Exchange([]byte("not an IPC stream")); err == nil {
		t.Error("Expected error for malformed payload, got nil")
	}
}
