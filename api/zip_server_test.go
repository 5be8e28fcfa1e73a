package api

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/maxymnaumchyk/awkward-zipper/zipper"
)

// encodeFlatBatch serializes a small flat bundle with one plain column
// and one muon collection to an IPC stream.
func encodeFlatBatch(t *testing.T, mem memory.Allocator) []byte {
	t.Helper()

	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "Run", Type: arrow.PrimitiveTypes.Int64},
			{Name: "nMuon", Type: arrow.PrimitiveTypes.Int32},
			{Name: "Muon_pt", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
			{Name: "Muon_charge", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
		},
		nil,
	)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	b.Field(0).(*array.Int64Builder).AppendValues([]int64{100, 101, 102}, nil)
	b.Field(1).(*array.Int32Builder).AppendValues([]int32{2, 0, 1}, nil)

	pt := b.Field(2).(*array.ListBuilder)
	ptVals := pt.ValueBuilder().(*array.Float64Builder)
	pt.Append(true)
	ptVals.AppendValues([]float64{31.5, 12.2}, nil)
	pt.Append(true)
	pt.Append(true)
	ptVals.Append(50.0)

	charge := b.Field(3).(*array.ListBuilder)
	chargeVals := charge.ValueBuilder().(*array.Int64Builder)
	charge.Append(true)
	chargeVals.AppendValues([]int64{-1, 1}, nil)
	charge.Append(true)
	charge.Append(true)
	chargeVals.Append(-1)

	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := writer.Write(rec); err != nil {
		t.Fatalf("Failed to write record: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	return buf.Bytes()
}

// decodeBatch parses an IPC response back into a record.
func decodeBatch(t *testing.T, mem memory.Allocator, payload []byte) arrow.Record {
	t.Helper()

	reader, err := ipc.NewReader(bytes.NewReader(payload), ipc.WithAllocator(mem))
	if err != nil {
		t.Fatalf("Failed to create IPC reader: %v", err)
	}
	defer reader.Release()

	if !reader.Next() {
		t.Fatalf("Response stream contains no record batch: %v", reader.Err())
	}
	rec := reader.Record()
	rec.Retain()
	return rec
}

func TestZipHandlerRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	handler := NewZipHandler(zipper.NewBuilder(&zipper.Schema{}), nil)

	resp, err := handler.ProcessBatch(encodeFlatBatch(t, mem))
	if err != nil {
		t.Fatalf("Failed to process batch: %v", err)
	}

	rec := decodeBatch(t, mem, resp)
	defer rec.Release()

	if rec.NumRows() != 3 {
		t.Errorf("Expected 3 rows, got %d", rec.NumRows())
	}
	if rec.NumCols() != 2 {
		t.Fatalf("Expected 2 columns, got %d", rec.NumCols())
	}

	schema := rec.Schema()
	runIdx := schema.FieldIndices("Run")
	if len(runIdx) != 1 {
		t.Fatalf("Expected a Run column, got schema %v", schema)
	}
	run, ok := rec.Column(runIdx[0]).(*array.Int64)
	if !ok {
		t.Fatalf("Expected Run to stay a flat int64 column, got %T", rec.Column(runIdx[0]))
	}
	if run.Value(2) != 102 {
		t.Errorf("Expected Run[2] = 102, got %d", run.Value(2))
	}

	muonIdx := schema.FieldIndices("Muon")
	if len(muonIdx) != 1 {
		t.Fatalf("Expected a Muon column, got schema %v", schema)
	}
	muon, ok := rec.Column(muonIdx[0]).(*array.List)
	if !ok {
		t.Fatalf("Expected Muon to be a list column, got %T", rec.Column(muonIdx[0]))
	}
	elems, ok := muon.ListValues().(*array.Struct)
	if !ok {
		t.Fatalf("Expected Muon elements to be structs, got %T", muon.ListValues())
	}
	st := elems.DataType().(*arrow.StructType)
	for _, field := range []string{"pt", "charge"} {
		if _, ok := st.FieldIdx(field); !ok {
			t.Errorf("Expected Muon struct field %s, got %v", field, st)
		}
	}
}

func TestZipHandlerRejectsGarbage(t *testing.T) {
	handler := NewZipHandler(zipper.NewBuilder(&zipper.Schema{}), nil)

	if _, err := handler.ProcessBatch(nil); err == nil {
		t.Error("Expected error for empty payload, got nil")
	}
	if _, err := handler.ProcessBatch([]byte("not an IPC stream")); err == nil {
		t.Error("Expected error for malformed payload, got nil")
	}
}

func TestZipServerEndToEnd(t *testing.T) {
	mem := memory.NewGoAllocator()
	handler := NewZipHandler(zipper.NewBuilder(&zipper.Schema{}), nil)
	server := NewZipServer(handler, nil)

	if err := server.StartAsync("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	// A malformed request gets an error response; the connection stays
	// open for further requests.
	if err := WriteMessage(conn, []byte("garbage")); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
	resp, err := ReadMessage(conn)
	if err != nil {
		t.Fatalf("Failed to read error response: %v", err)
	}
	if !strings.HasPrefix(string(resp), "ERR: ") {
		t.Errorf("Expected ERR response, got %q", resp)
	}

	if err := WriteMessage(conn, encodeFlatBatch(t, mem)); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
	resp, err = ReadMessage(conn)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if strings.HasPrefix(string(resp), "ERR: ") {
		t.Fatalf("Expected zipped batch, got error response %q", resp)
	}

	rec := decodeBatch(t, mem, resp)
	defer rec.Release()

	if rec.NumRows() != 3 {
		t.Errorf("Expected 3 rows, got %d", rec.NumRows())
	}
}

func TestZipServerDoubleStart(t *testing.T) {
	handler := NewZipHandler(zipper.NewBuilder(&zipper.Schema{}), nil)
	server := NewZipServer(handler, nil)

	if err := server.StartAsync("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	if err := server.StartAsync("127.0.0.1:0"); err == nil {
		t.Error("Expected error starting server twice, got nil")
	}
}
