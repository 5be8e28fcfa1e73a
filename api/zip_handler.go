package api

import (
	"bytes"
	"fmt"
	"log"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/maxymnaumchyk/awkward-zipper/data"
	"github.com/maxymnaumchyk/awkward-zipper/zipper"
)

// BatchHandler processes one Arrow IPC request payload and returns the
// response payload. Implemented by ZipHandler; the TCP server and the
// ZeroMQ node depend only on this interface.
type BatchHandler interface {
	ProcessBatch(data []byte) ([]byte, error)
}

// ZipHandler turns a flat Arrow IPC batch into a nested one.
// Each request payload is a complete IPC stream carrying a single record
// batch of flat and list columns; the response is an IPC stream carrying
// the zipped record batch.
type ZipHandler struct {
	mem     memory.Allocator
	builder *zipper.Builder
	metrics *Metrics
}

// NewZipHandler creates a new ZipHandler around the given tree builder.
// metrics may be nil, in which case no metrics are recorded.
func NewZipHandler(builder *zipper.Builder, metrics *Metrics) *ZipHandler {
	return &ZipHandler{
		mem:     memory.DefaultAllocator,
		builder: builder,
		metrics: metrics,
	}
}

// ProcessBatch parses the input bytes as an Arrow IPC stream, zips the
// record batch it carries into a nested tree and returns the tree as a
// new IPC stream.
func (h *ZipHandler) ProcessBatch(payload []byte) ([]byte, error) {
	start := time.Now()
	out, err := h.processBatch(payload)
	if h.metrics != nil {
		h.metrics.RecordZip(err == nil, time.Since(start))
	}
	return out, err
}

func (h *ZipHandler) processBatch(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("received empty data")
	}

	reader, err := ipc.NewReader(bytes.NewReader(payload), ipc.WithAllocator(h.mem))
	if err != nil {
		return nil, fmt.Errorf("failed to create IPC reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, fmt.Errorf("error reading Arrow stream: %w", reader.Err())
		}
		return nil, fmt.Errorf("IPC stream contains no record batch")
	}

	rec := reader.Record()
	rec.Retain()
	defer rec.Release()

	bundle, err := data.FromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to decompose record batch: %w", err)
	}
	defer bundle.Release()

	tree, err := h.builder.Build(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to zip batch: %w", err)
	}
	defer tree.Release()

	for _, name := range tree.Unclassified {
		log.Printf("[WARN] Column %s did not classify into any group", name)
	}

	if h.metrics != nil {
		h.metrics.RecordShapes(
			len(bundle.Names()),
			int(rec.NumRows()),
			int(tree.Record.NumCols()),
			len(tree.Skipped),
		)
	}

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(tree.Record.Schema()), ipc.WithAllocator(h.mem))
	if err := writer.Write(tree.Record); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write zipped batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close IPC writer: %w", err)
	}

	return buf.Bytes(), nil
}
