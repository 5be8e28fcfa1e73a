// Command stress_test load-tests a zipper server with synthetic flat
// NanoAOD-style batches.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/maxymnaumchyk/awkward-zipper/client"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address     string
	Concurrency int
	Duration    time.Duration
	Events      int
	MaxMuons    int
	ReportFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
}

func main() {
	config := parseFlags()

	fmt.Println("=== Awkward Zipper Stress Test ===")
	fmt.Printf("Target: %s\n", config.Address)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	fmt.Printf("Duration: %v\n", config.Duration)
	fmt.Printf("Batch: %d events, up to %d muons each\n", config.Events, config.MaxMuons)
	fmt.Println()

	result := runStressTest(config)

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
}

func parseFlags() StressTestConfig {
	config := StressTestConfig{}

	flag.StringVar(&config.Address, "addr", "127.0.0.1:50051", "Zipper server address")
	flag.IntVar(&config.Concurrency, "c", 10, "Number of concurrent workers")
	flag.DurationVar(&config.Duration, "d", 30*time.Second, "Duration of test")
	flag.IntVar(&config.Events, "events", 1000, "Events per batch")
	flag.IntVar(&config.MaxMuons, "muons", 8, "Maximum muons per event")
	flag.StringVar(&config.ReportFile, "o", "", "Output report file (JSON)")

	flag.Parse()

	return config
}

func runStressTest(config StressTestConfig) StressTestResult {
	var (
		totalReqs    int64
		successReqs  int64
		failedReqs   int64
		totalLatency int64
		minLatency   int64 = 1<<63 - 1
		maxLatency   int64
		wg           sync.WaitGroup
		stopChan     = make(chan struct{})
	)

	startTime := time.Now()

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(workerID, config, stopChan, &totalReqs, &successReqs, &failedReqs, &totalLatency, &minLatency, &maxLatency)
		}(i)
	}

	time.Sleep(config.Duration)
	close(stopChan)
	wg.Wait()

	duration := time.Since(startTime)
	total := atomic.LoadInt64(&totalReqs)
	success := atomic.LoadInt64(&successReqs)
	failed := atomic.LoadInt64(&failedReqs)
	latencySum := atomic.LoadInt64(&totalLatency)
	minLat := atomic.LoadInt64(&minLatency)
	maxLat := atomic.LoadInt64(&maxLatency)

	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(latencySum / success)
	}

	return StressTestResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     failed,
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLat),
		MaxLatency:     time.Duration(maxLat),
		RequestsPerSec: float64(total) / duration.Seconds(),
	}
}

func runWorker(id int, config StressTestConfig, stop chan struct{}, totalReqs, successReqs, failedReqs, totalLatency, minLatency, maxLatency *int64) {
	rng := rand.New(rand.NewSource(int64(id)))
	mem := memory.NewGoAllocator()
	codec := client.NewCodec()

	// One payload per worker; the server re-zips it on every request.
	rec := buildBatch(mem, rng, config.Events, config.MaxMuons)
	payload, err := codec.Serialize(rec)
	rec.Release()
	if err != nil {
		log.Printf("worker %d: failed to serialize batch: %v", id, err)
		return
	}

	for {
		select {
		case <-stop:
			return
		default:
			latency, err := sendRequest(config.Address, payload)
			atomic.AddInt64(totalReqs, 1)

			if err != nil {
				atomic.AddInt64(failedReqs, 1)
				// Small sleep on error to avoid hammering
				time.Sleep(10 * time.Millisecond)
			} else {
				atomic.AddInt64(successReqs, 1)
				atomic.AddInt64(totalLatency, int64(latency))

				lat := int64(latency)
				for {
					old := atomic.LoadInt64(minLatency)
					if lat >= old || atomic.CompareAndSwapInt64(minLatency, old, lat) {
						break
					}
				}
				for {
					old := atomic.LoadInt64(maxLatency)
					if lat <= old || atomic.CompareAndSwapInt64(maxLatency, old, lat) {
						break
					}
				}
			}
		}
	}
}

// buildBatch generates a flat batch with event IDs and a jagged muon
// collection of random multiplicity.
func buildBatch(mem memory.Allocator, rng *rand.Rand, events, maxMuons int) arrow.Record {
	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "event", Type: arrow.PrimitiveTypes.Int64},
			{Name: "nMuon", Type: arrow.PrimitiveTypes.Int32},
			{Name: "Muon_pt", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
			{Name: "Muon_eta", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		},
		nil,
	)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	eventIDs := b.Field(0).(*array.Int64Builder)
	nMuon := b.Field(1).(*array.Int32Builder)
	pt := b.Field(2).(*array.ListBuilder)
	ptVals := pt.ValueBuilder().(*array.Float64Builder)
	eta := b.Field(3).(*array.ListBuilder)
	etaVals := eta.ValueBuilder().(*array.Float64Builder)

	for i := 0; i < events; i++ {
		n := rng.Intn(maxMuons + 1)
		eventIDs.Append(int64(i))
		nMuon.Append(int32(n))
		pt.Append(true)
		eta.Append(true)
		for j := 0; j < n; j++ {
			ptVals.Append(rng.Float64() * 200)
			etaVals.Append(rng.Float64()*5 - 2.5)
		}
	}

	return b.NewRecord()
}

func sendRequest(address string, payload []byte) (time.Duration, error) {
	c, err := client.Dial(address)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	if err := c.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return 0, err
	}

	start := time.Now()
	_, err = c.Exchange(payload)
	return time.Since(start), err
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", result.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, float64(result.SuccessfulReqs)/float64(result.TotalRequests)*100)
	fmt.Printf("Failed:          %d (%.2f%%)\n", result.FailedReqs, float64(result.FailedReqs)/float64(result.TotalRequests)*100)
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":     config.Address,
			"concurrency": config.Concurrency,
			"duration":    config.Duration.String(),
			"events":      config.Events,
			"max_muons":   config.MaxMuons,
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"requests_per_sec": result.RequestsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, data, 0644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
