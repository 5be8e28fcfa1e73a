// Command zipper-server serves the awkward zipper over TCP and ZeroMQ.
//
// Clients send flat Arrow record batches as length-prefixed IPC streams
// and receive the zipped nested batches back.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maxymnaumchyk/awkward-zipper/api"
	"github.com/maxymnaumchyk/awkward-zipper/network"
	"github.com/maxymnaumchyk/awkward-zipper/zipper"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "awkward-zipper"
)

func main() {
	var (
		listenAddr  = flag.String("listen", ":50051", "TCP address to serve Arrow IPC requests on")
		zmqHost     = flag.String("zmq-host", "", "host for the ZeroMQ REP endpoint (disabled if empty)")
		zmqPort     = flag.Int("zmq-port", 5555, "port for the ZeroMQ REP endpoint")
		metricsAddr = flag.String("metrics", "", "address for the Prometheus /metrics endpoint (disabled if empty)")
		layout      = flag.String("layout", "nanoaod", "schema layout: nanoaod, pfnano, scouting or none")
		nanoVersion = flag.String("nano-version", "latest", "NanoAOD format version (\"latest\" or \"5\"..\"7\")")
		sentinel    = flag.Int64("sentinel", -1, "index value meaning no reference")
		relaxedIDs  = flag.Bool("relaxed-event-ids", false, "warn instead of fail when event ID columns are missing")
		version     = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", Name, Version)
		os.Exit(0)
	}

	schema, err := schemaFor(*layout, *nanoVersion)
	if err != nil {
		log.Fatalf("Invalid layout: %v", err)
	}

	opts := []zipper.Option{zipper.WithSentinel(*sentinel)}
	if *relaxedIDs {
		opts = append(opts, zipper.WithStrictEventIDs(false))
	}
	builder := zipper.NewBuilder(schema, opts...)

	var metrics *api.Metrics
	if *metricsAddr != "" {
		metrics = api.NewMetrics("awkward_zipper")
		metricsServer := api.NewMetricsServer(*metricsAddr)
		metricsServer.StartAsync()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				log.Printf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Printf("Serving metrics on %s", *metricsAddr)
	}

	handler := api.NewZipHandler(builder, metrics)

	server := api.NewZipServer(handler, metrics)
	log.Printf("Starting zipper server on %s (layout %s)...", *listenAddr, *layout)
	if err := server.StartAsync(*listenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	if *zmqHost != "" {
		node := network.NewZipNode(*zmqHost, *zmqPort, handler)
		log.Printf("Starting ZeroMQ endpoint on %s...", node.Address())
		if err := node.Start(); err != nil {
			log.Fatalf("Failed to start ZeroMQ endpoint: %v", err)
		}
		defer node.Stop()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
}

// schemaFor resolves a layout name to a schema preset.
func schemaFor(layout, nanoVersion string) (*zipper.Schema, error) {
	switch layout {
	case "nanoaod":
		return zipper.NanoAOD(nanoVersion)
	case "pfnano":
		return zipper.PFNano(), nil
	case "scouting":
		return zipper.ScoutingNano(), nil
	case "none":
		return &zipper.Schema{}, nil
	default:
		return nil, fmt.Errorf("unknown layout %q", layout)
	}
}
