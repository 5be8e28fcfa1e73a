package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
)

// ZipServer is a TCP server that zips Arrow IPC batches.
// Each request on a connection is a length-prefixed IPC stream; the
// response is either the zipped IPC stream or an "ERR: ..." payload.
type ZipServer struct {
	listener net.Listener
	handler  BatchHandler
	metrics  *Metrics
	running  bool
	mu       sync.Mutex
	quit     chan struct{}
}

// NewZipServer creates a new ZipServer around the given handler.
// metrics may be nil.
func NewZipServer(handler BatchHandler, metrics *Metrics) *ZipServer {
	return &ZipServer{
		handler: handler,
		metrics: metrics,
		quit:    make(chan struct{}),
	}
}

// Start starts the server on the specified address.
// This method blocks until the server is stopped or fails.
func (s *ZipServer) Start(address string) error {
	if err := s.listen(address); err != nil {
		return err
	}

	defer s.Stop()
	s.acceptLoop()
	return nil
}

// StartAsync starts the server in a background goroutine.
func (s *ZipServer) StartAsync(address string) error {
	if err := s.listen(address); err != nil {
		return err
	}

	go s.acceptLoop()
	return nil
}

func (s *ZipServer) listen(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	s.running = true
	return nil
}

func (s *ZipServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// Addr returns the address the server is listening on, or nil if it is
// not running.
func (s *ZipServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server.
func (s *ZipServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.quit)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			log.Printf("[WARN] Failed to close listener: %v", err)
		}
	}
}

// handleConnection handles a single client connection.
func (s *ZipServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
		defer s.metrics.ActiveConnections.Dec()
	}

	for {
		payload, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[ERROR] Failed to read message: %v", err)
			}
			return
		}

		response, err := s.handler.ProcessBatch(payload)
		if err != nil {
			// Zip failures are per-request: report them to the client
			// and keep the connection open.
			log.Printf("[ERROR] Failed to process batch: %v", err)
			response = []byte("ERR: " + err.Error())
		}

		if err := WriteMessage(conn, response); err != nil {
			log.Printf("[ERROR] Failed to write response: %v", err)
			return
		}
	}
}
