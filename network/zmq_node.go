package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// ErrNodeNotRunning is returned by operations on a stopped node.
var ErrNodeNotRunning = errors.New("node is not running")

// BatchHandler processes one request payload and returns the reply
// payload. Satisfied by api.ZipHandler.
type BatchHandler interface {
	ProcessBatch(data []byte) ([]byte, error)
}

// ZipNode serves zip requests over a ZeroMQ REP socket.
type ZipNode struct {
	address string
	handler BatchHandler

	ctx    context.Context
	cancel context.CancelFunc

	rep zmq4.Socket

	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewZipNode creates a new ZipNode bound to tcp://host:port.
func NewZipNode(host string, port int, handler BatchHandler) *ZipNode {
	ctx, cancel := context.WithCancel(context.Background())

	return &ZipNode{
		address: fmt.Sprintf("tcp://%s:%d", host, port),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Address returns the endpoint the node binds to.
func (n *ZipNode) Address() string {
	return n.address
}

// Start binds the REP socket and begins serving requests.
func (n *ZipNode) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return errors.New("node already running")
	}

	n.rep = zmq4.NewRep(n.ctx)

	if err := n.rep.Listen(n.address); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("failed to bind rep socket: %w", err)
	}

	n.running = true
	n.mu.Unlock()

	n.wg.Add(1)
	go n.serveLoop()

	return nil
}

// Stop gracefully shuts down the node.
func (n *ZipNode) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()

	n.cancel()

	if n.rep != nil {
		if err := n.rep.Close(); err != nil {
			_ = err // shutdown errors are expected
		}
	}

	n.wg.Wait()
}

// IsRunning reports whether the node is serving requests.
func (n *ZipNode) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// serveLoop continuously serves requests from the REP socket.
func (n *ZipNode) serveLoop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		default:
			msg, err := n.rep.Recv()
			if err != nil {
				select {
				case <-n.ctx.Done():
					return
				default:
					continue
				}
			}

			reply, err := n.handler.ProcessBatch(msg.Bytes())
			if err != nil {
				log.Printf("[ERROR] Failed to process batch: %v", err)
				reply = []byte("ERR: " + err.Error())
			}

			if err := n.rep.Send(zmq4.NewMsg(reply)); err != nil {
				select {
				case <-n.ctx.Done():
					return
				default:
					log.Printf("[ERROR] Failed to send reply: %v", err)
				}
			}
		}
	}
}
