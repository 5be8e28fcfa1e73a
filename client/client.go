package client

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/maxymnaumchyk/awkward-zipper/api"
)

// errPrefix marks a server-side zip failure in a response payload.
var errPrefix = []byte("ERR: ")

// Client is a connection to a zipper server. It is not safe for
// concurrent use; open one Client per goroutine.
type Client struct {
	conn  net.Conn
	codec *Codec
}

// Dial connects to a zipper server at the given TCP address.
func Dial(address string) (*Client, error) {
	return DialTimeout(address, 5*time.Second)
}

// DialTimeout connects to a zipper server with a connect timeout.
func DialTimeout(address string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	return &Client{
		conn:  conn,
		codec: NewCodec(),
	}, nil
}

// Zip sends a flat record batch to the server and returns the zipped
// nested batch. The returned record is retained; the caller must
// Release it.
func (c *Client) Zip(record arrow.Record) (arrow.Record, error) {
	payload, err := c.codec.Serialize(record)
	if err != nil {
		return nil, err
	}

	response, err := c.Exchange(payload)
	if err != nil {
		return nil, err
	}

	return c.codec.Deserialize(response)
}

// Exchange sends one raw IPC payload and returns the raw response.
// Server-side zip failures are surfaced as errors.
func (c *Client) Exchange(payload []byte) ([]byte, error) {
	if err := api.WriteMessage(c.conn, payload); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	response, err := api.ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if bytes.HasPrefix(response, errPrefix) {
		return nil, fmt.Errorf("server rejected batch: %s", response[len(errPrefix):])
	}

	return response, nil
}

// SetDeadline sets the read and write deadline on the connection.
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
