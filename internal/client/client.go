// Package client implements the Go client for the record-store socket
// protocol. It is used by the HTTP proxy, the CLI and the integration
// tests.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/dmitrijs2005/userdb/internal/protocol"
	"github.com/dmitrijs2005/userdb/internal/record"
)

// Client is a single connection to the store. Calls are serialized on the
// connection, so one Client may be shared between goroutines.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the store's unix socket.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (c *Client) do(req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := protocol.WriteFrame(c.conn, req); err != nil {
		return protocol.Response{}, fmt.Errorf("write request: %w", err)
	}

	line, err := protocol.ReadLine(c.reader)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("decode response: %w", err)
	}

	if resp.Status != protocol.StatusOK {
		return resp, protocol.ErrorFromResponse(resp)
	}
	return resp, nil
}

// Create stores a new record and returns its reference.
func (c *Client) Create(rec record.Record) (string, error) {
	resp, err := c.do(protocol.Request{Op: protocol.OpCreate, Record: &rec})
	if err != nil {
		return "", err
	}
	return resp.Ref, nil
}

// Get fetches a record, optionally projected to the named fields.
func (c *Client) Get(ref string, fields []string) (map[string]string, error) {
	resp, err := c.do(protocol.Request{Op: protocol.OpGet, Ref: ref, Fields: fields})
	if err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// Update merges the patch into the record and returns the updated fields.
func (c *Client) Update(ref string, patch map[string]string) (map[string]string, error) {
	resp, err := c.do(protocol.Request{Op: protocol.OpUpdate, Ref: ref, Patch: patch})
	if err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// Delete removes the record behind ref.
func (c *Client) Delete(ref string) error {
	_, err := c.do(protocol.Request{Op: protocol.OpDelete, Ref: ref})
	return err
}

// Find returns every record whose field equals value, optionally projected.
func (c *Client) Find(field, value string, fields []string) ([]protocol.Result, error) {
	resp, err := c.do(protocol.Request{Op: protocol.OpFind, Field: field, Value: value, Fields: fields})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Close drops the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
