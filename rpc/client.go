package rpc

import (
	"net/rpc"
	"sync"

	"github.com/pkg/errors"

	"slabAllocator/logger"
)

// Client is the dialing side of the pool service. It mirrors the server's
// bookkeeping so a caller can tell what it still owes back.
type Client struct {
	id        int
	client    *rpc.Client
	allocated map[uint64]uint64 // start -> size
	mu        sync.Mutex
}

// NewClient connects to the pool server at address.
func NewClient(id int, address string) (*Client, error) {
	conn, err := rpc.Dial("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "client %d failed to connect to %s", id, address)
	}

	logger.Debug("client %d connected to %s", id, address)
	return &Client{
		id:        id,
		client:    conn,
		allocated: make(map[uint64]uint64),
	}, nil
}

// Allocate requests size bytes from the server and returns the region token.
func (c *Client) Allocate(size uint64) (uint64, error) {
	var resp AllocResponse
	if err := c.client.Call("Server.Allocate", &AllocRequest{Size: size}, &resp); err != nil {
		return 0, errors.Wrap(err, "RPC call failed")
	}
	if resp.Error != "" {
		return 0, errors.Errorf("server error: %s", resp.Error)
	}

	c.mu.Lock()
	c.allocated[resp.Start] = size
	c.mu.Unlock()

	logger.Debug("client %d allocated %d bytes at %#x", c.id, size, resp.Start)
	return resp.Start, nil
}

// Free hands a region token back to the server.
func (c *Client) Free(start uint64, size uint64) error {
	var resp FreeResponse
	if err := c.client.Call("Server.Free", &FreeRequest{Start: start, Size: size}, &resp); err != nil {
		return errors.Wrap(err, "RPC call failed")
	}
	if resp.Error != "" {
		return errors.Errorf("server error: %s", resp.Error)
	}

	c.mu.Lock()
	delete(c.allocated, start)
	c.mu.Unlock()

	logger.Debug("client %d freed %d bytes at %#x", c.id, size, start)
	return nil
}

// Outstanding returns the number of allocations this client has not freed.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.allocated)
}

// Close drops the connection. Anything still allocated stays live on the
// server side until freed by someone else or the server shuts down.
func (c *Client) Close() error {
	if n := c.Outstanding(); n != 0 {
		logger.Error("client %d closing with %d outstanding allocations", c.id, n)
	}
	return c.client.Close()
}
