package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverAddress = "localhost:12034"
)

func TestRPCClientServer(t *testing.T) {
	server, err := NewServer()
	require.NoError(t, err)

	go func() {
		if err := server.Start(serverAddress); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()

	time.Sleep(time.Second)

	numClients := 5
	clients := make([]*Client, numClients)
	for i := 0; i < numClients; i++ {
		client, err := NewClient(i, serverAddress)
		require.NoErrorf(t, err, "Failed to create client %d", i)
		clients[i] = client
		defer client.Close()
	}

	done := make(chan bool)
	for i, client := range clients {
		go func(id int, c *Client) {
			defer func() { done <- true }()

			start, err := c.Allocate(4096)
			if err != nil {
				t.Errorf("Client %d allocation failed: %v", id, err)
				return
			}

			time.Sleep(time.Millisecond * 100)

			if err := c.Free(start, 4096); err != nil {
				t.Errorf("Client %d free failed: %v", id, err)
			}
			if c.Outstanding() != 0 {
				t.Errorf("Client %d still tracks %d allocations", id, c.Outstanding())
			}
		}(i, client)
	}

	for i := 0; i < numClients; i++ {
		<-done
	}

	assert.Equal(t, uint64(0), server.LiveObjects())

	// Oversized requests come back as server-side errors, not transport
	// failures.
	_, err = clients[0].Allocate(1 << 20)
	assert.ErrorContains(t, err, "server error")

	require.NoError(t, server.Close())
}
