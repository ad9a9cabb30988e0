package rpc

import (
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slabAllocator/logger"
	"slabAllocator/mem"
	"slabAllocator/mpool"
)

// Server represents the memory pool server
type Server struct {
	pool     *mpool.MemoryPool
	provider *mem.Provider
	mu       sync.Mutex
}

// AllocRequest represents a memory allocation request
type AllocRequest struct {
	Size uint64
}

// AllocResponse represents a memory allocation response
type AllocResponse struct {
	Start uint64
	Error string
}

// FreeRequest represents a memory free request
type FreeRequest struct {
	Start uint64
	Size  uint64
}

// FreeResponse represents a memory free response
type FreeResponse struct {
	Error string
}

// NewServer creates a new memory pool server
func NewServer() (*Server, error) {
	provider := mem.NewProvider()
	server := &Server{
		pool:     mpool.NewMemoryPool(provider),
		provider: provider,
	}

	if err := rpc.Register(server); err != nil {
		return nil, errors.Wrap(err, "failed to register rpc service")
	}
	return server, nil
}

// Start starts the server on the specified address
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to start server")
	}
	defer listener.Close()

	logger.Info("server listening on %s", address)

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Error("failed to accept connection: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// ServeMetrics exposes the Prometheus registry over HTTP on address.
func (s *Server) ServeMetrics(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(address, mux)
}

func (s *Server) Allocate(req *AllocRequest, resp *AllocResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptr, err := s.pool.Allocate(req.Size)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}

	allocationsTotal.Inc()
	liveObjects.Inc()
	resp.Start = uint64(uintptr(ptr))
	return nil
}

func (s *Server) Free(req *FreeRequest, resp *FreeResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pool.Free(unsafe.Pointer(uintptr(req.Start)), req.Size); err != nil {
		resp.Error = err.Error()
		return nil
	}

	freesTotal.Inc()
	liveObjects.Dec()
	return nil
}

// UsedSize reports the backing memory currently handed to the caches.
func (s *Server) UsedSize() uint64 {
	return s.provider.UsedSize()
}

// LiveObjects reports outstanding allocations across the pool.
func (s *Server) LiveObjects() uint64 {
	return s.pool.LiveObjects()
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pool.Close(); err != nil {
		return err
	}
	return s.provider.Close()
}
