// Package mpool fronts the single-size slab caches with a sized interface:
// one cache per power-of-two size class, requests routed to the smallest
// class that fits.
package mpool

import (
	"errors"
	"math/bits"
	"sync"
	"unsafe"

	"slabAllocator/logger"
	"slabAllocator/mem"
	"slabAllocator/slab"
)

const (
	// MinClassSize is the smallest size class (8B).
	MinClassSize = 8
	// MaxClassSize is the largest size class (8KB).
	MaxClassSize = 8192

	minClassLog2 = 3
)

// ErrSizeTooLarge is returned when a request exceeds the largest size class.
// A zero-size request is refused with the same error.
var ErrSizeTooLarge = errors.New("requested size exceeds the largest size class")

// PoolStats represents memory pool statistics
type PoolStats struct {
	TotalAllocations uint64
	TotalFrees       uint64
	PoolHits         uint64 // requests matching a class size exactly
	PoolMisses       uint64 // requests rounded up to the next class
}

// MemoryPool represents a memory pool structure. The mutex serializes all
// access: the caches underneath are single-threaded by contract.
type MemoryPool struct {
	caches   []*slab.Cache
	provider *mem.Provider
	stats    PoolStats
	mu       sync.Mutex
}

// NewMemoryPool sets up one slab cache per size class on top of provider.
func NewMemoryPool(provider *mem.Provider) *MemoryPool {
	pool := &MemoryPool{provider: provider}
	for size := MinClassSize; size <= MaxClassSize; size <<= 1 {
		pool.caches = append(pool.caches, slab.NewCache(uintptr(size), provider))
	}
	return pool
}

// classIndex returns the cache index of the smallest class holding size.
func classIndex(size uint64) int {
	if size <= MinClassSize {
		return 0
	}
	return bits.Len64(size-1) - minClassLog2
}

// Allocate returns storage for size bytes from the smallest fitting class.
func (p *MemoryPool) Allocate(size uint64) (unsafe.Pointer, error) {
	if size == 0 || size > MaxClassSize {
		return nil, ErrSizeTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalAllocations++
	cache := p.caches[classIndex(size)]
	if uint64(cache.ObjectSize()) == size {
		p.stats.PoolHits++
	} else {
		p.stats.PoolMisses++
	}
	return cache.Alloc(), nil
}

// Free returns storage obtained from Allocate with the same size.
func (p *MemoryPool) Free(ptr unsafe.Pointer, size uint64) error {
	if size == 0 || size > MaxClassSize {
		return ErrSizeTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalFrees++
	p.caches[classIndex(size)].Free(ptr)
	return nil
}

// Shrink hands every class's fully-free slabs back to the provider.
func (p *MemoryPool) Shrink() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cache := range p.caches {
		cache.Shrink()
	}
	logger.Debug("pool shrunk, backing memory now %d bytes", p.provider.UsedSize())
}

// UsedSize reports the backing memory currently held for the pool's caches.
func (p *MemoryPool) UsedSize() uint64 {
	return p.provider.UsedSize()
}

// Stats returns a snapshot of the pool counters.
func (p *MemoryPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// LiveObjects tallies outstanding allocations across all classes.
func (p *MemoryPool) LiveObjects() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var live uint64
	for _, cache := range p.caches {
		live += cache.Stats().LiveObjects
	}
	return live
}

// Close releases every class cache and logs the pool statistics.
func (p *MemoryPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cache := range p.caches {
		cache.Release()
	}
	p.caches = nil

	logger.Info("memory pool statistics: allocations=%d frees=%d exact=%d rounded=%d",
		p.stats.TotalAllocations, p.stats.TotalFrees, p.stats.PoolHits, p.stats.PoolMisses)
	return nil
}
