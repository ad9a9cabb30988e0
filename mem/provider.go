// Package mem supplies the power-of-two backing regions the slab caches
// carve up. Regions come from mmap'd arenas managed per-arena by a buddy
// system, so every 2^k block it hands out sits at a 2^k boundary.
package mem

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"slabAllocator/logger"
)

const (
	// MinBlockLog2 is the smallest region the provider hands out (4KB).
	MinBlockLog2 = 12
	// MaxBlockLog2 is the largest region the provider hands out (4MB).
	MaxBlockLog2 = 22
	// arenaLog2 sizes each mmap'd arena (32MB).
	arenaLog2 = 25

	orderCount = MaxBlockLog2 - MinBlockLog2 + 1
)

// Provider hands out 2^k-byte regions aligned to 2^k. It is internally
// synchronized; the caches calling it are not.
type Provider struct {
	mu        sync.Mutex
	arenas    []*arena
	allocated map[uintptr]uint // start address -> log2 size
	used      uint64
}

// NewProvider creates an empty provider. Arenas are mapped on demand.
func NewProvider() *Provider {
	return &Provider{
		allocated: make(map[uintptr]uint),
	}
}

// Acquire returns a region of 2^log2Size bytes aligned to 2^log2Size. The
// region's content is uninitialized. When the operating system refuses to
// supply a new arena the process is aborted with a diagnostic.
func (p *Provider) Acquire(log2Size uint) unsafe.Pointer {
	if log2Size < MinBlockLog2 || log2Size > MaxBlockLog2 {
		logger.Fatal("unsupported region order %d", log2Size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.arenas {
		if addr, ok := a.allocate(log2Size); ok {
			p.grant(addr, log2Size)
			return a.pointerTo(addr)
		}
	}

	a, err := mapArena()
	if err != nil {
		logger.Fatal("cannot acquire backing memory: %v. Aborting.", err)
	}
	p.arenas = append(p.arenas, a)

	addr, ok := a.allocate(log2Size)
	if !ok {
		logger.Fatal("fresh arena cannot hold a region of order %d", log2Size)
	}
	p.grant(addr, log2Size)
	return a.pointerTo(addr)
}

// Release returns a region previously obtained from Acquire.
func (p *Provider) Release(ptr unsafe.Pointer) {
	addr := uintptr(ptr)

	p.mu.Lock()
	defer p.mu.Unlock()

	log2, ok := p.allocated[addr]
	if !ok {
		logger.Fatal("release of unknown region %#x", addr)
	}
	delete(p.allocated, addr)
	p.used -= uint64(1) << log2

	for _, a := range p.arenas {
		if a.contains(addr) {
			a.release(addr, log2)
			return
		}
	}
}

func (p *Provider) grant(addr uintptr, log2 uint) {
	p.allocated[addr] = log2
	p.used += uint64(1) << log2
}

// UsedSize returns the total size of regions currently handed out.
func (p *Provider) UsedSize() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// MappedSize returns the total size of mapped arenas.
func (p *Provider) MappedSize() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(len(p.arenas)) << arenaLog2
}

// Close unmaps every arena. All regions handed out become invalid.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.arenas {
		if err := unix.Munmap(a.data); err != nil {
			return err
		}
	}
	p.arenas = nil
	p.allocated = make(map[uintptr]uint)
	p.used = 0
	return nil
}
