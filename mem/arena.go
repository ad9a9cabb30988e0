package mem

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"slabAllocator/logger"
)

// arena is one mmap'd region carved by a buddy system. The arena start is
// aligned to the maximum block size; every split halves an aligned block, so
// free-list addresses stay naturally aligned to their own size.
type arena struct {
	data []byte
	base uintptr
	free [orderCount]map[uintptr]struct{} // free block start addresses per order
}

// mapArena maps one arena aligned to 2^MaxBlockLog2. The kernel only
// guarantees page alignment, so it over-maps by one maximum block and trims
// the misaligned head and the tail.
func mapArena() (*arena, error) {
	const size = 1 << arenaLog2
	const align = uintptr(1) << MaxBlockLog2

	data, err := unix.Mmap(-1, 0, size+int(align),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap arena")
	}

	start := uintptr(unsafe.Pointer(&data[0]))
	aligned := (start + align - 1) &^ (align - 1)
	head := int(aligned - start)

	if head > 0 {
		if err := unix.Munmap(data[:head:head]); err != nil {
			return nil, errors.Wrap(err, "trim arena head")
		}
	}
	if tail := data[head+size:]; len(tail) > 0 {
		if err := unix.Munmap(tail); err != nil {
			return nil, errors.Wrap(err, "trim arena tail")
		}
	}

	a := &arena{
		data: data[head : head+size : head+size],
		base: aligned,
	}
	for i := range a.free {
		a.free[i] = make(map[uintptr]struct{})
	}
	for addr := aligned; addr < aligned+size; addr += 1 << MaxBlockLog2 {
		a.free[orderCount-1][addr] = struct{}{}
	}

	logger.Debug("mapped arena at %#x", aligned)
	return a, nil
}

func (a *arena) contains(addr uintptr) bool {
	return addr >= a.base && addr < a.base+uintptr(len(a.data))
}

// pointerTo rebuilds a pointer into the arena's mapping from an absolute
// address, keeping the conversion anchored to the mapping itself.
func (a *arena) pointerTo(addr uintptr) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(&a.data[0]), addr-a.base)
}

// allocate takes one free block of 2^log2 bytes, splitting a larger block
// when the order's own list is empty. Reports false when the arena has no
// block left that is big enough.
func (a *arena) allocate(log2 uint) (uintptr, bool) {
	want := int(log2 - MinBlockLog2)

	i := want
	for i < orderCount && len(a.free[i]) == 0 {
		i++
	}
	if i == orderCount {
		return 0, false
	}

	var addr uintptr
	for addr = range a.free[i] {
		break
	}
	delete(a.free[i], addr)

	// Split down to the requested order, keeping the low half each time.
	for i > want {
		i--
		half := addr + uintptr(1)<<(uint(i)+MinBlockLog2)
		a.free[i][half] = struct{}{}
	}
	return addr, true
}

// release puts a block back and coalesces it with its buddy as far up as the
// maximum order. The buddy address is the block's own with its size bit
// flipped; the arena's alignment keeps that arithmetic valid on absolute
// addresses.
func (a *arena) release(addr uintptr, log2 uint) {
	for log2 < MaxBlockLog2 {
		buddy := addr ^ uintptr(1)<<log2
		o := int(log2 - MinBlockLog2)
		if _, ok := a.free[o][buddy]; !ok {
			break
		}
		delete(a.free[o], buddy)
		if buddy < addr {
			addr = buddy
		}
		log2++
	}
	a.free[log2-MinBlockLog2][addr] = struct{}{}
}
