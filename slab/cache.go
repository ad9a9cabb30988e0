package slab

import (
	"unsafe"

	"github.com/pkg/errors"

	"slabAllocator/logger"
)

// NewCache initializes a cache for objects of objectSize bytes backed by p.
// The slab order is the smallest one that amortizes the descriptor across at
// least MinSlabObjects slots; one initial slab is provisioned onto FREE.
// An out-of-range object size is a programmer error and aborts the process.
func NewCache(objectSize uintptr, p Provider) *Cache {
	if objectSize < MinObjectSize {
		logger.Fatal("object size %d is below the minimum %d. Aborting.", objectSize, MinObjectSize)
	}
	if objectSize >= MaxObjectSize {
		logger.Fatal("object size %d exceeds the maximum %d. Aborting.", objectSize, MaxObjectSize)
	}

	c := &Cache{
		objectSize: objectSize,
		provider:   p,
	}
	for c.SlabSize() <= objectSize*MinSlabObjects && c.slabOrder < maxSlabOrder {
		c.slabOrder++
	}
	c.slabObjects = (c.SlabSize() - descSize) / objectSize

	logger.Debug("cache for size %d: order %d, %d slots per slab",
		objectSize, c.slabOrder, c.slabObjects)
	c.provisionSlab()
	return c
}

// Alloc returns a pointer to objectSize bytes of uninitialized storage. It
// never returns nil: when the provider cannot supply a new slab the process
// is aborted.
func (c *Cache) Alloc() unsafe.Pointer {
	if s := c.lists[listPartial]; s != nil {
		obj := s.popObject()
		if s.freeObjects == 0 {
			c.pushSlab(c.popSlab(s, listPartial), listFull)
		}
		return obj
	}

	if c.lists[listFree] == nil {
		c.provisionSlab()
	}
	s := c.lists[listFree]
	obj := s.popObject()
	c.popSlab(s, listFree)
	if s.freeObjects == 0 {
		c.pushSlab(s, listFull)
	} else {
		c.pushSlab(s, listPartial)
	}
	return obj
}

// Free accepts a pointer previously returned by Alloc on this cache.
// Behavior on any other pointer is undefined.
func (c *Cache) Free(ptr unsafe.Pointer) {
	s := c.descOf(c.slabBase(ptr))
	current := listPartial
	if s.freeObjects == 0 {
		current = listFull
	}
	s.pushObject(ptr)
	switch {
	case s.freeObjects == c.slabObjects:
		c.pushSlab(c.popSlab(s, current), listFree)
	case current == listFull:
		c.pushSlab(c.popSlab(s, current), listPartial)
	}
}

// Shrink releases every fully-free slab back to the provider. Slabs holding
// live objects are untouched; the cache never shrinks implicitly.
func (c *Cache) Shrink() {
	for c.lists[listFree] != nil {
		s := c.popSlab(c.lists[listFree], listFree)
		c.provider.Release(c.slabBase(unsafe.Pointer(s)))
	}
}

// Release returns every slab on all three lists to the provider and leaves
// the cache as if it had never been set up. Outstanding pointers are
// invalidated; the cache must be set up again before further use.
func (c *Cache) Release() {
	for lst := listFree; lst < listCount; lst++ {
		for c.lists[lst] != nil {
			s := c.popSlab(c.lists[lst], lst)
			c.provider.Release(c.slabBase(unsafe.Pointer(s)))
		}
	}
}

// Stats reports the cache's occupancy.
type Stats struct {
	FreeSlabs    int
	PartialSlabs int
	FullSlabs    int
	FreeObjects  uint64
	LiveObjects  uint64
}

// Stats walks the three lists and tallies slabs and objects.
func (c *Cache) Stats() Stats {
	var st Stats
	slabs := 0
	for lst := listFree; lst < listCount; lst++ {
		n := 0
		for s := c.lists[lst]; s != nil; s = s.next {
			n++
			st.FreeObjects += uint64(s.freeObjects)
		}
		slabs += n
		switch lst {
		case listFree:
			st.FreeSlabs = n
		case listPartial:
			st.PartialSlabs = n
		case listFull:
			st.FullSlabs = n
		}
	}
	st.LiveObjects = uint64(slabs)*uint64(c.slabObjects) - st.FreeObjects
	return st
}

// CheckInvariants validates the structural invariants: every slab's list
// membership matches its free count, and each intra-slab free list holds
// exactly freeObjects slots, all object-aligned inside the slot range.
func (c *Cache) CheckInvariants() error {
	for lst := listFree; lst < listCount; lst++ {
		for s := c.lists[lst]; s != nil; s = s.next {
			switch {
			case lst == listFree && s.freeObjects != c.slabObjects:
				return errors.Errorf("slab on FREE with %d/%d free slots", s.freeObjects, c.slabObjects)
			case lst == listPartial && (s.freeObjects == 0 || s.freeObjects >= c.slabObjects):
				return errors.Errorf("slab on PARTIAL with %d/%d free slots", s.freeObjects, c.slabObjects)
			case lst == listFull && s.freeObjects != 0:
				return errors.Errorf("slab on FULL with %d free slots", s.freeObjects)
			}

			base := uintptr(c.slabBase(unsafe.Pointer(s)))
			n := uintptr(0)
			for node := s.freeHead; node != nil; node = node.next {
				off := uintptr(unsafe.Pointer(node)) - base
				if off%c.objectSize != 0 || off >= c.slabObjects*c.objectSize {
					return errors.Errorf("free slot at offset %d outside the slot range", off)
				}
				n++
			}
			if n != s.freeObjects {
				return errors.Errorf("free list holds %d slots, descriptor says %d", n, s.freeObjects)
			}
		}
	}
	return nil
}
