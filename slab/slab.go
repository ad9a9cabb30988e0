package slab

import (
	"unsafe"

	"slabAllocator/logger"
)

// descOf returns the descriptor stored at the tail of the region at base.
func (c *Cache) descOf(base unsafe.Pointer) *slabDesc {
	return (*slabDesc)(unsafe.Add(base, c.SlabSize()-descSize))
}

// slabBase recovers the owning slab's base address from any pointer into it.
// Backing regions are slab-size aligned, so masking the low bits suffices.
func (c *Cache) slabBase(ptr unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr) &^ (c.SlabSize() - 1))
}

// provisionSlab acquires one backing region, threads every slot into the
// slab's free list in descending address order and links the slab onto FREE.
func (c *Cache) provisionSlab() {
	base := c.provider.Acquire(MinSlabOrder + c.slabOrder)
	if base == nil {
		logger.Fatal("cannot acquire backing region of order %d. Aborting.", c.slabOrder)
	}

	s := c.descOf(base)
	s.next = nil
	s.prev = nil
	s.freeObjects = c.slabObjects

	// Slot i links to slot i-1, so the first pop returns the
	// highest-addressed slot.
	var prev *objectNode
	for i := uintptr(0); i < c.slabObjects; i++ {
		node := (*objectNode)(unsafe.Add(base, i*c.objectSize))
		node.next = prev
		prev = node
	}
	s.freeHead = prev

	c.pushSlab(s, listFree)
	logger.Debug("provisioned slab at %p with %d slots", base, c.slabObjects)
}

// popObject removes the head of the slab's free list. The slab must have at
// least one free slot; list membership guarantees that at every call site.
func (s *slabDesc) popObject() unsafe.Pointer {
	obj := s.freeHead
	s.freeHead = obj.next
	s.freeObjects--
	return unsafe.Pointer(obj)
}

// pushObject threads a slot back onto the slab's free list.
func (s *slabDesc) pushObject(obj unsafe.Pointer) {
	node := (*objectNode)(obj)
	node.next = s.freeHead
	s.freeHead = node
	s.freeObjects++
}

// pushSlab links s at the head of the given list.
func (c *Cache) pushSlab(s *slabDesc, lst listKind) {
	s.prev = nil
	s.next = c.lists[lst]
	if c.lists[lst] != nil {
		c.lists[lst].prev = s
	}
	c.lists[lst] = s
}

// popSlab unlinks s from the given list.
func (c *Cache) popSlab(s *slabDesc, lst listKind) *slabDesc {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		c.lists[lst] = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	return s
}
