package mem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAlignment(t *testing.T) {
	provider := NewProvider()
	defer provider.Close()

	for log2 := uint(MinBlockLog2); log2 <= MaxBlockLog2; log2++ {
		ptr := provider.Acquire(log2)
		require.NotNil(t, ptr)
		size := uintptr(1) << log2
		assert.Zero(t, uintptr(ptr)&(size-1), "order %d region not self-aligned", log2)
		provider.Release(ptr)
	}
	assert.Equal(t, uint64(0), provider.UsedSize())
}

func TestAcquireDistinctRegions(t *testing.T) {
	provider := NewProvider()
	defer provider.Close()

	seen := make(map[uintptr]bool)
	ptrs := make([]unsafe.Pointer, 64)
	for i := range ptrs {
		ptrs[i] = provider.Acquire(MinBlockLog2)
		addr := uintptr(ptrs[i])
		require.False(t, seen[addr], "region handed out twice")
		seen[addr] = true
	}
	assert.Equal(t, uint64(64*4096), provider.UsedSize())

	for _, p := range ptrs {
		provider.Release(p)
	}
	assert.Equal(t, uint64(0), provider.UsedSize())
}

func TestBuddyMerge(t *testing.T) {
	provider := NewProvider()
	defer provider.Close()

	// Two smallest blocks out of a fresh arena are buddies. Releasing both
	// coalesces all the way back up to a maximum-order block at the same
	// address.
	a := provider.Acquire(MinBlockLog2)
	b := provider.Acquire(MinBlockLog2)
	assert.Equal(t, uintptr(a)^(1<<MinBlockLog2), uintptr(b))

	provider.Release(a)
	provider.Release(b)

	ar := provider.arenas[0]
	roots := 1 << (arenaLog2 - MaxBlockLog2)
	require.Len(t, ar.free[orderCount-1], roots)
	root := uintptr(a) &^ (uintptr(1)<<MaxBlockLog2 - 1)
	_, ok := ar.free[orderCount-1][root]
	assert.True(t, ok, "merged block did not return to its root")
}

func TestArenaGrowth(t *testing.T) {
	provider := NewProvider()
	defer provider.Close()

	// One arena holds 8 maximum-order blocks; the 9th forces a second arena.
	perArena := 1 << (arenaLog2 - MaxBlockLog2)
	ptrs := make([]unsafe.Pointer, perArena+1)
	for i := range ptrs {
		ptrs[i] = provider.Acquire(MaxBlockLog2)
	}
	assert.Equal(t, uint64(2)<<arenaLog2, provider.MappedSize())

	for _, p := range ptrs {
		provider.Release(p)
	}
	assert.Equal(t, uint64(0), provider.UsedSize())
}
