package alloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/format"
)

func newTestFreeList(t *testing.T, capacity int, resizable bool) *FreeList {
	t.Helper()
	panicOnFatal(t)
	fl, err := NewFreeList(capacity, FreeListOptions{Resizable: resizable})
	require.NoError(t, err)
	t.Cleanup(fl.Close)
	return fl
}

func TestFreeList_New(t *testing.T) {
	fl := newTestFreeList(t, 1024, false)

	require.Equal(t, 1024, fl.Capacity())
	require.Equal(t, 1024, fl.RemainSpace())
	require.Equal(t, []FreeBlock{{Offset: 0, Size: 1024}}, fl.FreeNodes())

	_, err := NewFreeList(format.NodeSize-1, FreeListOptions{})
	require.ErrorIs(t, err, ErrBadSize)

	_, err = NewFreeList(0, FreeListOptions{Buffer: make([]byte, 8)})
	require.ErrorIs(t, err, ErrBadSize)
}

// TestFreeList_RoundTrip allocates four blocks that overflow a 1024 byte
// buffer, frees them all and expects a single free block spanning the grown
// buffer.
func TestFreeList_RoundTrip(t *testing.T) {
	fl := newTestFreeList(t, 1024, true)

	var handles []Handle
	for _, size := range []int{448, 224, 628, 94} {
		h, err := fl.AllocHandle(size, 8)
		require.NoError(t, err, "alloc %d", size)
		requireAligned(t, fl.Mem(h), 8)
		handles = append(handles, h)
		fl.verify()
	}
	require.Equal(t, 2048, fl.Capacity(), "628 byte request doubles the buffer")
	require.Equal(t, 1, fl.Stats().Grows)

	for _, h := range handles {
		require.NoError(t, fl.FreeHandle(h))
		fl.verify()
	}

	require.Equal(t, 2048, fl.RemainSpace())
	require.Equal(t, fl.Capacity(), fl.RemainSpace())
	require.Equal(t, []FreeBlock{{Offset: 0, Size: 2048}}, fl.FreeNodes())
	require.Zero(t, fl.Used())
}

func TestFreeList_ExhaustionNotResizable(t *testing.T) {
	t.Run("request larger than buffer", func(t *testing.T) {
		fl := newTestFreeList(t, 64, false)

		_, err := fl.Alloc(128, 8)
		require.ErrorIs(t, err, ErrNoSpace)
		require.Equal(t, []FreeBlock{{Offset: 0, Size: 64}}, fl.FreeNodes())
	})

	t.Run("second request does not fit", func(t *testing.T) {
		fl := newTestFreeList(t, 128, false)

		_, err := fl.Alloc(64, 8)
		require.NoError(t, err)
		before := fl.FreeNodes()

		_, err = fl.Alloc(64, 8)
		require.ErrorIs(t, err, ErrNoSpace)
		require.Equal(t, before, fl.FreeNodes(), "free list untouched on failure")
		require.Equal(t, 128, fl.Capacity())
		require.Zero(t, fl.Stats().Grows)
	})
}

func TestFreeList_Split(t *testing.T) {
	fl := newTestFreeList(t, 1024, false)

	h, err := fl.AllocHandle(64, 8)
	require.NoError(t, err)
	require.Equal(t, Handle(format.AllocHeaderSize), h)

	hdr := format.ReadAllocHeader(fl.buf.data, int(h)-format.AllocHeaderSize)
	assert.Equal(t, 64, hdr.Size)
	assert.Equal(t, format.AllocHeaderSize, hdr.Padding)
	require.Equal(t, []FreeBlock{{Offset: 80, Size: 944}}, fl.FreeNodes())
	require.Equal(t, 80, fl.Used())
}

func TestFreeList_SmallRemainderAbsorbed(t *testing.T) {
	fl := newTestFreeList(t, 128, false)

	// 16 header + 96 leaves 16 bytes, too little for a block of its own.
	h, err := fl.AllocHandle(96, 8)
	require.NoError(t, err)

	hdr := format.ReadAllocHeader(fl.buf.data, int(h)-format.AllocHeaderSize)
	assert.Equal(t, 112, hdr.Size)
	assert.Empty(t, fl.FreeNodes())
	assert.Zero(t, fl.RemainSpace())
	fl.verify()

	require.NoError(t, fl.FreeHandle(h))
	require.Equal(t, []FreeBlock{{Offset: 0, Size: 128}}, fl.FreeNodes())
}

func TestFreeList_MinimumBlock(t *testing.T) {
	fl := newTestFreeList(t, 256, false)

	_, err := fl.AllocHandle(1, 8)
	require.NoError(t, err)
	require.Equal(t, format.AllocHeaderSize+format.NodeSize, fl.Used())
}

func TestFreeList_Coalescing(t *testing.T) {
	fl := newTestFreeList(t, 1024, false)

	a, err := fl.AllocHandle(64, 8)
	require.NoError(t, err)
	b, err := fl.AllocHandle(64, 8)
	require.NoError(t, err)
	c, err := fl.AllocHandle(64, 8)
	require.NoError(t, err)
	require.Equal(t, []FreeBlock{{Offset: 240, Size: 784}}, fl.FreeNodes())

	require.NoError(t, fl.FreeHandle(a))
	require.Equal(t, []FreeBlock{{0, 80}, {240, 784}}, fl.FreeNodes())

	// c merges with the tail.
	require.NoError(t, fl.FreeHandle(c))
	require.Equal(t, []FreeBlock{{0, 80}, {160, 864}}, fl.FreeNodes())

	// b bridges both neighbours.
	require.NoError(t, fl.FreeHandle(b))
	require.Equal(t, []FreeBlock{{0, 1024}}, fl.FreeNodes())
	fl.verify()
}

func TestFreeList_FirstFitReusesHole(t *testing.T) {
	fl := newTestFreeList(t, 1024, false)

	a, err := fl.AllocHandle(64, 8)
	require.NoError(t, err)
	_, err = fl.AllocHandle(64, 8)
	require.NoError(t, err)
	require.NoError(t, fl.FreeHandle(a))

	again, err := fl.AllocHandle(48, 8)
	require.NoError(t, err)
	require.Equal(t, a, again, "lowest fitting block is used first")
}

func TestFreeList_DoubleFree(t *testing.T) {
	fl := newTestFreeList(t, 1024, false)

	a, err := fl.Alloc(64, 8)
	require.NoError(t, err)
	_, err = fl.Alloc(64, 8)
	require.NoError(t, err)

	require.NoError(t, fl.Free(a))
	nodes := fl.FreeNodes()

	require.ErrorIs(t, fl.Free(a), ErrBadRef)
	require.Equal(t, nodes, fl.FreeNodes())
	require.Equal(t, 1, fl.Stats().RejectedFrees)
	require.Equal(t, 1, fl.Stats().Frees)
	fl.verify()
}

func TestFreeList_BadRef(t *testing.T) {
	fl := newTestFreeList(t, 256, false)

	require.ErrorIs(t, fl.FreeHandle(Handle(1024)), ErrBadRef)
	require.ErrorIs(t, fl.FreeHandle(Handle(4)), ErrBadRef)
	require.NoError(t, fl.FreeHandle(NilHandle))

	var x [16]byte
	require.ErrorIs(t, fl.Free(unsafe.Pointer(&x[0])), ErrBadRef)
}

func TestFreeList_ResizeEmptyList(t *testing.T) {
	fl := newTestFreeList(t, 128, false)

	h, err := fl.AllocHandle(112, 8)
	require.NoError(t, err)
	require.Empty(t, fl.FreeNodes())

	fl.Resize(256)
	require.Equal(t, 256, fl.Capacity())
	require.Equal(t, []FreeBlock{{Offset: 128, Size: 128}}, fl.FreeNodes())

	require.NoError(t, fl.FreeHandle(h))
	require.Equal(t, []FreeBlock{{Offset: 0, Size: 256}}, fl.FreeNodes())
}

func TestFreeList_ResizeExtendsAdjacentTail(t *testing.T) {
	fl := newTestFreeList(t, 128, false)

	fl.Resize(512)
	require.Equal(t, []FreeBlock{{Offset: 0, Size: 512}}, fl.FreeNodes())

	// Shrinking is ignored.
	fl.Resize(64)
	require.Equal(t, 512, fl.Capacity())
}

func TestFreeList_ResizeAppendsDetachedTail(t *testing.T) {
	fl := newTestFreeList(t, 256, false)

	a, err := fl.AllocHandle(64, 8)
	require.NoError(t, err)
	_, err = fl.AllocHandle(160, 8) // exactly fills the rest
	require.NoError(t, err)
	require.NoError(t, fl.FreeHandle(a))
	require.Equal(t, []FreeBlock{{0, 80}}, fl.FreeNodes())

	fl.Resize(512)
	require.Equal(t, []FreeBlock{{0, 80}, {256, 256}}, fl.FreeNodes())
	fl.verify()
}

func TestFreeList_GrowKeepsHandles(t *testing.T) {
	fl := newTestFreeList(t, 128, true)

	h, err := fl.AllocHandle(64, 8)
	require.NoError(t, err)
	fill(fl.Mem(h), 64, 0x42)

	h2, err := fl.AllocHandle(200, 8)
	require.NoError(t, err)
	require.Greater(t, fl.Capacity(), 128)
	requireFilled(t, fl.Mem(h), 64, 0x42)

	require.NoError(t, fl.FreeHandle(h))
	require.NoError(t, fl.FreeHandle(h2))
	require.Equal(t, fl.Capacity(), fl.RemainSpace())
}

func TestFreeList_Realloc(t *testing.T) {
	fl := newTestFreeList(t, 1024, false)

	p, err := fl.Alloc(64, 8)
	require.NoError(t, err)
	fill(p, 64, 0x77)

	// Shrinking keeps the block.
	q, err := fl.Realloc(p, 32, 8)
	require.NoError(t, err)
	require.Equal(t, p, q)

	// Growing moves, copies and frees the old block.
	used := fl.Used()
	r, err := fl.Realloc(q, 256, 8)
	require.NoError(t, err)
	require.NotEqual(t, q, r)
	requireFilled(t, r, 64, 0x77)
	require.Equal(t, used-80+272, fl.Used())
	fl.verify()
}

func TestFreeList_ReallocFreedBlock(t *testing.T) {
	fl := newTestFreeList(t, 1024, false)

	// 64-byte alignment puts the header clear of the node written on free,
	// so the stale header still reads as valid.
	h, err := fl.AllocHandle(64, 64)
	require.NoError(t, err)
	_, err = fl.AllocHandle(32, 8)
	require.NoError(t, err)
	require.NoError(t, fl.FreeHandle(h))

	remain, used, nodes := fl.RemainSpace(), fl.Used(), fl.FreeNodes()
	_, err = fl.ReallocHandle(h, 200, 8)
	require.ErrorIs(t, err, ErrBadRef)

	require.Equal(t, remain, fl.RemainSpace())
	require.Equal(t, used, fl.Used())
	require.Equal(t, nodes, fl.FreeNodes())
	require.Equal(t, 1, fl.Stats().RejectedFrees)
	require.Equal(t, 2, fl.Stats().Allocs)
	fl.verify()
}

func TestFreeList_AlignedAllocs(t *testing.T) {
	fl := newTestFreeList(t, 8192, false)

	var (
		spans []span
		ptrs  []unsafe.Pointer
	)
	for i, align := range []int{8, 16, 32, 64, 128, 256, 512} {
		p, err := fl.Alloc(24+i, align)
		require.NoError(t, err)
		requireAligned(t, p, align)
		spans = append(spans, span{uintptr(p), uintptr(p) + uintptr(24+i)})
		ptrs = append(ptrs, p)
		fl.verify()
	}
	requireDisjoint(t, spans)

	for _, p := range ptrs {
		require.NoError(t, fl.Free(p))
	}
	require.Equal(t, []FreeBlock{{0, 8192}}, fl.FreeNodes())
}

func TestFreeList_Clear(t *testing.T) {
	fl := newTestFreeList(t, 512, false)

	for range 4 {
		_, err := fl.Alloc(32, 8)
		require.NoError(t, err)
	}
	fl.Clear()
	require.Equal(t, 512, fl.RemainSpace())
	require.Zero(t, fl.Used())
}

func TestFreeList_BorrowedBuffer(t *testing.T) {
	panicOnFatal(t)
	backing := make([]byte, 256)
	fl, err := NewFreeList(0, FreeListOptions{Buffer: backing, Resizable: true})
	require.NoError(t, err)
	t.Cleanup(fl.Close)

	require.Equal(t, 256, fl.Capacity())
	p, err := fl.Alloc(32, 8)
	require.NoError(t, err)
	requireAligned(t, p, 8)

	// Growing leaves the caller's buffer in place.
	_, err = fl.Alloc(1024, 8)
	require.NoError(t, err)
	require.Greater(t, fl.Capacity(), 256)
	require.Len(t, backing, 256)
	fl.verify()
}

func TestFreeList_CoalesceEitherOrder(t *testing.T) {
	for _, order := range [][2]int{{0, 1}, {1, 0}} {
		fl := newTestFreeList(t, 160, false)

		var hs [2]Handle
		for i := range hs {
			h, err := fl.AllocHandle(64, 8)
			require.NoError(t, err)
			hs[i] = h
		}
		require.Zero(t, fl.RemainSpace(), "two 80 byte footprints fill the buffer")

		require.NoError(t, fl.FreeHandle(hs[order[0]]))
		require.NoError(t, fl.FreeHandle(hs[order[1]]))
		require.Equal(t, 160, fl.RemainSpace())
		require.Len(t, fl.FreeNodes(), 1, "order %v", order)
	}
}
