package alloc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinear(t *testing.T, capacity int) *Linear {
	t.Helper()
	panicOnFatal(t)
	l := NewLinear(capacity)
	t.Cleanup(l.Close)
	return l
}

func TestLinear_SequentialAllocs(t *testing.T) {
	l := newTestLinear(t, 1024)

	var spans []span
	for i, size := range []int{1, 7, 16, 33, 64, 5} {
		p, err := l.Alloc(size, 8)
		require.NoError(t, err, "alloc %d", i)
		requireAligned(t, p, 8)
		spans = append(spans, span{uintptr(p), uintptr(p) + uintptr(size)})
	}
	requireDisjoint(t, spans)

	// Blocks are laid out in order.
	for i := 1; i < len(spans); i++ {
		assert.Greater(t, spans[i].start, spans[i-1].start)
	}
	assert.Equal(t, 6, l.Stats().Allocs)
}

func TestLinear_Alignments(t *testing.T) {
	l := newTestLinear(t, 4096)

	for _, align := range []int{1, 2, 4, 8, 16, 32, 64, 128, 256} {
		_, err := l.Alloc(3, 1)
		require.NoError(t, err)
		p, err := l.Alloc(10, align)
		require.NoError(t, err)
		requireAligned(t, p, align)
	}
}

func TestLinear_BadRequests(t *testing.T) {
	l := newTestLinear(t, 64)

	_, err := l.Alloc(-1, 8)
	require.ErrorIs(t, err, ErrBadSize)

	_, err = l.Alloc(8, 12)
	require.ErrorIs(t, err, ErrBadAlignment)

	require.Zero(t, l.Count())
}

func TestLinear_ClearAtNinetyPercent(t *testing.T) {
	l := newTestLinear(t, 1000)
	capacity := l.Capacity()

	for l.Count() < capacity*9/10 {
		_, err := l.AllocHandle(10, 1)
		require.NoError(t, err)
	}
	require.Equal(t, capacity, l.Capacity(), "no growth expected below capacity")

	total := l.Count()
	l.Clear()
	require.Zero(t, l.Count())
	require.Equal(t, capacity, l.Remaining())

	_, err := l.AllocHandle(total, 1)
	require.NoError(t, err)
	require.Zero(t, l.Stats().Grows, "refill after Clear must not grow")
	l.Clear()

	h, err := l.AllocHandle(10, 1)
	require.NoError(t, err)
	require.Equal(t, Handle(0), h, "first block after Clear starts at the buffer base")
}

func TestLinear_FreeIsNoop(t *testing.T) {
	l := newTestLinear(t, 128)

	p, err := l.Alloc(32, 8)
	require.NoError(t, err)
	count := l.Count()

	require.NoError(t, l.Free(p))
	require.NoError(t, l.FreeHandle(0))
	require.Equal(t, count, l.Count())
}

func TestLinear_GrowKeepsHandles(t *testing.T) {
	l := newTestLinear(t, 64)

	h, err := l.AllocHandle(48, 8)
	require.NoError(t, err)
	fill(l.Mem(h), 48, 0xAB)

	// Does not fit: capacity doubles at least.
	h2, err := l.AllocHandle(200, 8)
	require.NoError(t, err)
	require.GreaterOrEqual(t, l.Capacity(), 248)
	require.Equal(t, 1, l.Stats().Grows)

	requireFilled(t, l.Mem(h), 48, 0xAB)
	require.NotNil(t, l.Mem(h2))
}

func TestLinear_ReallocLastInPlace(t *testing.T) {
	l := newTestLinear(t, 256)

	p, err := l.Alloc(16, 8)
	require.NoError(t, err)
	fill(p, 16, 1)

	q, err := l.Realloc(p, 64, 8)
	require.NoError(t, err)
	require.Equal(t, p, q)
	requireFilled(t, q, 16, 1)
	require.Equal(t, 64, l.Count())
}

func TestLinear_ReallocEarlierBlockCopies(t *testing.T) {
	l := newTestLinear(t, 256)

	p, err := l.Alloc(16, 8)
	require.NoError(t, err)
	fill(p, 16, 7)
	_, err = l.Alloc(16, 8)
	require.NoError(t, err)

	q, err := l.Realloc(p, 32, 8)
	require.NoError(t, err)
	require.NotEqual(t, p, q)
	requireFilled(t, q, 16, 7)
}

func TestLinear_ReallocHandleAcrossGrowth(t *testing.T) {
	l := newTestLinear(t, 64)

	h, err := l.AllocHandle(32, 8)
	require.NoError(t, err)
	fill(l.Mem(h), 32, 9)

	h2, err := l.ReallocHandle(h, 512, 8)
	require.NoError(t, err)
	require.Equal(t, h, h2, "last block grows in place")
	requireFilled(t, l.Mem(h2), 32, 9)

	_, err = l.ReallocHandle(Handle(10_000), 8, 8)
	require.ErrorIs(t, err, ErrBadRef)
}

func TestLinear_ForeignPointer(t *testing.T) {
	l := newTestLinear(t, 64)
	var x [8]byte
	_, err := l.Realloc(unsafe.Pointer(&x[0]), 8, 8)
	require.ErrorIs(t, err, ErrBadRef)
	require.Equal(t, 1, l.Stats().RejectedFrees)

	_, err = l.ReallocHandle(Handle(1000), 8, 8)
	require.ErrorIs(t, err, ErrBadRef)
	require.Equal(t, 2, l.Stats().RejectedFrees)
}

func TestLinear_ReallocOversizedKeepsCursor(t *testing.T) {
	l := newTestLinear(t, 256)

	_, err := l.AllocHandle(16, 8)
	require.NoError(t, err)
	h, err := l.AllocHandle(16, 8)
	require.NoError(t, err)
	count := l.Count()

	for _, size := range []int{math.MaxInt, MaxSize + 1} {
		_, err = l.ReallocHandle(h, size, 8)
		require.ErrorIs(t, err, ErrBadSize)
		require.Equal(t, count, l.Count())
		require.Equal(t, l.Capacity()-count, l.Remaining())
		require.Zero(t, l.Stats().Grows)
	}

	next, err := l.AllocHandle(8, 8)
	require.NoError(t, err)
	require.Equal(t, Handle(count), next)
}

func TestLinear_BorrowedBuffer(t *testing.T) {
	panicOnFatal(t)
	backing := make([]byte, 64)
	l := NewLinearWithBuffer(backing)
	t.Cleanup(l.Close)

	h, err := l.AllocHandle(16, 1)
	require.NoError(t, err)
	fill(l.Mem(h), 16, 0x5A)
	require.Equal(t, byte(0x5A), backing[int(h)])

	// Outgrowing the borrowed buffer moves to a managed one.
	_, err = l.AllocHandle(256, 1)
	require.NoError(t, err)
	requireFilled(t, l.Mem(h), 16, 0x5A)
	require.Len(t, backing, 64)
}

func TestLinear_Closed(t *testing.T) {
	panicOnFatal(t)
	l := NewLinear(64)
	l.Close()

	_, err := l.Alloc(8, 8)
	require.ErrorIs(t, err, ErrClosed)
}
