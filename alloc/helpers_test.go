package alloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// panicOnFatal replaces the exiting fatal handler with one that panics, for
// the duration of the test.
func panicOnFatal(t *testing.T) {
	t.Helper()
	prev := SetFatalHandler(func(err error) { panic(err) })
	t.Cleanup(func() { SetFatalHandler(prev) })
}

// requireAligned asserts that p is aligned to alignment.
func requireAligned(t *testing.T, p unsafe.Pointer, alignment int) {
	t.Helper()
	require.NotNil(t, p)
	require.Zero(t, uintptr(p)%uintptr(alignment), "pointer %p not aligned to %d", p, alignment)
}

// fill writes b into n bytes at p.
func fill(p unsafe.Pointer, n int, b byte) {
	s := BytesAt(p, n)
	for i := range s {
		s[i] = b
	}
}

// requireFilled asserts that n bytes at p all equal b.
func requireFilled(t *testing.T, p unsafe.Pointer, n int, b byte) {
	t.Helper()
	for i, v := range BytesAt(p, n) {
		require.Equal(t, b, v, "byte %d", i)
	}
}

type span struct{ start, end uintptr }

// requireDisjoint asserts that no two spans overlap.
func requireDisjoint(t *testing.T, spans []span) {
	t.Helper()
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			require.False(t, a.start < b.end && b.start < a.end,
				"blocks %d [%#x,%#x) and %d [%#x,%#x) overlap", i, a.start, a.end, j, b.start, b.end)
		}
	}
}
