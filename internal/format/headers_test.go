package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreeNodeRoundTrip(t *testing.T) {
	b := make([]byte, 64)

	PutFreeNode(b, 16, FreeNode{Next: 48, Size: 32})
	require.Equal(t, FreeNode{Next: 48, Size: 32}, ReadFreeNode(b, 16))

	PutNodeNext(b, 16, NoNode)
	n := ReadFreeNode(b, 16)
	require.Equal(t, NoNode, n.Next)
	require.Equal(t, 32, n.Size, "rewriting next must not touch size")

	PutNodeSize(b, 16, 40)
	require.Equal(t, 40, ReadFreeNode(b, 16).Size)
}

func TestNoNodeIsAllOnes(t *testing.T) {
	b := make([]byte, NodeSize)
	PutNodeNext(b, 0, NoNode)
	for i := 0; i < FieldSize; i++ {
		require.Equal(t, byte(0xff), b[i])
	}
}

func TestAllocHeaderFootprint(t *testing.T) {
	b := make([]byte, 32)
	PutAllocHeader(b, 8, AllocHeader{Size: 100, Padding: 20})

	h := ReadAllocHeader(b, 8)
	require.Equal(t, 100, h.Size)
	require.Equal(t, 20, h.Padding)
	require.Equal(t, 120, h.Footprint())
}

func TestStackHeaderLayout(t *testing.T) {
	b := make([]byte, StackHeaderSize)
	PutStackHeader(b, 0, StackHeader{Diff: 0x1122, Padding: 0x18})

	require.Equal(t, uint64(0x1122), ReadU64(b, StackDiffOffset))
	require.Equal(t, uint64(0x18), ReadU64(b, StackPaddingOffset))
	require.Equal(t, StackHeader{Diff: 0x1122, Padding: 0x18}, ReadStackHeader(b, 0))
}
