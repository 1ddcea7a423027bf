package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joshuapare/memkit/alloc"
)

var allocatorKinds = []string{"arena", "linear", "stack", "freelist", "general"}

// closer is implemented by every allocator.
type closer interface {
	Close()
}

// statsAllocator is what memctl needs from an allocator.
type statsAllocator interface {
	alloc.Allocator
	alloc.StatsReporter
	closer
}

// newAllocator builds an allocator of the given kind. capacity sizes the
// buffer of buffer-backed kinds and the region size of the arena.
func newAllocator(kind string, capacity int) (statsAllocator, error) {
	switch kind {
	case "arena":
		pages := max(capacity/os.Getpagesize(), 1)
		return alloc.NewArena(alloc.ArenaOptions{RegionPages: pages}), nil
	case "linear":
		return alloc.NewLinear(capacity), nil
	case "stack":
		return alloc.NewStack(capacity), nil
	case "freelist":
		return alloc.NewFreeList(capacity, alloc.FreeListOptions{Resizable: true})
	case "general":
		return alloc.NewGeneral(), nil
	default:
		return nil, fmt.Errorf("unknown allocator %q (want one of %s)", kind, strings.Join(allocatorKinds, ", "))
	}
}
