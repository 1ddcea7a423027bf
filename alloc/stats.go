package alloc

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a snapshot of an allocator's accounting.
type Stats struct {
	Kind          string // "arena", "linear", "stack", "freelist" or "general"
	Capacity      int    // bytes of backing memory currently held
	Used          int    // bytes handed out, padding and headers included
	Allocs        int    // successful allocations
	Frees         int    // accepted frees
	RejectedFrees int    // frees refused as invalid
	Grows         int    // backing buffer growths or new regions
}

// Available returns Capacity - Used.
func (s Stats) Available() int {
	return s.Capacity - s.Used
}

// String provides a human readable snapshot of the stats.
func (s Stats) String() string {
	return fmt.Sprintf(
		"{Kind: %s Capacity: %s Used: %s Allocs: %d Frees: %d RejectedFrees: %d Grows: %d}",
		s.Kind,
		humanize.IBytes(uint64(s.Capacity)),
		humanize.IBytes(uint64(s.Used)),
		s.Allocs, s.Frees, s.RejectedFrees, s.Grows,
	)
}

// counters are embedded in every allocator.
type counters struct {
	allocs   int
	frees    int
	rejected int
	grows    int
}

func (c *counters) fill(s *Stats) {
	s.Allocs = c.allocs
	s.Frees = c.frees
	s.RejectedFrees = c.rejected
	s.Grows = c.grows
}
