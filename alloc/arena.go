package alloc

import (
	"fmt"
	"unsafe"

	"github.com/dustin/go-humanize"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/internal/logger"
	"github.com/joshuapare/memkit/internal/pages"
)

// DefaultRegionPages is the region size, in pages, used when
// ArenaOptions.RegionPages is not set.
const DefaultRegionPages = 16

// ArenaOptions configures an Arena.
type ArenaOptions struct {
	// RegionPages is the default region size in pages. Larger requests get a
	// region of their own, rounded up to whole pages.
	RegionPages int

	// MaxRegions caps the number of regions. Zero means unbounded; otherwise
	// a request that needs another region fails with ErrNoSpace.
	MaxRegions int
}

// ArenaSnapshot is a position in an Arena, taken by Snapshot and restored by Rewind.
type ArenaSnapshot struct {
	region int
	offset int
}

// region is one page-backed chunk of an Arena. data is never resized; the
// fill offset only moves forward between rewinds.
type region struct {
	data   []byte
	offset int
}

func (r *region) addr() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(r.data))) + uintptr(r.offset)
}

// Arena is a region allocator. Memory is taken from an ordered list of
// page-backed regions and only reclaimed in bulk, by Clear or Rewind.
//
// Regions never move, so pointers stay valid until they are rewound past or
// cleared. Arena has no per-block metadata: Free is a no-op and handles are
// not supported.
type Arena struct {
	noCopy noCopy

	opts    ArenaOptions
	regions []region

	// cur is the active region. Regions after it are empty.
	cur int

	// lastRegion/lastOff locate the most recent block, the only one Realloc
	// can extend in place. lastRegion is -1 when there is none.
	lastRegion int
	lastOff    int

	closed bool

	counters
}

// NewArena creates an empty Arena. No memory is mapped until the first allocation.
func NewArena(opts ArenaOptions) *Arena {
	if opts.RegionPages <= 0 {
		opts.RegionPages = DefaultRegionPages
	}
	return &Arena{opts: opts, lastRegion: -1}
}

// Alloc returns size bytes aligned to alignment.
func (a *Arena) Alloc(size, alignment int) (unsafe.Pointer, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return nil, err
	}
	if a.closed {
		return nil, ErrClosed
	}
	return a.alloc(size, align)
}

// Realloc extends the most recent block in place when its region has room.
// Any other block is copied into a new one.
func (a *Arena) Realloc(p unsafe.Pointer, size, alignment int) (unsafe.Pointer, error) {
	if p == nil {
		return a.Alloc(size, alignment)
	}
	align, err := checkRequest(size, alignment)
	if err != nil {
		return nil, err
	}
	if a.closed {
		return nil, ErrClosed
	}
	ri, off, ok := a.locate(p)
	if !ok {
		a.rejected++
		logger.Warn("arena: realloc of foreign pointer", "ptr", p)
		return nil, ErrBadRef
	}

	r := &a.regions[ri]
	if ri == a.lastRegion && off == a.lastOff && Padding(uintptr(p), align) == 0 {
		if end, ok := buf.AddOverflowSafe(off, size); ok && end <= len(r.data) {
			r.offset = end
			return p, nil
		}
	}

	// The old block ends at or before the region's fill offset. Copying up to
	// it can carry later blocks' bytes, so the tail past the old size is
	// unspecified.
	avail := max(r.offset-off, 0)
	src := r.data[off : off+avail]
	np, err := a.alloc(size, align)
	if err != nil {
		return nil, err
	}
	copy(unsafe.Slice((*byte)(np), size), src[:min(size, avail)])
	return np, nil
}

// Free is a no-op: arena memory is reclaimed by Clear or Rewind.
func (a *Arena) Free(p unsafe.Pointer) error {
	return nil
}

// AllocHandle is not supported: arena blocks have no stable base.
func (a *Arena) AllocHandle(size, alignment int) (Handle, error) {
	return NilHandle, misuse("arena", "AllocHandle")
}

// Mem is not supported and returns nil.
func (a *Arena) Mem(h Handle) unsafe.Pointer {
	_ = misuse("arena", "Mem")
	return nil
}

// ReallocHandle is not supported.
func (a *Arena) ReallocHandle(h Handle, size, alignment int) (Handle, error) {
	return NilHandle, misuse("arena", "ReallocHandle")
}

// FreeHandle is not supported.
func (a *Arena) FreeHandle(h Handle) error {
	return misuse("arena", "FreeHandle")
}

// Reserve makes sure a region at or after the active one can take capacity
// bytes, mapping a new region if none can.
func (a *Arena) Reserve(capacity int) error {
	if err := checkSize(capacity); err != nil {
		return err
	}
	if a.closed {
		return ErrClosed
	}
	for i := a.cur; i < len(a.regions); i++ {
		r := &a.regions[i]
		if len(r.data)-r.offset >= capacity {
			return nil
		}
	}
	_, err := a.addRegion(capacity, 1)
	return err
}

// Clear resets every region to empty. The regions stay mapped for reuse.
func (a *Arena) Clear() {
	for i := range a.regions {
		a.regions[i].offset = 0
	}
	a.cur = 0
	a.lastRegion = -1
}

// Snapshot captures the current position.
func (a *Arena) Snapshot() ArenaSnapshot {
	if len(a.regions) == 0 {
		return ArenaSnapshot{}
	}
	return ArenaSnapshot{region: a.cur, offset: a.regions[a.cur].offset}
}

// Rewind restores a position taken by Snapshot. Everything allocated since
// is released at once; later regions are emptied but kept. A snapshot ahead
// of the current position is refused with ErrBadSnapshot.
func (a *Arena) Rewind(s ArenaSnapshot) error {
	cur := a.Snapshot()
	if s.region > cur.region || (s.region == cur.region && s.offset > cur.offset) || s.offset < 0 {
		return fmt.Errorf("%w: snapshot (%d, %d), position (%d, %d)",
			ErrBadSnapshot, s.region, s.offset, cur.region, cur.offset)
	}
	if len(a.regions) == 0 {
		return nil
	}
	a.regions[s.region].offset = s.offset
	for i := s.region + 1; i < len(a.regions); i++ {
		a.regions[i].offset = 0
	}
	a.cur = s.region
	a.lastRegion = -1
	return nil
}

// Regions returns the number of mapped regions.
func (a *Arena) Regions() int { return len(a.regions) }

// Stats returns a snapshot of the arena's accounting. Grows counts regions mapped.
func (a *Arena) Stats() Stats {
	s := Stats{Kind: "arena"}
	for i := range a.regions {
		s.Capacity += len(a.regions[i].data)
		s.Used += a.regions[i].offset
	}
	a.counters.fill(&s)
	return s
}

// Close unmaps every region. The arena cannot be used afterwards.
func (a *Arena) Close() {
	for i := range a.regions {
		if err := pages.Free(a.regions[i].data); err != nil {
			logger.Warn("arena: unmap region", "region", i, "err", err)
		}
	}
	a.regions = nil
	a.cur = 0
	a.lastRegion = -1
	a.closed = true
}

func (a *Arena) alloc(size int, align uintptr) (unsafe.Pointer, error) {
	for i := a.cur; i < len(a.regions); i++ {
		if p, ok := a.allocIn(i, size, align); ok {
			return p, nil
		}
	}
	i, err := a.addRegion(size, align)
	if err != nil {
		return nil, err
	}
	p, ok := a.allocIn(i, size, align)
	if !ok {
		// Regions are sized for size+align, so this cannot happen.
		panic(fmt.Sprintf("arena: fresh region %d cannot hold %d bytes", i, size))
	}
	return p, nil
}

func (a *Arena) allocIn(i, size int, align uintptr) (unsafe.Pointer, bool) {
	r := &a.regions[i]
	pad := int(Padding(r.addr(), align))
	end, ok := buf.AddOverflowSafe(r.offset, pad+size)
	if !ok || end > len(r.data) {
		return nil, false
	}
	off := r.offset + pad
	r.offset = end
	a.cur = i
	a.lastRegion, a.lastOff = i, off
	a.allocs++
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(r.data)), off), true
}

// addRegion maps a region able to hold size bytes at the given alignment and
// returns its index.
func (a *Arena) addRegion(size int, align uintptr) (int, error) {
	if a.opts.MaxRegions > 0 && len(a.regions) >= a.opts.MaxRegions {
		return 0, fmt.Errorf("%w: arena limited to %d regions", ErrNoSpace, a.opts.MaxRegions)
	}
	need, ok := buf.AddOverflowSafe(size, int(align))
	if !ok {
		return 0, fmt.Errorf("%w: %d bytes overflows", ErrBadSize, size)
	}
	n := pages.Round(max(need, a.opts.RegionPages*pages.Size()))
	data, err := pages.Alloc(n)
	if err != nil {
		fatal("map %d byte arena region: %v", n, err)
	}
	a.regions = append(a.regions, region{data: data})
	a.grows++
	logger.Debug("arena: new region",
		"region", len(a.regions)-1,
		"size", humanize.IBytes(uint64(n)),
	)
	return len(a.regions) - 1, nil
}

// locate finds the region and offset of p.
func (a *Arena) locate(p unsafe.Pointer) (int, int, bool) {
	for i := range a.regions {
		base := unsafe.Pointer(unsafe.SliceData(a.regions[i].data))
		if AddressInRange(base, len(a.regions[i].data), p) {
			return i, int(PtrToHandle(p, base)), true
		}
	}
	return 0, 0, false
}

var _ Allocator = (*Arena)(nil)
