package alloc

import (
	"unsafe"

	"github.com/dustin/go-humanize"

	"github.com/joshuapare/memkit/internal/logger"
	"github.com/joshuapare/memkit/internal/pages"
)

// buffer is the single contiguous backing store of Linear, Stack and FreeList.
// A managed buffer comes from the pages package and is released by release;
// a borrowed one belongs to the caller and is never released.
type buffer struct {
	data    []byte
	managed bool
}

func newManagedBuffer(n int) buffer {
	data, err := pages.Alloc(n)
	if err != nil {
		fatal("allocate %d byte buffer: %v", n, err)
	}
	return buffer{data: data, managed: true}
}

func borrowedBuffer(b []byte) buffer {
	return buffer{data: b}
}

// closed reports whether the buffer was released.
func (b *buffer) closed() bool {
	return b.data == nil
}

func (b *buffer) len() int {
	return len(b.data)
}

func (b *buffer) base() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b.data))
}

// addr is the absolute address of offset off. Padding is computed against it
// so that returned pointers are aligned, not just offsets.
func (b *buffer) addr(off int) uintptr {
	return uintptr(b.base()) + uintptr(off)
}

func (b *buffer) ptr(off int) unsafe.Pointer {
	return unsafe.Add(b.base(), off)
}

// offsetOf converts p back to an offset, reporting false for foreign pointers.
func (b *buffer) offsetOf(p unsafe.Pointer) (int, bool) {
	if !AddressInRange(b.base(), b.len(), p) {
		return 0, false
	}
	return int(PtrToHandle(p, b.base())), true
}

// grow resizes the buffer to n bytes, relocating it when needed. Offsets stay
// valid; pointers into the old buffer do not. A borrowed buffer is copied into
// a new managed one and left untouched for its owner.
func (b *buffer) grow(kind string, n int) {
	if n <= b.len() {
		return
	}
	old := b.len()
	var (
		data []byte
		err  error
	)
	if b.managed {
		data, err = pages.Realloc(b.data, n)
	} else {
		data, err = pages.Alloc(n)
		if err == nil {
			copy(data, b.data)
		}
	}
	if err != nil {
		fatal("grow %s buffer from %d to %d bytes: %v", kind, old, n, err)
	}
	moved := unsafe.SliceData(data) != unsafe.SliceData(b.data)
	b.data = data
	b.managed = true
	logger.Debug(kind+": grow",
		"from", old,
		"to", n,
		"size", humanize.IBytes(uint64(n)),
		"moved", moved,
	)
}

func (b *buffer) release() {
	if b.managed {
		if err := pages.Free(b.data); err != nil {
			logger.Warn("alloc: release buffer", "err", err)
		}
	}
	b.data = nil
	b.managed = false
}
