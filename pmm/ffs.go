package pmm

import (
	"pagingvm/kernel"
	"pagingvm/kernel/irq"
	"pagingvm/kernel/mem"
)

// ErrFFSPoolExhausted is returned when every FFS frame is in use.
var ErrFFSPoolExhausted = &kernel.Error{Module: "pmm", Message: "FFS pool exhausted"}

// PageDirectoryRef is an opaque handle to the page directory that owns a
// mapping. pmm never dereferences it; it exists only so FFSPool can record
// "which address space maps this frame" without importing vmm, which in
// turn imports pmm for page-table frame allocation.
type PageDirectoryRef interface{}

// ffsRecord tracks one FFS frame's ownership and mapping metadata, per
// spec.md §3/§4.1.
type ffsRecord struct {
	used        bool
	ownerPID    uint32
	mappedVAddr uint32
	ownerPD     PageDirectoryRef
	content     []byte
}

// FFSPool is the pool of frames that back user heap pages.
type FFSPool struct {
	size       int
	freeBitmap []uint64
	freeCount  int
	records    []ffsRecord
}

// NewFFSPool returns an FFSPool sized F, per the architecture's fixed
// memory map, with every frame free.
func NewFFSPool() *FFSPool {
	return NewFFSPoolSized(F)
}

// NewFFSPoolSized returns an FFSPool with size frames, every one free. Used
// by vmsys.Config to build small pools for fast integration test runs.
func NewFFSPoolSized(size int) *FFSPool {
	p := &FFSPool{
		size:       size,
		freeBitmap: make([]uint64, (size+63)/64),
		freeCount:  size,
		records:    make([]ffsRecord, size),
	}
	for i := range p.freeBitmap {
		p.freeBitmap[i] = ^uint64(0)
	}
	trimTrailingBits(p.freeBitmap, size)
	return p
}

// Size returns the total number of frames in the pool.
func (p *FFSPool) Size() int {
	return p.size
}

// FreeCount returns the number of unused FFS frames.
func (p *FFSPool) FreeCount() int {
	g := irq.Disable()
	defer g.Restore()
	return p.freeCount
}

// Alloc reserves a free FFS frame for pid, zeroes its contents, and returns
// its pool-relative index. The caller installs mapping metadata separately
// via Install once it knows the virtual address being mapped.
func (p *FFSPool) Alloc(pid uint32) (FFSFrame, error) {
	g := irq.Disable()
	defer g.Restore()

	idx, ok := firstSetBit(p.freeBitmap, p.size)
	if !ok {
		return 0, ErrFFSPoolExhausted
	}

	clearBit(p.freeBitmap, idx)
	p.freeCount--
	p.records[idx] = ffsRecord{
		used:     true,
		ownerPID: pid,
		content:  make([]byte, mem.PageSize),
	}
	return FFSFrame(idx), nil
}

// Free releases an FFS frame by index, clearing its record and returning it
// to the free pool.
func (p *FFSPool) Free(f FFSFrame) {
	g := irq.Disable()
	defer g.Restore()

	if !p.records[f].used {
		return
	}
	p.records[f] = ffsRecord{}
	setBit(p.freeBitmap, int(f))
	p.freeCount++
}

// Install records the virtual address and owning page directory that now
// map frame f, once the caller has decided where to install the PTE.
func (p *FFSPool) Install(f FFSFrame, vaddr uint32, pd PageDirectoryRef) {
	g := irq.Disable()
	defer g.Restore()

	p.records[f].mappedVAddr = vaddr
	p.records[f].ownerPD = pd
}

// ClearMapping removes the mapping metadata for frame f without freeing it,
// used by swap-out once the frame's contents have been copied to swap and
// the frame is about to be reclaimed by a new owner.
func (p *FFSPool) ClearMapping(f FFSFrame) {
	g := irq.Disable()
	defer g.Restore()

	p.records[f].mappedVAddr = 0
	p.records[f].ownerPD = nil
}

// TransferOwnership reassigns an already-used frame to a new owner without
// touching the free count, used by the eviction fast path in replace. The
// frame's contents are zeroed as part of the handoff, per spec.md §4.4
// step 6 ("transfer ownership → zero the frame → install PTE") - the
// victim's former owner must never leak into the new owner's page.
func (p *FFSPool) TransferOwnership(f FFSFrame, newPID uint32, vaddr uint32, pd PageDirectoryRef) {
	g := irq.Disable()
	defer g.Restore()

	p.records[f].ownerPID = newPID
	p.records[f].mappedVAddr = vaddr
	p.records[f].ownerPD = pd
	kernel.Memset(p.records[f].content, 0)
}

// Frame returns the backing storage for an allocated FFS frame.
func (p *FFSPool) Frame(f FFSFrame) []byte {
	return p.records[f].content
}

// Mapping returns the virtual address and owning page directory currently
// recorded for frame f, and whether the frame carries a valid mapping
// (used and both fields non-zero).
func (p *FFSPool) Mapping(f FFSFrame) (vaddr uint32, pd PageDirectoryRef, ok bool) {
	r := &p.records[f]
	if !r.used || r.mappedVAddr == 0 || r.ownerPD == nil {
		return 0, nil, false
	}
	return r.mappedVAddr, r.ownerPD, true
}

// Used reports whether frame f is currently allocated.
func (p *FFSPool) Used(f FFSFrame) bool {
	return p.records[f].used
}

// Owner returns the pid that owns frame f.
func (p *FFSPool) Owner(f FFSFrame) uint32 {
	return p.records[f].ownerPID
}

// UsedBy returns the number of FFS frames currently owned by pid.
func (p *FFSPool) UsedBy(pid uint32) int {
	g := irq.Disable()
	defer g.Restore()

	count := 0
	for i := range p.records {
		if p.records[i].used && p.records[i].ownerPID == pid {
			count++
		}
	}
	return count
}

// ReleaseAll frees every frame owned by pid, per spec.md §4.6's process
// termination step, and returns the number of frames released.
func (p *FFSPool) ReleaseAll(pid uint32) int {
	g := irq.Disable()
	defer g.Restore()

	released := 0
	for i := range p.records {
		if p.records[i].used && p.records[i].ownerPID == pid {
			p.records[i] = ffsRecord{}
			setBit(p.freeBitmap, i)
			p.freeCount++
			released++
		}
	}
	return released
}
