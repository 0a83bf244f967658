package pmm

import (
	"pagingvm/kernel"
	"pagingvm/kernel/irq"
	"pagingvm/kernel/mem"
)

// ErrSwapPoolExhausted is returned when every swap slot is in use.
var ErrSwapPoolExhausted = &kernel.Error{Module: "pmm", Message: "swap pool exhausted"}

// swapRecord tracks one swap slot's ownership.
type swapRecord struct {
	used     bool
	ownerPID uint32
	content  []byte
}

// SwapPool is the pool of slots that hold evicted FFS frames.
type SwapPool struct {
	size       int
	freeBitmap []uint64
	freeCount  int
	records    []swapRecord
}

// NewSwapPool returns a SwapPool sized S, per the architecture's fixed
// memory map, with every slot free.
func NewSwapPool() *SwapPool {
	return NewSwapPoolSized(S)
}

// NewSwapPoolSized returns a SwapPool with size slots, every one free. Used
// by vmsys.Config to build small pools for fast integration test runs.
func NewSwapPoolSized(size int) *SwapPool {
	p := &SwapPool{
		size:       size,
		freeBitmap: make([]uint64, (size+63)/64),
		freeCount:  size,
		records:    make([]swapRecord, size),
	}
	for i := range p.freeBitmap {
		p.freeBitmap[i] = ^uint64(0)
	}
	trimTrailingBits(p.freeBitmap, size)
	return p
}

// FreeCount returns the number of unused swap slots.
func (p *SwapPool) FreeCount() int {
	g := irq.Disable()
	defer g.Restore()
	return p.freeCount
}

// Alloc reserves a free swap slot for pid and returns its pool-relative
// index.
func (p *SwapPool) Alloc(pid uint32) (SwapSlot, error) {
	g := irq.Disable()
	defer g.Restore()

	idx, ok := firstSetBit(p.freeBitmap, p.size)
	if !ok {
		return 0, ErrSwapPoolExhausted
	}

	clearBit(p.freeBitmap, idx)
	p.freeCount--
	p.records[idx] = swapRecord{
		used:     true,
		ownerPID: pid,
		content:  make([]byte, mem.PageSize),
	}
	return SwapSlot(idx), nil
}

// Free releases a swap slot by index.
func (p *SwapPool) Free(s SwapSlot) {
	g := irq.Disable()
	defer g.Restore()

	if !p.records[s].used {
		return
	}
	p.records[s] = swapRecord{}
	setBit(p.freeBitmap, int(s))
	p.freeCount++
}

// Frame returns the backing storage for an allocated swap slot.
func (p *SwapPool) Frame(s SwapSlot) []byte {
	return p.records[s].content
}

// UsedBy returns the number of swap slots currently owned by pid.
func (p *SwapPool) UsedBy(pid uint32) int {
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

// ReleaseAll frees every slot owned by pid, per spec.md §4.6's process
// termination step, and returns the number of slots released.
func (p *SwapPool) ReleaseAll(pid uint32) int {
	g := irq.Disable()
	defer g.Restore()

	released := 0
	for i := range p.records {
		if p.records[i].used && p.records[i].ownerPID == pid {
			p.records[i] = swapRecord{}
			setBit(p.freeBitmap, i)
			p.freeCount++
			released++
		}
	}
	return released
}
