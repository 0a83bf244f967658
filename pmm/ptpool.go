package pmm

import (
	"math/bits"

	"pagingvm/kernel"
	"pagingvm/kernel/irq"
	"pagingvm/kernel/mem"
)

// ErrPTPoolExhausted is returned when every page-table/page-directory frame
// is in use.
var ErrPTPoolExhausted = &kernel.Error{Module: "pmm", Message: "page table pool exhausted"}

// PTPool allocates and frees the fixed-size frames used to back page
// directories and page tables. Unlike the FFS and swap pools it carries no
// per-frame ownership metadata: a page-table frame's meaning is entirely
// determined by the vmm.PageDirectory/page-table struct stored in it.
type PTPool struct {
	size       int
	freeBitmap []uint64
	freeCount  int
	content    [][]byte
}

// NewPTPool returns a PTPool sized MaxPTSize, per the architecture's fixed
// memory map, with every frame free.
func NewPTPool() *PTPool {
	return NewPTPoolSized(MaxPTSize)
}

// NewPTPoolSized returns a PTPool with size frames, every one free. Tests
// that need to exhaust a pool quickly size it well below MaxPTSize rather
// than reconfiguring the architecture's fixed pool sizes.
func NewPTPoolSized(size int) *PTPool {
	p := &PTPool{
		size:       size,
		freeBitmap: make([]uint64, (size+63)/64),
		freeCount:  size,
		content:    make([][]byte, size),
	}
	for i := range p.freeBitmap {
		p.freeBitmap[i] = ^uint64(0)
	}
	trimTrailingBits(p.freeBitmap, size)
	return p
}

// FreeCount returns the number of unused page-table frames.
func (p *PTPool) FreeCount() int {
	g := irq.Disable()
	defer g.Restore()
	return p.freeCount
}

// Alloc reserves a free page-table frame, zeroes its backing storage, and
// returns its pool-relative index.
func (p *PTPool) Alloc() (PTFrame, error) {
	g := irq.Disable()
	defer g.Restore()

	idx, ok := firstSetBit(p.freeBitmap, p.size)
	if !ok {
		return 0, ErrPTPoolExhausted
	}

	clearBit(p.freeBitmap, idx)
	p.freeCount--
	p.content[idx] = make([]byte, mem.PageSize)
	return PTFrame(idx), nil
}

// Free releases a previously allocated page-table frame.
func (p *PTPool) Free(f PTFrame) {
	g := irq.Disable()
	defer g.Restore()

	if p.content[f] == nil {
		return
	}
	p.content[f] = nil
	setBit(p.freeBitmap, int(f))
	p.freeCount++
}

// Frame returns the backing storage for an allocated page-table frame. It
// is used to store the serialized PageDirectory/page-table contents.
func (p *PTPool) Frame(f PTFrame) []byte {
	return p.content[f]
}

// firstSetBit returns the index of the first set bit among the first limit
// bits of bitmap, scanning word by word with bits.TrailingZeros64.
func firstSetBit(bitmap []uint64, limit int) (int, bool) {
	for word := 0; word*64 < limit; word++ {
		if bitmap[word] == 0 {
			continue
		}
		bit := bits.TrailingZeros64(bitmap[word])
		idx := word*64 + bit
		if idx >= limit {
			return 0, false
		}
		return idx, true
	}
	return 0, false
}

func clearBit(bitmap []uint64, idx int) {
	bitmap[idx/64] &^= 1 << uint(idx%64)
}

func setBit(bitmap []uint64, idx int) {
	bitmap[idx/64] |= 1 << uint(idx%64)
}

func isBitSet(bitmap []uint64, idx int) bool {
	return bitmap[idx/64]&(1<<uint(idx%64)) != 0
}

// trimTrailingBits clears any bits beyond limit in the final word of a
// freshly all-ones bitmap, so firstSetBit never reports a slot past limit.
func trimTrailingBits(bitmap []uint64, limit int) {
	total := len(bitmap) * 64
	for idx := limit; idx < total; idx++ {
		clearBit(bitmap, idx)
	}
}
