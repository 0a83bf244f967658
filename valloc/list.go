// Package valloc implements the per-process virtual-address allocator: a
// singly-linked, address-ordered list of (start, size, allocated) regions
// covering a process's entire heap, supporting first-fit split on
// allocation and address-order coalesce on free. It never touches a
// physical frame or a page table entry - those belong to the fault
// handler and the higher-level vmsys facade that coordinates a vfree
// across both the region list and the page directory.
package valloc

import "pagingvm/kernel"

// ErrOutOfSpace is returned when no free region is large enough to satisfy
// an allocation request.
var ErrOutOfSpace = &kernel.Error{Module: "valloc", Message: "no free region large enough"}

// ErrInvalidRequest is returned for a zero-length allocation or a null
// pointer / zero-length free.
var ErrInvalidRequest = &kernel.Error{Module: "valloc", Message: "invalid allocation request"}

// ErrNotAllocated is returned when a free request's span is not fully
// covered by allocated regions - a double free, partial free, or a
// misaligned pointer.
var ErrNotAllocated = &kernel.Error{Module: "valloc", Message: "span is not fully allocated"}

// pageSize is the allocation granularity; both vmalloc and vfree round to
// it, per spec.md §4.3.
const pageSize = 4096

// region is one node of the address-ordered list.
type region struct {
	start     uint32
	size      uint32
	allocated bool
	next      *region
}

// end returns the address one past the last byte of the region.
func (r *region) end() uint32 {
	return r.start + r.size
}

// List is the region list for a single process's virtual heap.
type List struct {
	head                 *region
	totalAllocatedPages uint32
}

// NewList seeds a fresh list with a single free region covering
// [start, end).
func NewList(start, end uint32) *List {
	return &List{head: &region{start: start, size: end - start}}
}

func roundUpToPage(n uint32) uint32 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

func roundDownToPage(n uint32) uint32 {
	return n &^ (pageSize - 1)
}

// TotalAllocatedPages returns the number of pages currently allocated
// across every region in the list.
func (l *List) TotalAllocatedPages() uint32 {
	return l.totalAllocatedPages
}

// Alloc reserves the first free region able to hold nbytes (rounded up to
// a page), splitting it if the region is larger than needed, and returns
// the starting virtual address of the new allocation.
func (l *List) Alloc(nbytes uint32) (uint32, error) {
	if nbytes == 0 {
		return 0, ErrInvalidRequest
	}
	size := roundUpToPage(nbytes)

	for r := l.head; r != nil; r = r.next {
		if r.allocated || r.size < size {
			continue
		}

		if r.size == size {
			r.allocated = true
		} else {
			remainder := &region{
				start:     r.start + size,
				size:      r.size - size,
				allocated: false,
				next:      r.next,
			}
			r.size = size
			r.allocated = true
			r.next = remainder
		}

		l.totalAllocatedPages += size / pageSize
		return r.start, nil
	}

	return 0, ErrOutOfSpace
}

// Free marks the region(s) spanning [ptr, ptr+nbytes) as free again and
// coalesces adjacent free regions. The span must be exactly covered by
// allocated regions - a free that only partially overlaps an allocation,
// or spans any free region, is rejected.
func (l *List) Free(ptr, nbytes uint32) error {
	if ptr == 0 || nbytes == 0 {
		return ErrInvalidRequest
	}

	spanStart := roundDownToPage(ptr)
	spanEnd := roundUpToPage(ptr + nbytes)

	if !l.fullyAllocated(spanStart, spanEnd) {
		return ErrNotAllocated
	}

	freedPages := (spanEnd - spanStart) / pageSize
	l.splitAt(spanStart)
	l.splitAt(spanEnd)

	for r := l.head; r != nil; r = r.next {
		if r.start >= spanStart && r.end() <= spanEnd {
			r.allocated = false
		}
	}

	l.totalAllocatedPages -= freedPages
	l.coalesce()
	return nil
}

// fullyAllocated reports whether [start, end) is covered, without gaps,
// by whole allocated regions: start must be the first address of one and
// end the address one past the last byte of one.
func (l *List) fullyAllocated(start, end uint32) bool {
	cursor := start
	for r := l.head; r != nil && cursor < end; r = r.next {
		if r.end() <= cursor {
			continue
		}
		if r.start != cursor {
			return false
		}
		if !r.allocated {
			return false
		}
		cursor = r.end()
	}
	return cursor == end
}

// splitAt breaks the region containing addr into two at addr, if addr
// falls strictly inside a region's bounds. It is a no-op if addr already
// falls on a region boundary or outside the list.
func (l *List) splitAt(addr uint32) {
	for r := l.head; r != nil; r = r.next {
		if addr <= r.start || addr >= r.end() {
			continue
		}
		tail := &region{
			start:     addr,
			size:      r.end() - addr,
			allocated: r.allocated,
			next:      r.next,
		}
		r.size = addr - r.start
		r.next = tail
		return
	}
}

// coalesce merges every run of adjacent free regions into one, in a
// single left-to-right pass.
func (l *List) coalesce() {
	for r := l.head; r != nil && r.next != nil; {
		if !r.allocated && !r.next.allocated && r.end() == r.next.start {
			r.size += r.next.size
			r.next = r.next.next
			continue
		}
		r = r.next
	}
}

// Contains reports whether vaddr falls within an allocated region.
func (l *List) Contains(vaddr uint32) bool {
	for r := l.head; r != nil; r = r.next {
		if vaddr >= r.start && vaddr < r.end() {
			return r.allocated
		}
	}
	return false
}
