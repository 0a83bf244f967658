// Package pmm implements the three fixed-size physical frame pools that
// back the paging subsystem: the page-table/page-directory pool, the FFS
// (file-frame space) pool that backs user heap pages, and the swap pool
// that backs evicted pages. Physical memory itself is simulated: each
// allocated frame owns a lazily-created 4 KiB []byte, addressed by a fixed
// offset within one of the three pools below rather than by a real
// physical address.
package pmm

import "pagingvm/kernel/mem"

// Pool sizes, in frames, per the target architecture's fixed physical map.
const (
	// MaxPTSize is the number of frames reserved for page directories and
	// page tables.
	MaxPTSize = 1024

	// F is the number of frames in the FFS pool.
	F = 16384

	// S is the number of slots in the swap pool.
	S = 32768
)

// Base addresses of each pool within the simulated physical address space.
// The kernel identity-maps [KernelBase, KernelBase+KernelSize); the PT
// pool lives inside that range, the FFS and swap pools follow it at the
// fixed offsets the architecture's memory map reserves for them.
const (
	KernelBase = mem.Size(0)
	KernelSize = 32 * mem.Mb

	FFSBase  = KernelBase + KernelSize
	SwapBase = FFSBase + mem.Size(F)*mem.PageSize

	// VHeapStart and VHeapEnd bound the per-process virtual heap handed out
	// by valloc.List.
	VHeapStart = uint32(256 * mem.Mb)
	VHeapEnd   = uint32(512 * mem.Mb)
)

// PTFrame identifies a frame within the page-table pool.
type PTFrame int

// FFSFrame identifies a frame within the FFS pool.
type FFSFrame int

// SwapSlot identifies a slot within the swap pool.
type SwapSlot int
