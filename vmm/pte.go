// Package vmm implements the two-level page-table format and the
// non-recursive walker that the paging subsystem uses to translate virtual
// addresses to physical frames. The layout mirrors the target
// architecture's hardware-defined page directory/page table entry format
// bit for bit (spec.md §3/§6); the walker itself differs from a real MMU
// only in that page-table frames are ordinary Go byte slices handed out by
// pmm.PTPool rather than memory the CPU addresses directly.
package vmm

import "encoding/binary"

// PageTableEntryFlag describes a single bit (or group of bits) within a
// page directory or page table entry.
type PageTableEntryFlag uint32

// Entry flags, laid out identically for page directory and page table
// entries per the architecture's two-level format.
const (
	FlagPresent PageTableEntryFlag = 1 << 0
	FlagWrite   PageTableEntryFlag = 1 << 1
	FlagUser    PageTableEntryFlag = 1 << 2
	FlagAccessed PageTableEntryFlag = 1 << 5
	FlagDirty   PageTableEntryFlag = 1 << 6

	// avail occupies bits 9-11 and is software-defined. Bit 9 doubles as
	// the swapped-state discriminator described in spec.md §6: a PTE with
	// present=0 and avail bit 9 set names a swap slot rather than a frame.
	flagAvailShift = 9
	FlagSwapped    PageTableEntryFlag = 1 << flagAvailShift

	baseShift = 12
	baseMask  = uint32(0xFFFFF) << baseShift
)

// PTE is a single page directory or page table entry, matching the
// hardware bit layout: present(0) | write(1) | user(2) | accessed(5) |
// dirty(6) | avail(9:12) | base(12:32).
type PTE uint32

// State names the three mutually-exclusive shapes a PTE may take, per the
// tagged-variant data model in spec.md §3.
type State int

const (
	// StateAbsent is the zero value: no frame and no swap slot.
	StateAbsent State = iota
	// StateMapped means base names a live physical frame.
	StateMapped
	// StateSwapped means base names a swap slot and present is clear.
	StateSwapped
)

// State reports which of the three tagged variants this entry holds.
func (e PTE) State() State {
	switch {
	case e.HasFlags(FlagPresent):
		return StateMapped
	case e.HasFlags(FlagSwapped):
		return StateSwapped
	default:
		return StateAbsent
	}
}

// HasFlags reports whether every bit in flags is set.
func (e PTE) HasFlags(flags PageTableEntryFlag) bool {
	return uint32(e)&uint32(flags) == uint32(flags)
}

// SetFlags sets the given bits.
func (e *PTE) SetFlags(flags PageTableEntryFlag) {
	*e = PTE(uint32(*e) | uint32(flags))
}

// ClearFlags clears the given bits.
func (e *PTE) ClearFlags(flags PageTableEntryFlag) {
	*e = PTE(uint32(*e) &^ uint32(flags))
}

// Base returns the 20-bit base field: a frame number when State is
// StateMapped, a swap slot index when State is StateSwapped.
func (e PTE) Base() uint32 {
	return (uint32(e) & baseMask) >> baseShift
}

// SetBase updates the base field in place, preserving every flag bit.
func (e *PTE) SetBase(base uint32) {
	*e = PTE((uint32(*e) &^ baseMask) | ((base << baseShift) & baseMask))
}

// MakeMapped builds a present PTE pointing at frame, with the given
// writable/user bits and accessed set, per spec.md §4.4's "leave accessed=1
// on every newly installed PTE" rule.
func MakeMapped(frame uint32, writable, user bool) PTE {
	var e PTE
	e.SetFlags(FlagPresent | FlagAccessed)
	if writable {
		e.SetFlags(FlagWrite)
	}
	if user {
		e.SetFlags(FlagUser)
	}
	e.SetBase(frame)
	return e
}

// MakeSwapped builds the swapped-state PTE described in spec.md §4.5:
// present=0, avail=1 (FlagSwapped), base=swap index, writable=0, user=0,
// accessed=0, dirty=0.
func MakeSwapped(swapIdx uint32) PTE {
	var e PTE
	e.SetFlags(FlagSwapped)
	e.SetBase(swapIdx)
	return e
}

// entriesPerTable is the number of PTE slots in one 4 KiB page table or
// page directory frame.
const entriesPerTable = 1024

// decodeEntry reads the entry at idx from a page-table frame's raw backing
// storage.
func decodeEntry(buf []byte, idx int) PTE {
	return PTE(binary.LittleEndian.Uint32(buf[idx*4 : idx*4+4]))
}

// encodeEntry writes e at idx into a page-table frame's raw backing
// storage, so the mutation is visible to every other holder of the same
// frame's slice.
func encodeEntry(buf []byte, idx int, e PTE) {
	binary.LittleEndian.PutUint32(buf[idx*4:idx*4+4], uint32(e))
}
