package vmm

import "pagingvm/kernel/mem"

// IdentityMapRegion installs present, writable, kernel-only mappings for
// every page in [start, end) of pd, pointing each virtual page at the
// physical frame of the same number. It is used once at boot to map the
// kernel's own address range (spec.md §6's fixed physical memory map), the
// one place in this subsystem where virtual and physical addresses are
// required to coincide.
func IdentityMapRegion(pd *PageDirectory, start, end uint32) error {
	pageSize := uint32(mem.PageSize)
	for vaddr := PageBase(start); vaddr < end; vaddr += pageSize {
		ref, err := pd.Walk(vaddr, false)
		if err != nil {
			return err
		}
		ref.Set(MakeMapped(vaddr/pageSize, true, false))
	}
	return nil
}

// Translate walks pd for vaddr and returns the physical address it maps
// to, or ok=false if vaddr is unmapped or currently swapped out.
func Translate(pd *PageDirectory, vaddr uint32) (phys uint32, ok bool) {
	ref, present := pd.Lookup(vaddr)
	if !present {
		return 0, false
	}
	e := ref.Get()
	if e.State() != StateMapped {
		return 0, false
	}
	return e.Base()*uint32(mem.PageSize) + PageOffset(vaddr), true
}
