package vmm

import (
	"pagingvm/kernel"
	"pagingvm/pmm"
)

// EntryRef is a mutable handle to a single PDE or PTE slot within a
// page-table frame's backing storage. Unlike gopher-os's recursively
// self-mapped pointer dereferenced via unsafe.Pointer, an EntryRef is just
// a slice-and-index pair into the pmm-owned []byte for that frame: writes
// through Set are visible to every other holder of the same frame.
type EntryRef struct {
	buf []byte
	idx int
}

// Get reads the current entry.
func (r EntryRef) Get() PTE {
	return decodeEntry(r.buf, r.idx)
}

// Set writes a new entry in place.
func (r EntryRef) Set(e PTE) {
	encodeEntry(r.buf, r.idx, e)
}

// Valid reports whether this EntryRef actually points at backing storage
// (the zero value does not).
func (r EntryRef) Valid() bool {
	return r.buf != nil
}

// ErrPageTableWalkFailed is returned by Walk when it needs to allocate a
// new page-table frame and the PT pool is exhausted.
var ErrPageTableWalkFailed = &kernel.Error{Module: "vmm", Message: "page table allocation failed during walk"}

// PageDirectory is one process's top-level page table. It owns exactly one
// frame from the shared pmm.PTPool; that frame holds 1024 page-directory
// entries, each either absent or pointing at a second-level page-table
// frame (also drawn from the same pool).
type PageDirectory struct {
	ptPool *pmm.PTPool
	frame  pmm.PTFrame

	// ownedPTFrames lists the second-level page-table frames this
	// directory allocated itself via Walk, as opposed to ones it shares
	// with the kernel directory via CopyKernelEntries. Only these are
	// released on process teardown.
	ownedPTFrames []pmm.PTFrame
}

// NewPageDirectory allocates a fresh, zeroed page directory frame from
// ptPool.
func NewPageDirectory(ptPool *pmm.PTPool) (*PageDirectory, error) {
	f, err := ptPool.Alloc()
	if err != nil {
		return nil, err
	}
	return &PageDirectory{ptPool: ptPool, frame: f}, nil
}

// Frame returns the page-table-pool frame backing this directory, so
// procvm can release it on teardown.
func (pd *PageDirectory) Frame() pmm.PTFrame {
	return pd.frame
}

// Walk returns a mutable handle to the leaf (page-table level) entry for
// vaddr, allocating a new second-level page-table frame from ptPool when
// the corresponding page-directory entry is absent. Walk never allocates
// or installs the leaf frame itself (spec.md §4.2): the caller decides
// what the returned entry should hold. user selects the PDE's user bit for
// a newly built entry - false for the kernel's identity map, true for a
// user process's heap - and is ignored when the PDE already exists.
func (pd *PageDirectory) Walk(vaddr uint32, user bool) (EntryRef, error) {
	pdeRef := EntryRef{buf: pd.ptPool.Frame(pd.frame), idx: PDIndex(vaddr)}
	pde := pdeRef.Get()

	var ptFrame pmm.PTFrame
	if pde.State() == StateAbsent {
		f, err := pd.ptPool.Alloc()
		if err != nil {
			return EntryRef{}, ErrPageTableWalkFailed
		}
		ptFrame = f

		newPDE := PTE(0)
		newPDE.SetFlags(FlagPresent | FlagWrite)
		if user {
			newPDE.SetFlags(FlagUser)
		}
		newPDE.SetBase(uint32(ptFrame))
		pdeRef.Set(newPDE)
		pd.ownedPTFrames = append(pd.ownedPTFrames, ptFrame)
	} else {
		ptFrame = pmm.PTFrame(pde.Base())
	}

	return EntryRef{buf: pd.ptPool.Frame(ptFrame), idx: PTIndex(vaddr)}, nil
}

// Lookup is like Walk but never allocates: it returns ok=false if the
// page-directory entry for vaddr is absent.
func (pd *PageDirectory) Lookup(vaddr uint32) (EntryRef, bool) {
	pdeRef := EntryRef{buf: pd.ptPool.Frame(pd.frame), idx: PDIndex(vaddr)}
	pde := pdeRef.Get()
	if pde.State() == StateAbsent {
		return EntryRef{}, false
	}
	ptFrame := pmm.PTFrame(pde.Base())
	return EntryRef{buf: pd.ptPool.Frame(ptFrame), idx: PTIndex(vaddr)}, true
}

// CopyKernelEntries copies the first n page-directory entries from kernel
// into pd, so pd shares the kernel's page-table frames for the identity
// mapped range rather than allocating its own, per spec.md §4.6 ("copy the
// kernel PD's entries so the process shares kernel mappings").
func (pd *PageDirectory) CopyKernelEntries(kernelPD *PageDirectory, n int) {
	dst := pd.ptPool.Frame(pd.frame)
	src := kernelPD.ptPool.Frame(kernelPD.frame)
	for i := 0; i < n; i++ {
		encodeEntry(dst, i, decodeEntry(src, i))
	}
}

// ReleaseOwnedPTFrames frees every second-level page-table frame this
// directory allocated for itself, leaving frames shared with the kernel
// directory untouched.
func (pd *PageDirectory) ReleaseOwnedPTFrames() {
	for _, f := range pd.ownedPTFrames {
		pd.ptPool.Free(f)
	}
	pd.ownedPTFrames = nil
}

// ReleasePDFrame frees the directory's own top-level frame. It must only
// be called once every reference to this directory (including an active
// CPU's page-directory base register) has been switched away.
func (pd *PageDirectory) ReleasePDFrame() {
	pd.ptPool.Free(pd.frame)
}
