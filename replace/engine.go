// Package replace implements the clock/second-chance page replacement
// engine: victim selection across the FFS pool, swap-out, and swap-in.
// gopher-os never runs under enough memory pressure to swap, so there is
// no equivalent package to adapt; its algorithms are grounded directly on
// spec.md §4.5. Its diagnostic output follows this repo's
// kernel/kfmt.Printf convention, so tests capture it through
// kfmt.SetOutputSink.
package replace

import (
	"pagingvm/kernel"
	"pagingvm/kernel/irq"
	"pagingvm/kernel/kfmt"
	"pagingvm/pmm"
	"pagingvm/vmm"
)

// ErrNoVictim is a fatal condition: no evictable frame was found after two
// full passes of the clock hand, which per spec.md §4.5 cannot happen in
// the single-threaded model as long as FFS holds at least one evictable
// frame.
var ErrNoVictim = &kernel.Error{Module: "replace", Message: "no evictable FFS frame found"}

// maxTraceLines caps how many eviction/swap-in debug lines Engine prints,
// per spec.md §6's "when the debug counter is below a cap" clause.
const maxTraceLines = 64

// Engine owns the single persistent clock hand shared by every process and
// test case in a given vmsys.System lifetime.
type Engine struct {
	ffs        *pmm.FFSPool
	swap       *pmm.SwapPool
	hand       int
	traceCount int
}

// NewEngine constructs a replacement engine over the given pools. The hand
// starts at 0 and is never reset for the lifetime of the returned Engine,
// matching spec.md §3's "persists across process births/deaths and across
// test cases."
func NewEngine(ffs *pmm.FFSPool, swap *pmm.SwapPool) *Engine {
	return &Engine{ffs: ffs, swap: swap}
}

// pageDirectory narrows pmm.PageDirectoryRef back to the concrete type
// this package needs to inspect and rewrite a PTE.
func pageDirectory(ref pmm.PageDirectoryRef) *vmm.PageDirectory {
	pd, _ := ref.(*vmm.PageDirectory)
	return pd
}

// SelectVictim scans the FFS pool starting at the persistent clock hand,
// clearing accessed bits on its first pass and returning the first frame
// whose accessed bit is already zero. It performs at most two full passes
// over the pool's Size() frames before giving up.
func (e *Engine) SelectVictim() (pmm.FFSFrame, error) {
	g := irq.Disable()
	defer g.Restore()

	size := e.ffs.Size()
	for attempt := 0; attempt < 2*size; attempt++ {
		idx := e.hand % size
		e.hand = (idx + 1) % size

		frame := pmm.FFSFrame(idx)
		vaddr, pdRef, ok := e.ffs.Mapping(frame)
		if !ok {
			continue
		}

		pd := pageDirectory(pdRef)
		ref, present := pd.Lookup(vaddr)
		if !present {
			continue
		}
		pte := ref.Get()
		if !pte.HasFlags(vmm.FlagAccessed) {
			return frame, nil
		}
		pte.ClearFlags(vmm.FlagAccessed)
		ref.Set(pte)
	}

	return 0, ErrNoVictim
}

// SwapOut evicts frame: its contents are copied to a freshly allocated
// swap slot, its PTE is rewritten to the swapped state, and its mapping
// metadata is cleared while the frame stays marked used so the caller can
// claim it. It returns the swap slot the contents now live in.
func (e *Engine) SwapOut(frame pmm.FFSFrame) (pmm.SwapSlot, error) {
	g := irq.Disable()
	defer g.Restore()

	vaddr, pdRef, ok := e.ffs.Mapping(frame)
	if !ok {
		return 0, ErrNoVictim
	}
	pd := pageDirectory(pdRef)
	owner := e.ffs.Owner(frame)

	slot, err := e.swap.Alloc(owner)
	if err != nil {
		return 0, err
	}
	kernel.Memcopy(e.swap.Frame(slot), e.ffs.Frame(frame))

	ref, present := pd.Lookup(vaddr)
	if present {
		ref.Set(vmm.MakeSwapped(uint32(slot)))
	}
	vmm.InvalidateTLBEntry(vaddr)
	e.ffs.ClearMapping(frame)

	e.trace("eviction:: FFS frame %d, swap frame %d copy\n", int(frame), int(slot))
	return slot, nil
}

// SwapIn restores the contents of swapSlot into a fresh FFS frame owned by
// pid, evicting a victim first if the FFS pool is exhausted. It returns
// the frame the contents now live in; the caller is responsible for
// installing the mapping metadata and rewriting the faulting PTE.
func (e *Engine) SwapIn(pid uint32, swapSlot pmm.SwapSlot) (pmm.FFSFrame, error) {
	frame, err := e.ffs.Alloc(pid)
	if err == pmm.ErrFFSPoolExhausted {
		victim, verr := e.SelectVictim()
		if verr != nil {
			return 0, verr
		}
		if _, serr := e.SwapOut(victim); serr != nil {
			return 0, serr
		}
		e.ffs.TransferOwnership(victim, pid, 0, nil)
		frame = victim
	} else if err != nil {
		return 0, err
	}

	g := irq.Disable()
	defer g.Restore()

	kernel.Memcopy(e.ffs.Frame(frame), e.swap.Frame(swapSlot))
	e.swap.Free(swapSlot)

	e.trace("swapping:: swap frame %d, FFS frame %d\n", int(swapSlot), int(frame))
	return frame, nil
}

// trace prints a debug line through kfmt.Printf while the trace counter is
// below maxTraceLines, per spec.md §6.
func (e *Engine) trace(format string, args ...interface{}) {
	if e.traceCount >= maxTraceLines {
		return
	}
	e.traceCount++
	kfmt.Printf(format, args...)
}
