// Package fault implements the page-fault handler: the seven-step
// algorithm in spec.md §4.4 that classifies a fault, performs lazy
// allocation or swap-in, and installs the resolved PTE. Grounded on the
// classification/dispatch shape of kernel/mm/vmm/fault.go's
// PageFaultHandler, re-targeted from amd64 hardware error-code bits to
// this subsystem's region-list/PTE-state classification.
package fault

import (
	"fmt"

	"pagingvm/kernel"
	"pagingvm/kernel/irq"
	"pagingvm/kernel/kfmt"
	"pagingvm/pmm"
	"pagingvm/procvm"
	"pagingvm/replace"
	"pagingvm/vmm"
)

// Outcome describes how a fault was resolved.
type Outcome int

const (
	// Resolved means the faulting instruction may be retried.
	Resolved Outcome = iota
	// KernelFault means the faulting process was not a user process; a
	// fatal condition per spec.md §4.4 step 1.
	KernelFault
	// SegFault means the faulting address was outside every allocated
	// region of the process.
	SegFault
	// OutOfMemory means no frame could be produced for the faulting page
	// (swap disabled and FFS exhausted, or no eviction victim found). Swap
	// pool exhaustion is not reported this way: it halts via kfmt.Panic.
	OutOfMemory
)

// Handler resolves page faults against a process registry, the FFS pool,
// and a replacement engine.
type Handler struct {
	registry    *procvm.Registry
	ffs         *pmm.FFSPool
	engine      *replace.Engine
	swapEnabled bool
}

// NewHandler constructs a fault handler. swapEnabled controls step 6/7 of
// spec.md §4.4: when false, FFS exhaustion always kills the process
// instead of attempting eviction.
func NewHandler(registry *procvm.Registry, ffs *pmm.FFSPool, engine *replace.Engine, swapEnabled bool) *Handler {
	return &Handler{registry: registry, ffs: ffs, engine: engine, swapEnabled: swapEnabled}
}

// Handle resolves a page fault at faultAddr on behalf of pid, running with
// interrupts disabled for its entire duration per spec.md §5.
func (h *Handler) Handle(pid uint32, faultAddr uint32) Outcome {
	g := irq.Disable()
	defer g.Restore()

	proc, ok := h.registry.Lookup(pid)
	if !ok || !proc.IsUser {
		kfmt.Panic(&kernel.Error{Module: "fault", Message: fmt.Sprintf("page fault in kernel process %d at 0x%08X", pid, faultAddr)})
		return KernelFault
	}

	vpage := vmm.PageBase(faultAddr)
	if !proc.Regions.Contains(vpage) {
		kfmt.Printf("P%d:: SEGMENTATION_FAULT at 0x%08X\n", pid, faultAddr)
		return SegFault
	}

	// A page-table frame exhausted while walking to the PTE is an
	// address-space violation, not an out-of-memory condition: the process
	// dies the same way it would for a fault outside its regions.
	ref, err := proc.PD.Walk(vpage, true)
	if err != nil {
		kfmt.Printf("P%d:: SEGMENTATION_FAULT at 0x%08X\n", pid, faultAddr)
		return SegFault
	}

	proc.PageFaults++
	pte := ref.Get()

	switch pte.State() {
	case vmm.StateMapped:
		// Already resolved by a concurrent fault on the same page; the
		// trapping instruction simply retries.
		return Resolved

	case vmm.StateSwapped:
		slot := pmm.SwapSlot(pte.Base())
		frame, err := h.engine.SwapIn(pid, slot)
		if err != nil {
			if err == pmm.ErrSwapPoolExhausted {
				kfmt.Panic(err)
			}
			kfmt.Printf("P%d:: SWAP_IN_FAILED (addr=0x%08X)\n", pid, faultAddr)
			return OutOfMemory
		}
		h.ffs.Install(frame, vpage, proc.PD)
		ref.Set(vmm.MakeMapped(uint32(frame), true, true))
		vmm.InvalidateTLBEntry(vpage)
		proc.PagesSwappedIn++
		return Resolved

	default: // vmm.StateAbsent
		frame, err := h.ffs.Alloc(pid)
		switch {
		case err == nil:
			// fall through to install below
		case err == pmm.ErrFFSPoolExhausted && h.swapEnabled:
			victim, verr := h.engine.SelectVictim()
			if verr != nil {
				kfmt.Printf("P%d:: OUT_OF_MEMORY (addr=0x%08X)\n", pid, faultAddr)
				return OutOfMemory
			}
			if _, serr := h.engine.SwapOut(victim); serr != nil {
				if serr == pmm.ErrSwapPoolExhausted {
					kfmt.Panic(serr)
				}
				kfmt.Printf("P%d:: OUT_OF_MEMORY (addr=0x%08X)\n", pid, faultAddr)
				return OutOfMemory
			}
			h.ffs.TransferOwnership(victim, pid, 0, nil)
			frame = victim
			proc.PagesSwappedOut++
		default:
			kfmt.Printf("P%d:: OUT_OF_MEMORY (addr=0x%08X)\n", pid, faultAddr)
			return OutOfMemory
		}

		h.ffs.Install(frame, vpage, proc.PD)
		ref.Set(vmm.MakeMapped(uint32(frame), true, true))
		vmm.InvalidateTLBEntry(vpage)
		return Resolved
	}
}
