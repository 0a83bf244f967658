package fault

import (
	"bytes"
	"strings"
	"testing"

	"pagingvm/kernel"
	"pagingvm/kernel/kfmt"
	"pagingvm/pmm"
	"pagingvm/procvm"
	"pagingvm/replace"
	"pagingvm/vmm"
)

func newTestSystem(t *testing.T) (*procvm.Registry, *pmm.FFSPool, *Handler) {
	t.Helper()
	ptPool := pmm.NewPTPool()
	ffs := pmm.NewFFSPool()
	swap := pmm.NewSwapPool()

	kernelPD, err := vmm.NewPageDirectory(ptPool)
	if err != nil {
		t.Fatalf("NewPageDirectory(kernel) error = %v", err)
	}
	if err := vmm.IdentityMapRegion(kernelPD, 0, uint32(pmm.KernelSize)); err != nil {
		t.Fatalf("IdentityMapRegion() error = %v", err)
	}

	registry := procvm.NewRegistry(ptPool, ffs, swap, kernelPD)
	engine := replace.NewEngine(ffs, swap)
	handler := NewHandler(registry, ffs, engine, true)
	return registry, ffs, handler
}

func TestHandleLazilyAllocatesOnFirstTouch(t *testing.T) {
	registry, ffs, h := newTestSystem(t)
	proc, _ := registry.Create(1)
	vaddr, err := proc.Regions.Alloc(4096)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}

	freeBefore := ffs.FreeCount()

	outcome := h.Handle(1, vaddr)
	if outcome != Resolved {
		t.Fatalf("Handle() = %v, want Resolved", outcome)
	}
	if got, want := ffs.FreeCount(), freeBefore-1; got != want {
		t.Fatalf("FreeCount() after fault = %d, want %d", got, want)
	}

	phys, ok := vmm.Translate(proc.PD, vaddr)
	if !ok {
		t.Fatal("Translate() should succeed after the fault resolves")
	}
	_ = phys
	if proc.PageFaults != 1 {
		t.Fatalf("PageFaults = %d, want 1", proc.PageFaults)
	}
}

func TestHandleSegFaultOutsideAllocatedRegion(t *testing.T) {
	registry, _, h := newTestSystem(t)
	registry.Create(2)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	outcome := h.Handle(2, pmm.VHeapStart)
	if outcome != SegFault {
		t.Fatalf("Handle() = %v, want SegFault", outcome)
	}
	if !strings.Contains(buf.String(), "SEGMENTATION_FAULT") {
		t.Fatalf("expected SEGMENTATION_FAULT trace, got %q", buf.String())
	}
}

func TestHandleKernelFaultForUnknownProcess(t *testing.T) {
	_, _, h := newTestSystem(t)

	var halted bool
	kfmt.SetHaltFn(func(*kernel.Error) { halted = true })
	defer kfmt.SetHaltFn(nil)

	outcome := h.Handle(999, 0x1000)
	if outcome != KernelFault {
		t.Fatalf("Handle() = %v, want KernelFault", outcome)
	}
	if !halted {
		t.Fatal("Handle() on a kernel process fault must halt via kfmt.Panic")
	}
}

func TestHandlePageTableExhaustionDuringFaultIsSegFault(t *testing.T) {
	// 1 frame for the kernel PD's own top level, 8 for its identity-mapped
	// PT frames (KernelSize spans 8 PD indices at 4 MiB each), 1 for the
	// user PD's own top level: exactly enough to leave nothing for the
	// heap page's first Walk.
	ptPool := pmm.NewPTPoolSized(10)
	ffs := pmm.NewFFSPool()
	swap := pmm.NewSwapPool()

	kernelPD, err := vmm.NewPageDirectory(ptPool)
	if err != nil {
		t.Fatalf("NewPageDirectory(kernel) error = %v", err)
	}
	if err := vmm.IdentityMapRegion(kernelPD, 0, uint32(pmm.KernelSize)); err != nil {
		t.Fatalf("IdentityMapRegion() error = %v", err)
	}

	registry := procvm.NewRegistry(ptPool, ffs, swap, kernelPD)
	engine := replace.NewEngine(ffs, swap)
	h := NewHandler(registry, ffs, engine, true)

	proc, err := registry.Create(1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got, want := ptPool.FreeCount(), 0; got != want {
		t.Fatalf("FreeCount() before first heap touch = %d, want %d", got, want)
	}
	vaddr, err := proc.Regions.Alloc(4096)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	outcome := h.Handle(1, vaddr)
	if outcome != SegFault {
		t.Fatalf("Handle() with an exhausted PT pool = %v, want SegFault", outcome)
	}
	if !strings.Contains(buf.String(), "SEGMENTATION_FAULT") {
		t.Fatalf("expected a SEGMENTATION_FAULT trace, got %q", buf.String())
	}
}

func TestHandleRepeatedFaultOnMappedPageIsIdempotent(t *testing.T) {
	registry, ffs, h := newTestSystem(t)
	proc, _ := registry.Create(3)
	vaddr, _ := proc.Regions.Alloc(4096)

	h.Handle(3, vaddr)
	freeAfterFirst := ffs.FreeCount()

	outcome := h.Handle(3, vaddr+0x10)
	if outcome != Resolved {
		t.Fatalf("Handle() on already-mapped page = %v, want Resolved", outcome)
	}
	if got := ffs.FreeCount(); got != freeAfterFirst {
		t.Fatalf("FreeCount() changed on a repeat fault: %d -> %d", freeAfterFirst, got)
	}
}

func TestHandleSwapPoolExhaustionDuringEvictionPanics(t *testing.T) {
	ptPool := pmm.NewPTPool()
	ffs := pmm.NewFFSPoolSized(1)
	swap := pmm.NewSwapPoolSized(0)

	kernelPD, err := vmm.NewPageDirectory(ptPool)
	if err != nil {
		t.Fatalf("NewPageDirectory(kernel) error = %v", err)
	}
	if err := vmm.IdentityMapRegion(kernelPD, 0, uint32(pmm.KernelSize)); err != nil {
		t.Fatalf("IdentityMapRegion() error = %v", err)
	}

	registry := procvm.NewRegistry(ptPool, ffs, swap, kernelPD)
	engine := replace.NewEngine(ffs, swap)
	h := NewHandler(registry, ffs, engine, true)

	proc, _ := registry.Create(1)
	vaddr, err := proc.Regions.Alloc(2 * 4096)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if outcome := h.Handle(1, vaddr); outcome != Resolved {
		t.Fatalf("Handle() on page 0 = %v, want Resolved", outcome)
	}

	var halted bool
	kfmt.SetHaltFn(func(*kernel.Error) { halted = true })
	defer kfmt.SetHaltFn(nil)

	// FFS holds exactly 1 frame, already owned by page 0; touching page 1
	// forces an eviction whose swap-out has nowhere to put page 0's
	// contents, since the swap pool has zero slots.
	h.Handle(1, vaddr+4096)
	if !halted {
		t.Fatal("Handle() on swap-pool exhaustion during eviction must halt via kfmt.Panic")
	}
}

func TestHandleSwapInRestoresMappedState(t *testing.T) {
	registry, ffs, h := newTestSystem(t)
	proc, _ := registry.Create(4)
	vaddr, _ := proc.Regions.Alloc(4096)

	h.Handle(4, vaddr)
	ref, _ := proc.PD.Lookup(vaddr)
	mappedFrame := pmm.FFSFrame(ref.Get().Base())

	slot, err := h.engine.SwapOut(mappedFrame)
	if err != nil {
		t.Fatalf("SwapOut() error = %v", err)
	}
	if ref.Get().State() != vmm.StateSwapped {
		t.Fatal("PTE should be swapped before re-touching the page")
	}

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	outcome := h.Handle(4, vaddr)
	if outcome != Resolved {
		t.Fatalf("Handle() on swapped page = %v, want Resolved", outcome)
	}
	if ref.Get().State() != vmm.StateMapped {
		t.Fatal("PTE should be mapped again after swap-in")
	}
	if proc.PagesSwappedIn != 1 {
		t.Fatalf("PagesSwappedIn = %d, want 1", proc.PagesSwappedIn)
	}
	_ = slot
	if !strings.Contains(buf.String(), "swapping::") {
		t.Fatalf("expected a swapping:: trace line, got %q", buf.String())
	}
	_ = ffs
}

func TestHandleEvictedFrameReuseDoesNotLeakPriorOwnersData(t *testing.T) {
	const ffsFrames = 4
	ptPool := pmm.NewPTPool()
	ffs := pmm.NewFFSPoolSized(ffsFrames)
	swap := pmm.NewSwapPool()

	kernelPD, err := vmm.NewPageDirectory(ptPool)
	if err != nil {
		t.Fatalf("NewPageDirectory(kernel) error = %v", err)
	}
	if err := vmm.IdentityMapRegion(kernelPD, 0, uint32(pmm.KernelSize)); err != nil {
		t.Fatalf("IdentityMapRegion() error = %v", err)
	}

	registry := procvm.NewRegistry(ptPool, ffs, swap, kernelPD)
	engine := replace.NewEngine(ffs, swap)
	h := NewHandler(registry, ffs, engine, true)

	proc, _ := registry.Create(1)
	vaddr, err := proc.Regions.Alloc((ffsFrames + 1) * 4096)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}

	if outcome := h.Handle(1, vaddr); outcome != Resolved {
		t.Fatalf("Handle() on page 0 = %v, want Resolved", outcome)
	}
	ref0, _ := proc.PD.Lookup(vaddr)
	ffs.Frame(pmm.FFSFrame(ref0.Get().Base()))[0] = 'A'

	// Touching ffsFrames more pages fills the rest of the pool and then
	// forces an eviction on the last one - page 0's clock position
	// guarantees it is the coldest frame and gets reclaimed.
	for i := 1; i <= ffsFrames; i++ {
		if outcome := h.Handle(1, vaddr+uint32(i)*4096); outcome != Resolved {
			t.Fatalf("Handle() on page %d = %v, want Resolved", i, outcome)
		}
	}

	lastPage := vaddr + uint32(ffsFrames)*4096
	ref, present := proc.PD.Lookup(lastPage)
	if !present || ref.Get().State() != vmm.StateMapped {
		t.Fatalf("page %d should be resident after its fault resolves", ffsFrames)
	}
	reused := ffs.Frame(pmm.FFSFrame(ref.Get().Base()))
	if reused[0] != 0 {
		t.Fatalf("reused frame byte 0 = %q, want 0 (page 0's data leaked into the new page)", reused[0])
	}
}
