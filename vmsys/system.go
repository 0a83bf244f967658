package vmsys

import (
	"log/slog"

	"pagingvm/fault"
	"pagingvm/kernel"
	"pagingvm/kernel/irq"
	"pagingvm/kernel/kfmt"
	"pagingvm/kernel/mem"
	"pagingvm/pmm"
	"pagingvm/procvm"
	"pagingvm/replace"
	"pagingvm/vmm"
)

// ErrInvalidArgument is returned for a zero-length Vmalloc/Vfree request.
var ErrInvalidArgument = &kernel.Error{Module: "vmsys", Message: "invalid argument"}

// FaultOutcome mirrors fault.Outcome at the System boundary so callers need
// not import the fault package directly.
type FaultOutcome = fault.Outcome

// The fault outcomes a PageFault call can return. See fault.Outcome.
const (
	Resolved    = fault.Resolved
	KernelFault = fault.KernelFault
	SegFault    = fault.SegFault
	OutOfMemory = fault.OutOfMemory
)

// System is the demand-paged virtual memory subsystem, wired from a
// Config: the PT/FFS/swap pools, the kernel's identity-mapped page
// directory, the per-process registry, the clock replacement engine, and
// the fault handler. It is the only exported entry point a caller needs -
// spec.md §6's external interface.
type System struct {
	ptPool   *pmm.PTPool
	ffs      *pmm.FFSPool
	swap     *pmm.SwapPool
	kernelPD *vmm.PageDirectory
	registry *procvm.Registry
	engine   *replace.Engine
	handler  *fault.Handler
	log      *slog.Logger

	nextPID    uint32
	currentPID uint32
}

// Boot constructs a System from cfg. A nil cfg uses DefaultConfig(). The
// kernel's own page directory identity-maps [0, KernelSize), per the
// architecture's fixed physical map, and is shared (not copied) into every
// process page directory vmsys.Vcreate builds afterward.
func Boot(cfg *Config) (*System, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ptPool := pmm.NewPTPoolSized(cfg.PTFrames)
	ffs := pmm.NewFFSPoolSized(cfg.FFSFrames)
	swap := pmm.NewSwapPoolSized(cfg.SwapSlots)

	// Page-table pool exhaustion this early means cfg's own PTFrames budget
	// cannot even hold the kernel's identity map: the subsystem has nothing
	// to boot into, per spec.md §7's "PT frame exhaustion" fatal case.
	kernelPD, err := vmm.NewPageDirectory(ptPool)
	if err != nil {
		kfmt.Panic(err)
		return nil, err
	}
	if err := vmm.IdentityMapRegion(kernelPD, 0, uint32(pmm.KernelSize)); err != nil {
		kfmt.Panic(err)
		return nil, err
	}

	registry := procvm.NewRegistry(ptPool, ffs, swap, kernelPD)
	engine := replace.NewEngine(ffs, swap)
	handler := fault.NewHandler(registry, ffs, engine, cfg.SwapEnabled)

	log := newLogger(cfg.LogLevel, nil)
	log.Info("subsystem booted",
		"pt_frames", cfg.PTFrames, "ffs_frames", cfg.FFSFrames,
		"swap_slots", cfg.SwapSlots, "swap_enabled", cfg.SwapEnabled)

	return &System{
		ptPool:   ptPool,
		ffs:      ffs,
		swap:     swap,
		kernelPD: kernelPD,
		registry: registry,
		engine:   engine,
		handler:  handler,
		log:      log,
	}, nil
}

// Vcreate registers a new user process with its own page directory and a
// heap region list covering [VHeapStart, VHeapEnd), per spec.md §4.6. It
// becomes the running process (subsequent PageFault/Vfree calls without an
// intervening Vcreate/Destroy act on it as "current" for teardown
// purposes). entry, stackSize, priority, name, and args describe the
// process the way the original create()/vcreate() pair does, but carry no
// scheduling behavior here: process scheduling is outside this subsystem's
// scope.
func (s *System) Vcreate(entry uint32, stackSize uint32, priority int, name string, args []string) (uint32, error) {
	g := irq.Disable()
	defer g.Restore()

	s.nextPID++
	pid := s.nextPID

	if _, err := s.registry.Create(pid); err != nil {
		s.log.Error("vcreate failed", "pid", pid, "name", name, "error", err)
		return 0, err
	}
	s.currentPID = pid

	s.log.Info("process created", "pid", pid, "name", name,
		"entry", entry, "stack_size", stackSize, "priority", priority, "argc", len(args))
	return pid, nil
}

// Vmalloc reserves nbytes (rounded up to a page) of pid's virtual heap and
// returns the starting address, per spec.md §4.3. No physical frame is
// allocated yet - the first touch takes a page fault that PageFault
// resolves lazily.
func (s *System) Vmalloc(pid uint32, nbytes uint32) (uint32, error) {
	g := irq.Disable()
	defer g.Restore()

	proc, ok := s.registry.Lookup(pid)
	if !ok {
		return 0, procvm.ErrUnknownProcess
	}
	if nbytes == 0 {
		return 0, ErrInvalidArgument
	}

	vaddr, err := proc.Regions.Alloc(nbytes)
	if err != nil {
		s.log.Warn("vmalloc failed", "pid", pid, "nbytes", nbytes, "error", err)
		return 0, err
	}
	s.log.Info("vmalloc", "pid", pid, "vaddr", vaddr, "nbytes", nbytes)
	return vaddr, nil
}

// Vfree releases [ptr, ptr+nbytes) from pid's virtual heap, reclaiming any
// FFS frame or swap slot currently backing a page in that range, per
// spec.md §4.3. The region list is validated - and, on success, updated -
// before any physical frame is touched, so a rejected free leaves the
// address space unchanged.
func (s *System) Vfree(pid uint32, ptr uint32, nbytes uint32) error {
	g := irq.Disable()
	defer g.Restore()

	proc, ok := s.registry.Lookup(pid)
	if !ok {
		return procvm.ErrUnknownProcess
	}
	if ptr == 0 || nbytes == 0 {
		return ErrInvalidArgument
	}

	if err := proc.Regions.Free(ptr, nbytes); err != nil {
		s.log.Warn("vfree failed", "pid", pid, "ptr", ptr, "nbytes", nbytes, "error", err)
		return err
	}

	start := vmm.PageBase(ptr)
	end := vmm.PageBase(ptr+nbytes+uint32(mem.PageSize)-1)
	freedFrames, freedSlots := 0, 0
	for va := start; va < end; va += uint32(mem.PageSize) {
		ref, present := proc.PD.Lookup(va)
		if !present {
			continue
		}
		switch ref.Get().State() {
		case vmm.StateMapped:
			s.ffs.Free(pmm.FFSFrame(ref.Get().Base()))
			freedFrames++
		case vmm.StateSwapped:
			s.swap.Free(pmm.SwapSlot(ref.Get().Base()))
			freedSlots++
		default:
			continue
		}
		ref.Set(0)
		vmm.InvalidateTLBEntry(va)
	}

	s.log.Info("vfree", "pid", pid, "ptr", ptr, "nbytes", nbytes,
		"ffs_frames_released", freedFrames, "swap_slots_released", freedSlots)
	return nil
}

// PageFault resolves a page fault at faultAddr on behalf of pid, per
// spec.md §4.4. A SegFault or OutOfMemory outcome tears the process down:
// its frames, swap slots, and page-table frames are released immediately,
// since a fatal fault kills the process.
func (s *System) PageFault(pid uint32, faultAddr uint32) FaultOutcome {
	outcome := s.handler.Handle(pid, faultAddr)

	switch outcome {
	case SegFault, OutOfMemory:
		s.destroyFaulting(pid, outcome)
	}
	return outcome
}

func (s *System) destroyFaulting(pid uint32, outcome FaultOutcome) {
	g := irq.Disable()
	defer g.Restore()

	proc, ok := s.registry.Lookup(pid)
	if !ok {
		return
	}
	metrics := []interface{}{
		"pid", pid, "outcome", outcome,
		"page_faults", proc.PageFaults,
		"pages_swapped_out", proc.PagesSwappedOut,
		"pages_swapped_in", proc.PagesSwappedIn,
	}

	finish, err := s.registry.Destroy(pid, s.currentPID)
	if err != nil {
		s.log.Error("process teardown failed", append(metrics, "error", err)...)
		return
	}
	finish()
	s.log.Info("process destroyed", metrics...)
}

// FreeFFSPages returns the number of unallocated FFS frames.
func (s *System) FreeFFSPages() int {
	return s.ffs.FreeCount()
}

// FreeSwapPages returns the number of unallocated swap slots.
func (s *System) FreeSwapPages() int {
	return s.swap.FreeCount()
}

// UsedFFSFrames returns the number of FFS frames currently owned by pid.
func (s *System) UsedFFSFrames(pid uint32) int {
	return s.ffs.UsedBy(pid)
}

// AllocatedVirtualPages returns the number of virtual pages currently
// allocated in pid's heap region list.
func (s *System) AllocatedVirtualPages(pid uint32) int {
	proc, ok := s.registry.Lookup(pid)
	if !ok {
		return 0
	}
	return int(proc.Regions.TotalAllocatedPages())
}

// ProcessMetrics is the supplemented per-process accounting of
// SPEC_FULL.md §10: page fault, swap-out, and swap-in counts tracked the
// way the course-assignment repos log them at process termination.
type ProcessMetrics struct {
	PageFaults      int
	PagesSwappedOut int
	PagesSwappedIn  int
}

// ProcessMetrics returns pid's accumulated fault/swap counters, or the
// zero value if pid is unknown.
func (s *System) ProcessMetrics(pid uint32) ProcessMetrics {
	proc, ok := s.registry.Lookup(pid)
	if !ok {
		return ProcessMetrics{}
	}
	return ProcessMetrics{
		PageFaults:      proc.PageFaults,
		PagesSwappedOut: proc.PagesSwappedOut,
		PagesSwappedIn:  proc.PagesSwappedIn,
	}
}

// Destroy tears a process down directly (not via a fault), releasing every
// frame, swap slot, and page-table frame it owns. Per spec.md §4.6's
// two-phase teardown, procvm.Registry.Destroy defers the page-directory
// frame release of the currently running process to a finish closure;
// there is no real address-space switch here, so Destroy invokes that
// closure itself before it returns.
func (s *System) Destroy(pid uint32) error {
	g := irq.Disable()
	defer g.Restore()

	proc, ok := s.registry.Lookup(pid)
	if !ok {
		return procvm.ErrUnknownProcess
	}
	metrics := []interface{}{
		"pid", pid,
		"page_faults", proc.PageFaults,
		"pages_swapped_out", proc.PagesSwappedOut,
		"pages_swapped_in", proc.PagesSwappedIn,
	}

	finish, err := s.registry.Destroy(pid, s.currentPID)
	if err != nil {
		return err
	}
	finish()
	s.log.Info("process destroyed", metrics...)
	return nil
}
