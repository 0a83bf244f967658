package vmm

// flushTLBEntryFn is invoked whenever a mapping is installed, changed, or
// removed, so tests can observe exactly which virtual addresses were
// invalidated without a real TLB to inspect. Grounded on gopher-os's
// flushTLBEntryFn/activePDTFn convention: a package var pointing at the
// real primitive in production, swapped for a recording stub in tests.
var flushTLBEntryFn = func(vaddr uint32) {}

// InvalidateTLBEntry invalidates the (simulated) TLB entry for vaddr. The
// page-fault handler and the replacement engine call this after rewriting
// any PTE so a stale translation is never reused.
func InvalidateTLBEntry(vaddr uint32) {
	flushTLBEntryFn(vaddr)
}
