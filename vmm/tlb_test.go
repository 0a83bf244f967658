package vmm

import "testing"

func TestInvalidateTLBEntryCallsHook(t *testing.T) {
	var got []uint32
	prev := flushTLBEntryFn
	flushTLBEntryFn = func(vaddr uint32) { got = append(got, vaddr) }
	defer func() { flushTLBEntryFn = prev }()

	InvalidateTLBEntry(0x1000)
	InvalidateTLBEntry(0x2000)

	if len(got) != 2 || got[0] != 0x1000 || got[1] != 0x2000 {
		t.Fatalf("unexpected recorded invalidations: %v", got)
	}
}
