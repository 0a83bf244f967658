package kfmt

import "pagingvm/kernel"

var (
	// haltFn is invoked by Panic once the diagnostic has been printed. It
	// is a variable so tests can observe invariant-violation halts without
	// crashing the test binary.
	haltFn = defaultHalt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// SetHaltFn overrides the function Panic invokes after printing its
// diagnostic. Passing nil restores the default, which performs a real Go
// panic. Callers outside this package use it to exercise a fatal path
// (kernel-mode fault, swap-pool exhaustion, page-table exhaustion during
// boot) without crashing the test binary.
func SetHaltFn(fn func(*kernel.Error)) {
	if fn == nil {
		fn = defaultHalt
	}
	haltFn = fn
}

// Panic outputs the supplied error (if not nil) to the active output sink and
// halts the subsystem. It is the diagnostic path for invariant violations
// that the paging core is not allowed to recover from (swap exhaustion, page
// table pool exhaustion during boot, a kernel-mode page fault).
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	haltFn(err)
}

// defaultHalt stops the goroutine that triggered the invariant violation. On
// real hardware this is where the trap dispatcher would spin the CPU forever;
// hosted, a Go panic serves the same "does not return" contract.
func defaultHalt(err *kernel.Error) {
	if err != nil {
		panic(err)
	}
	panic("kernel panic: system halted")
}
