// Package irq implements the scoped critical-section guard used by every
// public operation in the paging subsystem. The system this module models
// is single-core and cooperatively preempted by a timer; "disable
// interrupts" stands in for "prevent the scheduler from running anything
// else while the paging core mutates shared pool state." There is no real
// interrupt controller to program, so the guard is backed by a
// kernel/sync.Spinlock plus a reentrancy counter instead of a cli/sti pair.
package irq

import "pagingvm/kernel/sync"

var lock sync.Spinlock

// depth counts nested Disable calls held by whichever goroutine currently
// holds lock. The paging core is single-threaded by contract (spec.md §5),
// so a plain counter - not a per-goroutine one - is enough to let an
// operation that is already inside a critical section call another guarded
// operation without deadlocking on its own lock.
var depth uint32

// Guard represents a held critical section. Restore releases it. A Guard
// must be restored exactly once, normally via defer immediately after
// Disable returns.
type Guard struct {
	outermost bool
}

// Disable enters a critical section, acquiring the subsystem lock only if
// the calling goroutine is not already inside one. It returns a Guard whose
// Restore method must be called on every exit path of the operation that
// called Disable.
func Disable() Guard {
	if depth == 0 {
		lock.Acquire()
	}
	depth++
	return Guard{outermost: depth == 1}
}

// Restore leaves the critical section entered by the matching Disable call,
// releasing the subsystem lock once the outermost guard is restored.
func (g Guard) Restore() {
	depth--
	if g.outermost {
		lock.Release()
	}
}
