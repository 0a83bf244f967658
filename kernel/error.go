// Package kernel provides the small set of types shared by every paging
// subsystem package: the common error type and the byte-level helpers used
// to manipulate simulated physical frames.
package kernel

// Error describes a paging-subsystem error. All errors are defined as
// package-level variables that are pointers to this structure, which lets
// call sites compare errors by identity (err == pmm.ErrFFSPoolExhausted) the same
// way the rest of the module compares sentinel errors.
type Error struct {
	// Module names the package where the error originated.
	Module string

	// Message is a human-readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "[" + e.Module + "] " + e.Message
}
