// Package kfmt provides the diagnostic output primitives used by the paging
// subsystem. Unlike the freestanding kernel this package was lifted from, the
// module runs hosted on a normal Go runtime, so Printf is a thin wrapper
// around fmt.Fprintf rather than an allocation-free formatter. What survives
// from the original is the indirection through an injectable output sink:
// callers never write to os.Stdout directly, so tests can capture the
// eviction/swap-in trace lines without touching global state.
package kfmt

import (
	"fmt"
	"io"
	"os"
)

// outputSink is where Printf sends its output. It defaults to os.Stdout so
// the module behaves sensibly when wired into a real boot sequence.
var outputSink io.Writer = os.Stdout

// SetOutputSink redirects Printf output to w. Passing nil restores the
// default of os.Stdout.
func SetOutputSink(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	outputSink = w
}

// GetOutputSink returns the writer currently receiving Printf output.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf formats according to a format specifier and writes to the active
// output sink.
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(outputSink, format, args...)
}
