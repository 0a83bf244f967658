// Package vmsys is the boot-time facade over the paging subsystem: it wires
// the pmm pools, the kernel page directory, the process registry, the
// replacement engine, and the fault handler into a single vmsys.System, and
// exposes the external operations named in spec.md §6 (Vmalloc, Vfree,
// Vcreate, PageFault, and the debug/introspection accessors). Grounded on
// the shape of kernel/kmain.Kmain's boot sequence, generalized
// from a one-shot freestanding entry point into a reusable constructor a
// test harness can call repeatedly with different configurations.
package vmsys

import (
	"encoding/json"
	"io"

	"pagingvm/pmm"
)

// Config holds the knobs spec.md leaves open for a hosted test harness:
// pool capacities (so a test suite can run against a pool small enough to
// exhaust in a handful of allocations) and whether swap-out is enabled at
// all. The physical and virtual memory map itself - KernelBase, FFSBase,
// SwapBase, VHeapStart, VHeapEnd - is the architecture's fixed layout
// (pmm/constants.go) and is not configurable, matching spec.md's "fixed
// memory map" invariant.
//
// Grounded on _examples/LucasIBorrat-GoSO/cmd/memoria/config.go's flat
// JSON-tagged config struct, adapted to decode from an io.Reader instead of
// a fixed file path since this module has no CLI entry point of its own.
type Config struct {
	PTFrames    int    `json:"pt_frames"`
	FFSFrames   int    `json:"ffs_frames"`
	SwapSlots   int    `json:"swap_slots"`
	SwapEnabled bool   `json:"swap_enabled"`
	LogLevel    string `json:"log_level"`
}

// DefaultConfig returns the configuration matching the architecture's fixed
// pool sizes (pmm.MaxPTSize, pmm.F, pmm.S) with swap enabled and logging at
// info level.
func DefaultConfig() *Config {
	return &Config{
		PTFrames:    pmm.MaxPTSize,
		FFSFrames:   pmm.F,
		SwapSlots:   pmm.S,
		SwapEnabled: true,
		LogLevel:    "info",
	}
}

// LoadConfig decodes a Config from r. A nil r returns DefaultConfig(), for
// callers (tests, a minimal bootstrap) with no configuration source.
func LoadConfig(r io.Reader) (*Config, error) {
	if r == nil {
		return DefaultConfig(), nil
	}
	cfg := DefaultConfig()
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
