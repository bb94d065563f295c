// Package kconfig validates the boot-time configuration every other
// kernel-core component is constructed from: the kernel heap's backing
// region, the MMIO aperture bounds, and the page-fault halt callback
// (SPEC_FULL.md §7). It mirrors the teacher's own alignment-checking
// style (biscuit/src/mem/mem.go's page-rounding helpers, reused here via
// package util) rather than inventing a new one.
package kconfig

import (
	"alos/errs"
	"alos/mem"
	"alos/util"
	"alos/vmm"
)

// Config is the full set of boot-time parameters Load validates before
// the Kernel aggregate (package kernel) wires up PMM, VMM, KHeap, ext2,
// and VFS from them.
type Config struct {
	// HeapBase/HeapSize describe the backing region passed to
	// kheap.Heap.Init.
	HeapBase uintptr
	HeapSize int

	// MMIOBase/MMIOEnd bound the kernel-virtual MMIO aperture passed to
	// vmm.New.
	MMIOBase mem.Va
	MMIOEnd  mem.Va

	// OnPageFault is invoked by vmm.Manager.Fault on every (fatal) page
	// fault; spec.md §4.2 gives the core no non-fatal fault policy, so
	// Load only checks that a callback was actually supplied.
	OnPageFault func(vmm.FaultInfo)
}

// Load validates cfg, returning errs.InvalidArgument for any
// non-page-aligned or zero-sized region, an inverted or empty MMIO
// range, or a missing fault callback.
func Load(cfg Config) *errs.Error {
	if cfg.HeapSize <= 0 {
		return errs.New("kconfig.Load", errs.InvalidArgument)
	}
	if util.Roundup(cfg.HeapBase, uintptr(mem.PageSize)) != cfg.HeapBase {
		return errs.New("kconfig.Load", errs.InvalidArgument)
	}
	if util.Roundup(uintptr(cfg.HeapSize), uintptr(mem.PageSize)) != uintptr(cfg.HeapSize) {
		return errs.New("kconfig.Load", errs.InvalidArgument)
	}

	if cfg.MMIOEnd <= cfg.MMIOBase {
		return errs.New("kconfig.Load", errs.InvalidArgument)
	}
	if uintptr(cfg.MMIOBase)&uintptr(mem.PageOffset) != 0 {
		return errs.New("kconfig.Load", errs.InvalidArgument)
	}
	if uintptr(cfg.MMIOEnd)&uintptr(mem.PageOffset) != 0 {
		return errs.New("kconfig.Load", errs.InvalidArgument)
	}

	if cfg.OnPageFault == nil {
		return errs.New("kconfig.Load", errs.InvalidArgument)
	}
	return nil
}
