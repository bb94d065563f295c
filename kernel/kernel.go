// Package kernel wires the physical memory manager, virtual memory
// manager, kernel heap, and virtual filesystem into the single
// long-lived aggregate spec.md §9 calls for in place of package-level
// globals: a Kernel value constructed once during boot and threaded
// through the rest of the system by reference. The shape is grounded on
// other_examples/SeleniaProject-Orizon's KernelConfig/
// InitializeCompleteKernel boot sequence, since the teacher's own
// kernel/ directory holds no boot-wiring file of its own (see
// DESIGN.md).
package kernel

import (
	"sync"

	"alos/blockio"
	"alos/errs"
	"alos/kconfig"
	"alos/kheap"
	"alos/klog"
	"alos/mem"
	"alos/pmm"
	"alos/vfs"
	"alos/vmm"
)

var log = klog.For("kernel")

// BootParams bundles the Boot inputs that don't belong in
// kconfig.Config: the physical memory map and kernel image bounds the
// PMM needs, and the paging-tree geometry the VMM needs. kconfig.Config
// validates only the parameters every subsystem shares (spec.md §7);
// these are specific to one each.
type BootParams struct {
	MemoryMap   pmm.MemoryMap
	KernelStart mem.Pa
	KernelEnd   mem.Pa
	Geometry    vmm.Geometry
}

// Kernel is the kernel-core aggregate: one physical memory manager, one
// virtual memory manager, one kernel heap, and one VFS namespace,
// constructed once at Boot and passed by reference from then on.
type Kernel struct {
	mu sync.Mutex

	PMM  *pmm.Allocator
	VMM  *vmm.Manager
	Heap *kheap.Heap
	VFS  *vfs.Vfs

	kernelAS *vmm.AddressSpace
	halted   bool
	onFault  func(vmm.FaultInfo)
}

// Boot validates cfg, then constructs and wires every subsystem in
// order: the PMM from the boot memory map, a kernel heap region of
// cfg.HeapSize bytes at cfg.HeapBase, a VMM bounded by cfg.MMIOBase/
// MMIOEnd, a kernel address space switched in as active, and an empty
// VFS with the ext2 driver registered. Boot does not itself mount a
// root filesystem; call MountRoot once a boot device is available.
func Boot(cfg kconfig.Config, bp BootParams) (*Kernel, *errs.Error) {
	if err := kconfig.Load(cfg); err != nil {
		return nil, err
	}

	k := &Kernel{onFault: cfg.OnPageFault}

	k.PMM = &pmm.Allocator{}
	if err := k.PMM.Init(bp.MemoryMap, bp.KernelStart, bp.KernelEnd); err != nil {
		return nil, err
	}

	k.Heap = &kheap.Heap{}
	if err := k.Heap.Init(make([]byte, cfg.HeapSize), cfg.HeapBase); err != nil {
		return nil, err
	}

	vm, err := vmm.New(bp.Geometry, k.PMM, cfg.MMIOBase, cfg.MMIOEnd, k.fault)
	if err != nil {
		return nil, err
	}
	k.VMM = vm

	as, err := k.VMM.CreateAddressSpace()
	if err != nil {
		return nil, err
	}
	k.kernelAS = as
	k.VMM.SwitchAddressSpace(as)

	k.VFS = &vfs.Vfs{}
	k.VFS.Init()
	k.VFS.RegisterFS(vfs.Ext2Driver{})

	log.Infof("Boot", "frames=%d heap=%dB mmio=[%#x,%#x)",
		k.PMM.TotalFrames(), cfg.HeapSize, cfg.MMIOBase, cfg.MMIOEnd)
	return k, nil
}

// MountRoot mounts an ext2 volume at "/". This kernel core registers
// only the one driver, so root is always ext2.
func (k *Kernel) MountRoot(dev blockio.Device) *errs.Error {
	return k.VFS.Mount("/", "ext2", dev, k.Heap)
}

// KernelAddressSpace returns the address space created for the kernel
// half at Boot, active from construction onward.
func (k *Kernel) KernelAddressSpace() *vmm.AddressSpace {
	return k.kernelAS
}

// Halted reports whether a fatal page fault has halted the kernel.
func (k *Kernel) Halted() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.halted
}

// fault is installed as the VMM's halt callback (spec.md §4.2: every
// fault this kernel core sees is fatal). It records the halt before
// forwarding to the caller-supplied callback, so Halted() reflects
// reality even if cfg.OnPageFault panics or never returns.
func (k *Kernel) fault(info vmm.FaultInfo) {
	k.mu.Lock()
	k.halted = true
	k.mu.Unlock()
	if k.onFault != nil {
		k.onFault(info)
	}
}
