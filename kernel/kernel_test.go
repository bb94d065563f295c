package kernel

import (
	"bytes"
	"testing"

	"alos/blockio"
	"alos/ext2"
	"alos/kconfig"
	"alos/mem"
	"alos/pmm"
	"alos/vmm"
)

const testNow = uint32(1700000000)

func testBootParams() BootParams {
	return BootParams{
		MemoryMap: pmm.MemoryMap{
			{Start: 0, Length: 16 * 1024 * 1024, Usable: true},
		},
		KernelStart: 0,
		KernelEnd:   mem.Pa(mem.PageSize),
		Geometry:    vmm.Amd64,
	}
}

func testConfig(onFault func(vmm.FaultInfo)) kconfig.Config {
	return kconfig.Config{
		HeapBase:    0x10000,
		HeapSize:    mem.PageSize * 8,
		MMIOBase:    mem.Va(0xFEB00000),
		MMIOEnd:     mem.Va(0xFEB00000 + mem.PageSize*4),
		OnPageFault: onFault,
	}
}

func TestBootWiresEverySubsystem(t *testing.T) {
	k, err := Boot(testConfig(func(vmm.FaultInfo) {}), testBootParams())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if k.PMM.TotalFrames() == 0 {
		t.Fatalf("PMM not initialized")
	}
	if k.KernelAddressSpace() == nil {
		t.Fatalf("kernel address space not created")
	}
	if k.Halted() {
		t.Fatalf("kernel halted before any fault")
	}
}

func TestBootRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(func(vmm.FaultInfo) {})
	cfg.HeapSize = 0
	if _, err := Boot(cfg, testBootParams()); err == nil {
		t.Fatalf("Boot with invalid config: want error, got nil")
	}
}

func TestFaultHaltsKernelAndInvokesCallback(t *testing.T) {
	var got vmm.FaultInfo
	called := false
	k, err := Boot(testConfig(func(info vmm.FaultInfo) {
		called = true
		got = info
	}), testBootParams())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	k.VMM.Fault(k.KernelAddressSpace(), vmm.FaultErrorCode(0), mem.Va(0xdeadb000), nil)

	if !k.Halted() {
		t.Fatalf("Halted() = false after fault")
	}
	if !called {
		t.Fatalf("OnPageFault callback was not invoked")
	}
	if got.Address != mem.Va(0xdeadb000) {
		t.Fatalf("FaultInfo.Address = %#x, want 0xdeadb000", got.Address)
	}
}

func TestMountRootThenCreateFileThroughVfs(t *testing.T) {
	k, err := Boot(testConfig(func(vmm.FaultInfo) {}), testBootParams())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	const blockSize = 1024
	const totalBlocks = 8192
	dev := blockio.NewMemDevice(totalBlocks * (blockSize / blockio.SectorSize))
	if _, err := ext2.Format(dev, k.Heap, ext2.FormatOptions{
		BlockSize:   blockSize,
		TotalBlocks: totalBlocks,
		InodesCount: 1024,
		VolumeName:  "kernel-test",
	}, testNow); err != nil {
		t.Fatalf("ext2.Format: %v", err)
	}

	if err := k.MountRoot(dev); err != nil {
		t.Fatalf("MountRoot: %v", err)
	}

	if _, err := k.VFS.Create("/hello.txt", ext2.TypeFile, testNow); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n, err := k.VFS.Write("/hello.txt", 0, []byte("hi"), testNow); err != nil || n != 2 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	buf := make([]byte, 2)
	if n, err := k.VFS.Read("/hello.txt", 0, buf); err != nil || n != 2 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if string(buf) != "hi" {
		t.Fatalf("got %q, want hi", buf)
	}
}

func TestMemoryProfileIncludesBothAllocators(t *testing.T) {
	k, err := Boot(testConfig(func(vmm.FaultInfo) {}), testBootParams())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	var buf bytes.Buffer
	if err := k.WriteMemoryProfile(&buf); err != nil {
		t.Fatalf("WriteMemoryProfile: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("WriteMemoryProfile produced no output")
	}

	p := k.MemoryProfile()
	if len(p.Sample) != 2 {
		t.Fatalf("len(Sample) = %d, want 2", len(p.Sample))
	}
}
