package kconfig

import (
	"testing"

	"alos/mem"
	"alos/vmm"
)

func validConfig() Config {
	return Config{
		HeapBase:    0x10000,
		HeapSize:    mem.PageSize * 4,
		MMIOBase:    mem.Va(0xFEB00000),
		MMIOEnd:     mem.Va(0xFEB00000 + mem.PageSize*8),
		OnPageFault: func(vmm.FaultInfo) {},
	}
}

func TestLoadAcceptsValidConfig(t *testing.T) {
	if err := Load(validConfig()); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsZeroHeapSize(t *testing.T) {
	cfg := validConfig()
	cfg.HeapSize = 0
	if err := Load(cfg); err == nil {
		t.Fatalf("Load with zero heap size: want error, got nil")
	}
}

func TestLoadRejectsMisalignedHeapBase(t *testing.T) {
	cfg := validConfig()
	cfg.HeapBase = 1
	if err := Load(cfg); err == nil {
		t.Fatalf("Load with misaligned heap base: want error, got nil")
	}
}

func TestLoadRejectsMisalignedHeapSize(t *testing.T) {
	cfg := validConfig()
	cfg.HeapSize = mem.PageSize + 1
	if err := Load(cfg); err == nil {
		t.Fatalf("Load with misaligned heap size: want error, got nil")
	}
}

func TestLoadRejectsEmptyMMIORange(t *testing.T) {
	cfg := validConfig()
	cfg.MMIOEnd = cfg.MMIOBase
	if err := Load(cfg); err == nil {
		t.Fatalf("Load with empty MMIO range: want error, got nil")
	}
}

func TestLoadRejectsMisalignedMMIOBounds(t *testing.T) {
	cfg := validConfig()
	cfg.MMIOBase = mem.Va(0xFEB00001)
	if err := Load(cfg); err == nil {
		t.Fatalf("Load with misaligned MMIO base: want error, got nil")
	}
}

func TestLoadRejectsMissingFaultCallback(t *testing.T) {
	cfg := validConfig()
	cfg.OnPageFault = nil
	if err := Load(cfg); err == nil {
		t.Fatalf("Load with nil fault callback: want error, got nil")
	}
}
