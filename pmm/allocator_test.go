package pmm

import (
	"testing"

	"alos/errs"
	"alos/mem"
)

func freshAllocator(t *testing.T) *Allocator {
	t.Helper()
	a := &Allocator{}
	mm := MemoryMap{
		{Start: 0, Length: 16 * mem.PageSize, Usable: true},
	}
	if err := a.Init(mm, 0, 2*mem.PageSize); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return a
}

func TestInitReservesKernelImage(t *testing.T) {
	a := freshAllocator(t)
	if a.TotalFrames() != 16 {
		t.Fatalf("total frames = %d, want 16", a.TotalFrames())
	}
	if a.FreeFrames() != 14 {
		t.Fatalf("free frames = %d, want 14", a.FreeFrames())
	}
	if a.IsFree(0) || a.IsFree(1) {
		t.Fatalf("kernel frames must be reserved")
	}
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := freshAllocator(t)
	before := a.FreeFrames()

	var got []mem.Frame
	for i := 0; i < 5; i++ {
		f, err := a.AllocBlock()
		if err != nil {
			t.Fatalf("AllocBlock: %v", err)
		}
		got = append(got, f)
	}
	for _, f := range got {
		if err := a.FreeBlock(f); err != nil {
			t.Fatalf("FreeBlock: %v", err)
		}
	}
	if a.FreeFrames() != before {
		t.Fatalf("free frame count changed: before=%d after=%d", before, a.FreeFrames())
	}
}

func TestAllocBlockFirstFitAfterFree(t *testing.T) {
	a := freshAllocator(t)

	var allocs []mem.Frame
	for i := 0; i < 10; i++ {
		f, err := a.AllocBlock()
		if err != nil {
			t.Fatalf("AllocBlock %d: %v", i, err)
		}
		allocs = append(allocs, f)
	}

	freed := allocs[4]
	if err := a.FreeBlock(freed); err != nil {
		t.Fatalf("FreeBlock: %v", err)
	}

	next, err := a.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock: %v", err)
	}
	if next != freed {
		t.Fatalf("expected reallocation of freed frame %d, got %d", freed, next)
	}
}

func TestAllocBlocksContiguous(t *testing.T) {
	a := freshAllocator(t)
	start, err := a.AllocBlocks(4)
	if err != nil {
		t.Fatalf("AllocBlocks: %v", err)
	}
	for i := 0; i < 4; i++ {
		if a.IsFree(mem.Frame(uint64(start) + uint64(i))) {
			t.Fatalf("frame %d should be allocated", uint64(start)+uint64(i))
		}
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := &Allocator{}
	mm := MemoryMap{{Start: 0, Length: mem.PageSize, Usable: true}}
	if err := a.Init(mm, mem.PageSize, mem.PageSize); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if a.FreeFrames() != 1 {
		t.Fatalf("expected 1 free frame, got %d", a.FreeFrames())
	}
	if _, err := a.AllocBlock(); err != nil {
		t.Fatalf("AllocBlock: %v", err)
	}
	_, err := a.AllocBlock()
	if err == nil || err.Kind != errs.NoMemory {
		t.Fatalf("expected NoMemory, got %v", err)
	}
}

func TestDoubleFreeIsRejected(t *testing.T) {
	a := freshAllocator(t)
	f, err := a.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock: %v", err)
	}
	if err := a.FreeBlock(f); err != nil {
		t.Fatalf("FreeBlock: %v", err)
	}
	err = a.FreeBlock(f)
	if err == nil || err.Kind != errs.InvalidArgument {
		t.Fatalf("expected InvalidArgument on double free, got %v", err)
	}
}

func TestInitZeroFramesFails(t *testing.T) {
	a := &Allocator{}
	err := a.Init(nil, 0, 0)
	if err == nil || err.Kind != errs.InvalidArgument {
		t.Fatalf("expected InvalidArgument for empty map, got %v", err)
	}
}
