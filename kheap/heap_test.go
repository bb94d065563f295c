package kheap

import (
	"testing"

	"alos/errs"
)

func newHeap(t *testing.T, size int) *Heap {
	t.Helper()
	h := &Heap{}
	if err := h.Init(make([]byte, size), 0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return h
}

func TestKmallocZeroReturnsNone(t *testing.T) {
	h := newHeap(t, 4096)
	_, err := h.Kmalloc(0)
	if err == nil || err.Kind != errs.InvalidArgument {
		t.Fatalf("expected InvalidArgument for size 0, got %v", err)
	}
}

func TestKmallocOneIsRoundedTo16(t *testing.T) {
	h := newHeap(t, 4096)
	p, err := h.Kmalloc(1)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	if got := len(h.Bytes(p)); got != 16 {
		t.Fatalf("payload size = %d, want 16", got)
	}
}

func TestAllocFreeNeverLeavesTwoAdjacentFreeBlocks(t *testing.T) {
	h := newHeap(t, 4096)
	a, _ := h.Kmalloc(32)
	b, _ := h.Kmalloc(32)
	c, _ := h.Kmalloc(32)
	_ = c

	h.Kfree(a)
	h.Kfree(b)

	off := 0
	var prevFree *bool
	for off >= 0 && off < len(h.region) {
		hdr := h.header(off)
		if prevFree != nil && *prevFree && hdr.free {
			t.Fatalf("adjacent free blocks found at offset %d", off)
		}
		f := hdr.free
		prevFree = &f
		off = hdr.next
	}
}

func TestFreeThenMallocReusesSpace(t *testing.T) {
	h := newHeap(t, 4096)
	freeBefore, _ := h.Stats()

	p, err := h.Kmalloc(64)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	h.Kfree(p)

	freeAfter, _ := h.Stats()
	if freeAfter != freeBefore {
		t.Fatalf("free bytes changed after alloc+free: before=%d after=%d", freeBefore, freeAfter)
	}
}

func TestKmallocOutOfMemory(t *testing.T) {
	h := newHeap(t, headerSize+32)
	if _, err := h.Kmalloc(16); err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	_, err := h.Kmalloc(4096)
	if err == nil || err.Kind != errs.NoMemory {
		t.Fatalf("expected NoMemory, got %v", err)
	}
}

func TestKreallocZeroFrees(t *testing.T) {
	h := newHeap(t, 4096)
	p, _ := h.Kmalloc(32)
	freeBefore, _ := h.Stats()

	np, err := h.Krealloc(p, 0)
	if err != nil {
		t.Fatalf("Krealloc: %v", err)
	}
	if np != InvalidPtr {
		t.Fatalf("expected InvalidPtr from size-0 realloc")
	}
	if freeAfter, _ := h.Stats(); freeAfter <= freeBefore {
		t.Fatalf("free bytes did not grow after size-0 realloc: before=%d after=%d", freeBefore, freeAfter)
	}
}

func TestKreallocGrowsAndPreservesData(t *testing.T) {
	h := newHeap(t, 4096)
	p, _ := h.Kmalloc(16)
	copy(h.Bytes(p), []byte("ALOS"))

	np, err := h.Krealloc(p, 256)
	if err != nil {
		t.Fatalf("Krealloc: %v", err)
	}
	if string(h.Bytes(np)[:4]) != "ALOS" {
		t.Fatalf("data not preserved across realloc")
	}
}

func TestFreeOutOfBoundsIsNoOp(t *testing.T) {
	h := newHeap(t, 4096)
	h.Kfree(Ptr(1 << 20))
	h.Kfree(InvalidPtr)
}
