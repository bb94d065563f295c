// Package kheap implements the kernel's intrusive free-list allocator,
// laid out end-to-end inside a single caller-provided region (spec.md
// §4.3). Every public operation is serialized by one spinlock-style
// mutex, released before returning to the caller.
package kheap

import (
	"sync"
	"unsafe"

	"alos/errs"
	"alos/klog"
)

var log = klog.For("kheap")

const headerSize = int(unsafe.Sizeof(blockHeader{}))

// minPayload is the smallest payload size a request is rounded up to
// (spec.md §4.3).
const minPayload = 16

// splitThreshold is the minimum payload slack a free block must have
// beyond the requested size before it is worth splitting in two.
const splitThreshold = headerSize + 16

// blockHeader precedes every block's payload bytes in the backing
// region. size is the payload size in bytes; free marks availability;
// next is the byte offset (within Heap.region) of the following block,
// or -1 for the list's end. The list is a single forward chain from the
// first block to that sentinel (spec.md §3 HeapBlock invariants).
type blockHeader struct {
	size int
	free bool
	next int
}

// Heap is the intrusive free-list allocator. The zero value is not
// ready for use; call Init.
type Heap struct {
	mu     sync.Mutex
	region []byte
	base   uintptr // address region[0] is considered to occupy; recorded only
}

// Init carves a single free block spanning the whole region. base is
// the address the region is mapped at; it is recorded but no operation
// reads it, since a Ptr is an offset and Kfree/Krealloc bounds-check it
// against len(region). The region must be at least headerSize bytes.
func (h *Heap) Init(region []byte, base uintptr) *errs.Error {
	if len(region) < headerSize {
		return errs.New("kheap.Init", errs.InvalidArgument)
	}
	h.region = region
	h.base = base
	h.writeHeader(0, blockHeader{size: len(region) - headerSize, free: true, next: -1})
	return nil
}

func (h *Heap) header(off int) blockHeader {
	return *(*blockHeader)(unsafe.Pointer(&h.region[off]))
}

func (h *Heap) writeHeader(off int, hdr blockHeader) {
	*(*blockHeader)(unsafe.Pointer(&h.region[off])) = hdr
}

func roundSize(n int) int {
	n = (n + 3) &^ 3
	if n < minPayload {
		n = minPayload
	}
	return n
}

// Kmalloc returns a pointer (as a byte offset into the backing region,
// see Ptr) to a payload of at least n bytes, or NoMemory if no block is
// large enough. Kmalloc(0), or any n <= 0, returns InvalidPtr with
// InvalidArgument (spec.md §8).
func (h *Heap) Kmalloc(n int) (Ptr, *errs.Error) {
	if n <= 0 {
		return InvalidPtr, errs.New("kheap.Kmalloc", errs.InvalidArgument)
	}
	want := roundSize(n)

	h.mu.Lock()
	defer h.mu.Unlock()

	off := 0
	for off >= 0 && off < len(h.region) {
		hdr := h.header(off)
		if hdr.free && hdr.size >= want {
			if hdr.size-want >= splitThreshold {
				h.split(off, hdr, want)
			}
			cur := h.header(off)
			cur.free = false
			h.writeHeader(off, cur)
			return Ptr(off + headerSize), nil
		}
		off = hdr.next
	}
	return InvalidPtr, errs.New("kheap.Kmalloc", errs.NoMemory)
}

// split breaks the free block at off (with header hdr) into a used
// block of exactly want bytes and a new free block holding the
// remainder, wiring the new block into the chain in hdr's place.
func (h *Heap) split(off int, hdr blockHeader, want int) {
	newOff := off + headerSize + want
	remaining := hdr.size - want - headerSize
	h.writeHeader(newOff, blockHeader{size: remaining, free: true, next: hdr.next})
	h.writeHeader(off, blockHeader{size: want, free: hdr.free, next: newOff})
}

// Kfree marks p's block free and coalesces adjacent free blocks. Free
// on an out-of-bounds or already-free pointer is a no-op (spec.md
// §4.3); NULL (InvalidPtr) is likewise a no-op.
func (h *Heap) Kfree(p Ptr) {
	if p == InvalidPtr {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	off := int(p) - headerSize
	if off < 0 || off >= len(h.region) {
		return
	}
	hdr := h.header(off)
	if hdr.free {
		return
	}
	hdr.free = true
	h.writeHeader(off, hdr)

	h.coalesceForward(off)
	h.coalesceFromHead()
}

// coalesceForward merges the block at off with its immediate successor
// while both are free.
func (h *Heap) coalesceForward(off int) {
	for {
		hdr := h.header(off)
		if hdr.next < 0 {
			return
		}
		next := h.header(hdr.next)
		if !hdr.free || !next.free {
			return
		}
		hdr.size += headerSize + next.size
		hdr.next = next.next
		h.writeHeader(off, hdr)
	}
}

// coalesceFromHead performs a second pass from the list head so that a
// freed block's *predecessor*, if also free, absorbs it too — the list
// is singly linked, so this back-scan is required (spec.md §4.3).
func (h *Heap) coalesceFromHead() {
	off := 0
	for off >= 0 {
		h.coalesceForward(off)
		off = h.header(off).next
	}
}

// Krealloc resizes the allocation at p to n bytes, preserving the
// lesser of the old and new sizes' worth of payload. Size 0 is
// equivalent to Kfree (spec.md §4.3).
func (h *Heap) Krealloc(p Ptr, n int) (Ptr, *errs.Error) {
	if n == 0 {
		h.Kfree(p)
		return InvalidPtr, nil
	}
	if p == InvalidPtr {
		return h.Kmalloc(n)
	}

	h.mu.Lock()
	off := int(p) - headerSize
	if off < 0 || off >= len(h.region) {
		h.mu.Unlock()
		return InvalidPtr, errs.New("kheap.Krealloc", errs.InvalidArgument)
	}
	oldSize := h.header(off).size
	h.mu.Unlock()

	want := roundSize(n)
	if want <= oldSize {
		return p, nil
	}

	np, err := h.Kmalloc(n)
	if err != nil {
		return InvalidPtr, err
	}
	copy(h.Bytes(np)[:oldSize], h.Bytes(p)[:oldSize])
	h.Kfree(p)
	return np, nil
}

// Ptr is an offset into the heap's backing region, standing in for a
// raw pointer: the region itself is a Go byte slice, not an address
// reachable by hardware, so arithmetic on it stays memory-safe while
// preserving the pointer-like public API spec.md §4.3 describes.
type Ptr int

// InvalidPtr is the NONE sentinel returned on allocation failure.
const InvalidPtr Ptr = -1

// Bytes returns the payload slice backing p — used by tests and by
// callers (ext2 buffers) that need direct access to the payload bytes.
// p must be a live allocation; Bytes does not check this. A p outside
// the region panics on the slice bounds, and a freed p is not detected.
func (h *Heap) Bytes(p Ptr) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	off := int(p) - headerSize
	hdr := h.header(off)
	return h.region[off+headerSize : off+headerSize+hdr.size]
}

// Stats reports the current count of free bytes and the number of
// blocks in the chain, for diagnostics and tests.
func (h *Heap) Stats() (freeBytes int, blocks int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	off := 0
	for off >= 0 && off < len(h.region) {
		hdr := h.header(off)
		blocks++
		if hdr.free {
			freeBytes += hdr.size
		}
		off = hdr.next
	}
	log.Infof("Stats", "blocks=%d free=%d", blocks, freeBytes)
	return freeBytes, blocks
}
