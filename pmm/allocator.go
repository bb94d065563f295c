// Package pmm implements the kernel's physical memory manager: a dense
// bitmap over every physical 4-KiB frame reported by the boot memory map.
// Allocation is a linear scan from a rotating hint; free toggles a single
// bit. There is no locking built in to the bitmap itself — the mutex here
// serializes the single allocator instance, consistent with spec.md §5
// ("no operation may acquire the heap lock while already holding another
// lock introduced by the implementer").
package pmm

import (
	"sync"

	"alos/errs"
	"alos/klog"
	"alos/mem"
)

var log = klog.For("pmm")

// Region describes one entry of the boot memory map (spec.md §6): a
// physical byte range that is either usable or reserved. The map is
// consumed once, at Init.
type Region struct {
	Start   mem.Pa
	Length  uint64
	Usable  bool
}

// MemoryMap is the boot-time physical memory map. Non-usable ranges
// (including any range not described at all, by construction of Init)
// are permanently owned by "reserved".
type MemoryMap []Region

// Allocator is the bitmap physical frame allocator described in
// spec.md §4.1. The zero value is not ready for use; call Init.
type Allocator struct {
	mu sync.Mutex

	// bitmap holds one bit per frame in [0, numFrames); bit set means
	// the frame is used (allocated or reserved), clear means free.
	bitmap []uint64

	numFrames  uint64
	freeFrames uint64
	// hint is the frame to resume single-frame scans from, so that a
	// sequence of allocations doesn't always restart at frame 0.
	hint uint64
}

// Init builds the free bitmap from a boot memory map. kernelStart/
// kernelEnd name the physical range occupied by the kernel image, which
// is reserved regardless of what the memory map says about it. Init
// fails-early (spec.md §4.1) if the computed frame count is zero.
func (a *Allocator) Init(mm MemoryMap, kernelStart, kernelEnd mem.Pa) *errs.Error {
	var maxFrame uint64
	for _, r := range mm {
		end := uint64(r.Start) + r.Length
		f := end >> mem.PageShift
		if f > maxFrame {
			maxFrame = f
		}
	}
	if ke := uint64(kernelEnd) >> mem.PageShift; ke > maxFrame {
		maxFrame = ke
	}
	if maxFrame == 0 {
		return errs.New("pmm.Init", errs.InvalidArgument)
	}

	a.numFrames = maxFrame
	words := (maxFrame + 63) / 64
	a.bitmap = make([]uint64, words)
	for i := range a.bitmap {
		a.bitmap[i] = ^uint64(0) // default: every frame reserved/used
	}
	a.freeFrames = 0

	for _, r := range mm {
		if !r.Usable {
			continue
		}
		startFrame := uint64(r.Start) >> mem.PageShift
		endFrame := (uint64(r.Start) + r.Length) >> mem.PageShift
		for f := startFrame; f < endFrame; f++ {
			a.markFree(f)
		}
	}

	startFrame := uint64(kernelStart) >> mem.PageShift
	endFrame := (uint64(kernelEnd) + mem.PageSize - 1) >> mem.PageShift
	for f := startFrame; f < endFrame && f < a.numFrames; f++ {
		a.markUsed(f)
	}

	log.Infof("Init", "frames total=%d free=%d", a.numFrames, a.freeFrames)
	return nil
}

func (a *Allocator) bitSet(f uint64) bool {
	return a.bitmap[f>>6]&(uint64(1)<<(f&63)) != 0
}

func (a *Allocator) markUsed(f uint64) {
	if !a.bitSet(f) {
		a.freeFrames--
	}
	a.bitmap[f>>6] |= uint64(1) << (f & 63)
}

func (a *Allocator) markFree(f uint64) {
	if a.bitSet(f) {
		a.freeFrames++
	}
	a.bitmap[f>>6] &^= uint64(1) << (f & 63)
}

// AllocBlock reserves and returns a single free frame, or NoMemory if
// none remain. Allocation when the free count is zero returns NoMemory
// without scanning (spec.md §4.1).
func (a *Allocator) AllocBlock() (mem.Frame, *errs.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freeFrames == 0 {
		return mem.NoFrame, errs.New("pmm.AllocBlock", errs.NoMemory)
	}
	f, ok := a.scanFree(a.hint)
	if !ok {
		return mem.NoFrame, errs.New("pmm.AllocBlock", errs.NoMemory)
	}
	a.markUsed(f)
	a.hint = f + 1
	return mem.Frame(f), nil
}

// scanFree finds the first clear bit at or after start, wrapping once.
// Per spec.md §9, whole 0xFF(..F) words are skipped without per-bit
// inspection.
func (a *Allocator) scanFree(start uint64) (uint64, bool) {
	n := a.numFrames
	if start >= n {
		start = 0
	}
	for pass := 0; pass < 2; pass++ {
		wordStart := start >> 6
		for wi := wordStart; wi < uint64(len(a.bitmap)); wi++ {
			word := a.bitmap[wi]
			if word == ^uint64(0) {
				continue
			}
			for bit := uint64(0); bit < 64; bit++ {
				f := wi*64 + bit
				if f >= n {
					break
				}
				if word&(1<<bit) == 0 {
					return f, true
				}
			}
		}
		start = 0
	}
	return 0, false
}

// AllocBlocks reserves n consecutive free frames and returns the first
// one, or NoMemory if no such run exists.
func (a *Allocator) AllocBlocks(n int) (mem.Frame, *errs.Error) {
	if n <= 0 {
		return mem.NoFrame, errs.New("pmm.AllocBlocks", errs.InvalidArgument)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freeFrames < uint64(n) {
		return mem.NoFrame, errs.New("pmm.AllocBlocks", errs.NoMemory)
	}

	run := 0
	var runStart uint64
	for f := uint64(0); f < a.numFrames; f++ {
		if !a.bitSet(f) {
			if run == 0 {
				runStart = f
			}
			run++
			if run == n {
				for i := uint64(0); i < uint64(n); i++ {
					a.markUsed(runStart + i)
				}
				return mem.Frame(runStart), nil
			}
		} else {
			run = 0
		}
	}
	return mem.NoFrame, errs.New("pmm.AllocBlocks", errs.NoMemory)
}

// FreeBlock releases a previously allocated frame. Freeing a frame that
// is already free returns InvalidArgument: the source silently ignored
// double-free, but this implementation tightens that (DESIGN.md) since
// the bitmap makes the check essentially free.
func (a *Allocator) FreeBlock(f mem.Frame) *errs.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := uint64(f)
	if idx >= a.numFrames {
		return errs.New("pmm.FreeBlock", errs.InvalidArgument)
	}
	if !a.bitSet(idx) {
		return errs.New("pmm.FreeBlock", errs.InvalidArgument)
	}
	a.markFree(idx)
	if idx < a.hint {
		a.hint = idx
	}
	return nil
}

// FreeBlocks releases n consecutive frames starting at f.
func (a *Allocator) FreeBlocks(f mem.Frame, n int) *errs.Error {
	for i := 0; i < n; i++ {
		if err := a.FreeBlock(mem.Frame(uint64(f) + uint64(i))); err != nil {
			return err
		}
	}
	return nil
}

// TotalFrames reports the number of frames covered by the bitmap.
func (a *Allocator) TotalFrames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.numFrames
}

// FreeFrames reports the number of currently free frames.
func (a *Allocator) FreeFrames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeFrames
}

// UsedFrames reports the number of currently allocated or reserved
// frames.
func (a *Allocator) UsedFrames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.numFrames - a.freeFrames
}

// IsFree reports whether frame f is currently free. Exposed mainly for
// tests verifying the reserved/used invariants of spec.md §8.
func (a *Allocator) IsFree(f mem.Frame) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := uint64(f)
	if idx >= a.numFrames {
		return false
	}
	return !a.bitSet(idx)
}
