package kernel

import (
	"io"

	"github.com/google/pprof/profile"
)

// MemoryProfile snapshots the PMM and KHeap allocators into a pprof
// Profile, for inspection with the ordinary `go tool pprof` toolchain.
// Neither allocator records call stacks, so each gets one synthetic
// Location/Function standing in for "wherever this allocator's memory
// currently is": a single sample per allocator carrying that
// allocator's own counters as values.
func (k *Kernel) MemoryProfile() *profile.Profile {
	pmmFn := &profile.Function{ID: 1, Name: "pmm.Allocator"}
	heapFn := &profile.Function{ID: 2, Name: "kheap.Heap"}
	pmmLoc := &profile.Location{ID: 1, Line: []profile.Line{{Function: pmmFn}}}
	heapLoc := &profile.Location{ID: 2, Line: []profile.Line{{Function: heapFn}}}

	freeBytes, blocks := k.Heap.Stats()

	return &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "value1", Unit: "count"},
			{Type: "value2", Unit: "count"},
		},
		Function: []*profile.Function{pmmFn, heapFn},
		Location: []*profile.Location{pmmLoc, heapLoc},
		Sample: []*profile.Sample{
			{
				Location: []*profile.Location{pmmLoc},
				Value:    []int64{int64(k.PMM.FreeFrames()), int64(k.PMM.UsedFrames())},
			},
			{
				Location: []*profile.Location{heapLoc},
				Value:    []int64{int64(freeBytes), int64(blocks)},
			},
		},
	}
}

// WriteMemoryProfile writes a fresh MemoryProfile snapshot to w in
// standard gzip-compressed pprof wire format.
func (k *Kernel) WriteMemoryProfile(w io.Writer) error {
	return k.MemoryProfile().Write(w)
}
