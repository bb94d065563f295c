package vmm

import (
	"sync"

	"alos/errs"
	"alos/mem"
	"alos/pmm"
)

// entriesPerTable is the fan-out of one level of the paging tree: 512
// entries of 8 bytes each fill exactly one 4-KiB frame, the amd64
// (9/9/9/9) geometry named in spec.md §4.2. The same code also serves
// the 32-bit (10/10) geometry by constructing a Geometry with two
// levels of 10 bits each; amd64 is the one exercised by this repo.
const entriesPerTable = 512

// Geometry describes the fan-out of a paging tree: one entry per level,
// from the root (PML4 on amd64) down to the leaf (PT).
type Geometry struct {
	// BitsPerLevel holds the number of virtual-address bits consumed by
	// each level, root first.
	BitsPerLevel []uint
}

// Amd64 is the 4-level 9/9/9/9 paging geometry.
var Amd64 = Geometry{BitsPerLevel: []uint{9, 9, 9, 9}}

// I386 is the 2-level 10/10 paging geometry.
var I386 = Geometry{BitsPerLevel: []uint{10, 10}}

func (g Geometry) levels() int { return len(g.BitsPerLevel) }

// index returns the entry index within the table at the given level
// (0 = root) for virtual address va.
func (g Geometry) index(va mem.Va, level int) int {
	shift := uint(mem.PageShift)
	for l := g.levels() - 1; l > level; l-- {
		shift += g.BitsPerLevel[l]
	}
	bits := g.BitsPerLevel[level]
	mask := uint(1)<<bits - 1
	return int((uint(va) >> shift) & mask)
}

// pte is one page-table entry: a frame number plus attribute bits. The
// layout mirrors the real x86 PTE (frame in the high bits, flags in the
// low bits) so that Attr values translate directly to hardware
// semantics, even though this implementation stores entries as Go
// values rather than raw bytes mapped through the HHDM (see arena).
type pte uint64

const pteFrameShift = 12

func makePTE(f mem.Frame, a Attr) pte {
	return pte(uint64(f)<<pteFrameShift | uint64(a))
}

func (p pte) frame() mem.Frame { return mem.Frame(uint64(p) >> pteFrameShift) }
func (p pte) attr() Attr       { return Attr(uint64(p) & (uint64(1)<<pteFrameShift - 1)) }
func (p pte) present() bool    { return p.attr()&FlagPresent != 0 }

// table is the in-memory content of one paging-tree node: exactly the
// entries that would live in the PMM frame backing it.
type table [entriesPerTable]pte

// arena is the HHDM stand-in: it backs every interior paging-tree node
// with Go-managed storage keyed by the PMM frame that "contains" it,
// since this kernel core runs hosted rather than with a real direct
// map over physical RAM.
type arena struct {
	mu     sync.Mutex
	alloc  *pmm.Allocator
	tables map[mem.Frame]*table
}

func newArena(alloc *pmm.Allocator) *arena {
	return &arena{alloc: alloc, tables: make(map[mem.Frame]*table)}
}

// newTable allocates a PMM frame for a fresh, zeroed interior node.
func (a *arena) newTable() (mem.Frame, *table, *errs.Error) {
	f, err := a.alloc.AllocBlock()
	if err != nil {
		return mem.NoFrame, nil, err
	}
	a.mu.Lock()
	t := &table{}
	a.tables[f] = t
	a.mu.Unlock()
	return f, t, nil
}

func (a *arena) table(f mem.Frame) *table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tables[f]
}

func (a *arena) freeTable(f mem.Frame) {
	a.mu.Lock()
	delete(a.tables, f)
	a.mu.Unlock()
	a.alloc.FreeBlock(f)
}
