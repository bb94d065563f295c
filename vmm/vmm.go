// Package vmm implements the kernel's virtual memory manager: the 4-KiB
// paging tree (mapping/unmapping/translation), address-space creation,
// cloning and switching, and the MMIO aperture (see mmio.go) and
// page-fault entry point (see fault.go).
package vmm

import (
	"sync"

	"alos/errs"
	"alos/klog"
	"alos/mem"
	"alos/pmm"
)

var log = klog.For("vmm")

// Attr is a page attribute bitmask, drawn from the set named in
// spec.md §3: present, writable, user-accessible, write-through,
// cache-disabled, global, no-execute.
type Attr uint64

const (
	FlagPresent       Attr = 1 << 0
	FlagRW            Attr = 1 << 1
	FlagUser          Attr = 1 << 2
	FlagWriteThrough  Attr = 1 << 3
	FlagCacheDisabled Attr = 1 << 4
	FlagGlobal        Attr = 1 << 5
	FlagNoExecute     Attr = 1 << 6
)

// ErrNoHugePageSupport is the NotSupported error for huge-page
// mappings, which this package does not implement: every mapping is a
// single 4-KiB leaf. No function in this package currently returns it.
var ErrNoHugePageSupport = errs.New("vmm", errs.NotSupported)

// AddressSpace is a page-table tree root. The kernel half is shared by
// reference with every address space (CreateAddressSpace installs the
// same interior-table frames the kernel template already owns); the
// user half is private to this AddressSpace.
type AddressSpace struct {
	root mem.Frame
}

// Root returns the physical frame backing the address space's root
// table, e.g. for loading into cr3 on real hardware.
func (as *AddressSpace) Root() mem.Frame { return as.root }

// kernelHalfStart is the first root-table index considered part of the
// kernel half, splitting the address space in two equal parts — index
// 256 of 512 on the amd64 (9/9/9/9) geometry, the canonical higher-half
// boundary.
func kernelHalfStart(g Geometry) int {
	return entriesPerTable / 2
}

// Manager owns the paging tree geometry, the frame arena backing
// interior nodes, and the MMIO aperture registry (mmio.go). One Manager
// serves every AddressSpace created through it.
type Manager struct {
	mu       sync.Mutex
	geom     Geometry
	alloc    *pmm.Allocator
	arena    *arena
	kernel   mem.Frame // root of the shared kernel-half template
	current  *AddressSpace
	haltFn   func(FaultInfo)
	mmio     mmioState
}

// New constructs a Manager using geom for the paging-tree fan-out and
// alloc as the backing frame allocator. mmioBase/mmioEnd bound the
// kernel-virtual MMIO aperture (spec.md §4.2); haltFn is invoked by
// Fault on a fatal page fault instead of actually stopping the CPU, so
// the fatal path is observable in tests.
func New(geom Geometry, alloc *pmm.Allocator, mmioBase, mmioEnd mem.Va, haltFn func(FaultInfo)) (*Manager, *errs.Error) {
	m := &Manager{
		geom:   geom,
		alloc:  alloc,
		arena:  newArena(alloc),
		haltFn: haltFn,
		mmio: mmioState{
			base: mmioBase,
			end:  mmioEnd,
			next: mmioBase,
		},
	}
	root, _, err := m.arena.newTable()
	if err != nil {
		return nil, err
	}
	m.kernel = root
	return m, nil
}

// CreateAddressSpace allocates a fresh root table, copies the kernel
// half's entries by reference from the shared kernel template, and
// leaves the user half empty.
func (m *Manager) CreateAddressSpace() (*AddressSpace, *errs.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rootFrame, rootTable, err := m.arena.newTable()
	if err != nil {
		return nil, err
	}
	kernelTable := m.arena.table(m.kernel)
	start := kernelHalfStart(m.geom)
	for i := start; i < entriesPerTable; i++ {
		rootTable[i] = kernelTable[i]
	}
	return &AddressSpace{root: rootFrame}, nil
}

// CloneAddressSpace creates a new address space sharing the kernel half
// as usual and, for the user half, reinstalls every present leaf of src
// so that it references the *same* physical frame with the same
// attributes — a shared-mapping fork, not copy-on-write (explicit
// non-goal, spec.md §1).
func (m *Manager) CloneAddressSpace(src *AddressSpace) (*AddressSpace, *errs.Error) {
	dst, err := m.CreateAddressSpace()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	start := kernelHalfStart(m.geom)
	m.walkLeaves(src.root, 0, 0, func(va mem.Va, p pte) {
		if m.geom.index(va, 0) >= start {
			return
		}
		if err := m.installLeafLocked(dst, va, p.frame(), p.attr()); err != nil {
			log.Warnf("CloneAddressSpace", "failed to clone leaf at %#x: %v", va, err)
		}
	})
	return dst, nil
}

// FreeAddressSpace releases the user-half interior nodes and the root
// table of as. Per spec.md §4.2, interior nodes emptied by Unmap are
// never reclaimed during ordinary unmapping; FreeAddressSpace is the
// one path that tears a tree down completely, at address-space death.
func (m *Manager) FreeAddressSpace(as *AddressSpace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := kernelHalfStart(m.geom)
	m.freeSubtreeLocked(as.root, 0, 0, start)
	m.arena.freeTable(as.root)
}

func (m *Manager) freeSubtreeLocked(frame mem.Frame, level, lo, hi int) {
	t := m.arena.table(frame)
	if t == nil {
		return
	}
	last := m.geom.levels()-1 == level
	for i := lo; i < hi; i++ {
		e := t[i]
		if !e.present() {
			continue
		}
		if !last {
			m.freeSubtreeLocked(e.frame(), level+1, 0, entriesPerTable)
			m.arena.freeTable(e.frame())
		}
	}
}

// SwitchAddressSpace records as as the active address space, reported
// by Active. Map, Unmap, Translate and the other tree operations always
// take an explicit AddressSpace and do not consult it. On real hardware
// this would also reload cr3; there is nothing further to do in this
// hosted model.
func (m *Manager) SwitchAddressSpace(as *AddressSpace) {
	m.mu.Lock()
	m.current = as
	m.mu.Unlock()
}

// Active returns the address space last installed via
// SwitchAddressSpace, or nil if none has been installed yet.
func (m *Manager) Active() *AddressSpace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Map installs a mapping from virt to phys in as with the given
// attributes. Missing interior tables are allocated and zeroed as the
// walk descends; the caller's attributes are OR'ed with FlagPresent, so
// Map never installs a non-present leaf (spec.md §4.2).
func (m *Manager) Map(as *AddressSpace, phys mem.Pa, virt mem.Va, attrs Attr) *errs.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installLeafLocked(as, virt, mem.FrameOf(phys), attrs|FlagPresent)
}

func (m *Manager) installLeafLocked(as *AddressSpace, virt mem.Va, frame mem.Frame, attrs Attr) *errs.Error {
	frameNode := as.root
	levels := m.geom.levels()
	for level := 0; level < levels; level++ {
		t := m.arena.table(frameNode)
		if t == nil {
			return errs.New("vmm.Map", errs.Corrupted)
		}
		idx := m.geom.index(virt, level)

		if level == levels-1 {
			t[idx] = makePTE(frame, attrs|FlagPresent)
			invalidate(virt)
			return nil
		}

		e := t[idx]
		if !e.present() {
			childFrame, _, err := m.arena.newTable()
			if err != nil {
				return err
			}
			t[idx] = makePTE(childFrame, FlagPresent|FlagRW)
			frameNode = childFrame
		} else {
			frameNode = e.frame()
		}
	}
	return nil
}

// Unmap clears the leaf entry for virt in as and invalidates its TLB
// slot. Interior nodes along the path are left in place (spec.md
// §4.2); use FreeAddressSpace to reclaim them along with the whole
// tree.
func (m *Manager) Unmap(as *AddressSpace, virt mem.Va) *errs.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameNode := as.root
	levels := m.geom.levels()
	for level := 0; level < levels; level++ {
		t := m.arena.table(frameNode)
		if t == nil {
			return errs.New("vmm.Unmap", errs.NotFound)
		}
		idx := m.geom.index(virt, level)
		e := t[idx]
		if !e.present() {
			return errs.New("vmm.Unmap", errs.NotFound)
		}
		if level == levels-1 {
			t[idx] = 0
			invalidate(virt)
			return nil
		}
		frameNode = e.frame()
	}
	return nil
}

// Translate returns the physical address backing virt in as, or ok=false
// if virt is unmapped.
func (m *Manager) Translate(as *AddressSpace, virt mem.Va) (mem.Pa, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.lookupLocked(as, virt)
	if !ok {
		return 0, false
	}
	offset := mem.Pa(virt.Offset())
	return p.frame().Addr() + offset, true
}

// IsMapped reports whether virt has a present leaf mapping in as.
func (m *Manager) IsMapped(as *AddressSpace, virt mem.Va) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookupLocked(as, virt)
	return ok
}

func (m *Manager) lookupLocked(as *AddressSpace, virt mem.Va) (pte, bool) {
	frameNode := as.root
	levels := m.geom.levels()
	for level := 0; level < levels; level++ {
		t := m.arena.table(frameNode)
		if t == nil {
			return 0, false
		}
		idx := m.geom.index(virt, level)
		e := t[idx]
		if !e.present() {
			return 0, false
		}
		if level == levels-1 {
			return e, true
		}
		frameNode = e.frame()
	}
	return 0, false
}

// MakeUserAccessible walks [start, start+size) page by page and ORs
// the user bit into every already-mapped leaf; pages not yet mapped
// are left alone (spec.md §4.2 — the ring-3 trampoline maps them
// first).
func (m *Manager) MakeUserAccessible(as *AddressSpace, start mem.Va, size uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := start.Page()
	last := mem.Va(uintptr(start) + size - 1).Page()
	for va := first; va <= last; va += mem.PageSize {
		p, ok := m.lookupLocked(as, va)
		if !ok {
			continue
		}
		m.setLeafAttrLocked(as, va, p.attr()|FlagUser)
	}
}

func (m *Manager) setLeafAttrLocked(as *AddressSpace, virt mem.Va, attrs Attr) {
	frameNode := as.root
	levels := m.geom.levels()
	for level := 0; level < levels; level++ {
		t := m.arena.table(frameNode)
		idx := m.geom.index(virt, level)
		e := t[idx]
		if level == levels-1 {
			t[idx] = makePTE(e.frame(), attrs)
			return
		}
		frameNode = e.frame()
	}
}

// walkLeaves invokes fn for every present leaf reachable from frameNode
// at the given tree level, reconstructing each leaf's virtual address.
func (m *Manager) walkLeaves(frameNode mem.Frame, level int, vaPrefix mem.Va, fn func(mem.Va, pte)) {
	t := m.arena.table(frameNode)
	if t == nil {
		return
	}
	levels := m.geom.levels()
	shift := mem.PageShift
	for l := levels - 1; l > level; l-- {
		shift += int(m.geom.BitsPerLevel[l])
	}
	for i := 0; i < entriesPerTable; i++ {
		e := t[i]
		if !e.present() {
			continue
		}
		va := vaPrefix | mem.Va(uint(i)<<uint(shift))
		if level == levels-1 {
			fn(va, e)
			continue
		}
		m.walkLeaves(e.frame(), level+1, va, fn)
	}
}

// invalidate flushes the TLB entry for a virtual page. This hosted
// model has no TLB to flush; the call is kept so that every mapping
// mutation follows it, matching spec.md §5 ("TLB invalidation follows
// every leaf change") and giving real hardware backends a single call
// site to hook.
func invalidate(virt mem.Va) {
	_ = virt
}
