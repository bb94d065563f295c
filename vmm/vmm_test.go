package vmm

import (
	"testing"

	"alos/errs"
	"alos/mem"
	"alos/pmm"
)

func newManager(t *testing.T) (*Manager, *pmm.Allocator) {
	t.Helper()
	alloc := &pmm.Allocator{}
	mm := pmm.MemoryMap{{Start: 0, Length: 4096 * mem.PageSize, Usable: true}}
	if err := alloc.Init(mm, 0, mem.PageSize); err != nil {
		t.Fatalf("pmm.Init: %v", err)
	}
	m, err := New(Amd64, alloc, mem.Va(0xffff800000000000), mem.Va(0xffff800020000000), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, alloc
}

func TestMapTranslateRoundTrip(t *testing.T) {
	m, _ := newManager(t)
	as, err := m.CreateAddressSpace()
	if err != nil {
		t.Fatalf("CreateAddressSpace: %v", err)
	}

	phys := mem.Pa(0x123000)
	virt := mem.Va(0x2000)
	if err := m.Map(as, phys, virt, FlagRW); err != nil {
		t.Fatalf("Map: %v", err)
	}

	got, ok := m.Translate(as, virt)
	if !ok {
		t.Fatalf("expected %#x to be mapped", virt)
	}
	if got != phys {
		t.Fatalf("Translate(%#x) = %#x, want %#x", virt, got, phys)
	}

	// Non-zero offset within the page must carry through.
	got2, ok := m.Translate(as, virt+0x45)
	if !ok || got2 != phys+0x45 {
		t.Fatalf("Translate with offset = (%#x,%v), want %#x", got2, ok, phys+0x45)
	}
}

func TestUnmapRemovesMapping(t *testing.T) {
	m, _ := newManager(t)
	as, _ := m.CreateAddressSpace()
	virt := mem.Va(0x4000)
	if err := m.Map(as, mem.Pa(0x5000), virt, FlagRW); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if err := m.Unmap(as, virt); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if m.IsMapped(as, virt) {
		t.Fatalf("expected %#x to be unmapped", virt)
	}
}

func TestCloneAddressSpaceSharesFrames(t *testing.T) {
	m, _ := newManager(t)
	src, _ := m.CreateAddressSpace()
	virt := mem.Va(0x8000)
	phys := mem.Pa(0x9000)
	if err := m.Map(src, phys, virt, FlagRW|FlagUser); err != nil {
		t.Fatalf("Map: %v", err)
	}

	clone, err := m.CloneAddressSpace(src)
	if err != nil {
		t.Fatalf("CloneAddressSpace: %v", err)
	}
	got, ok := m.Translate(clone, virt)
	if !ok || got != phys {
		t.Fatalf("clone translate = (%#x,%v), want %#x", got, ok, phys)
	}
}

func TestMakeUserAccessibleOnlyTouchesMappedPages(t *testing.T) {
	m, _ := newManager(t)
	as, _ := m.CreateAddressSpace()
	virt := mem.Va(0x1000)
	if err := m.Map(as, mem.Pa(0x10000), virt, FlagRW); err != nil {
		t.Fatalf("Map: %v", err)
	}
	m.MakeUserAccessible(as, virt, mem.PageSize*2)

	p, ok := m.lookupLocked(as, virt)
	if !ok {
		t.Fatalf("expected mapping to survive")
	}
	if p.attr()&FlagUser == 0 {
		t.Fatalf("expected user bit set on mapped page")
	}
	// The second page was never mapped; MakeUserAccessible must not map it.
	if m.IsMapped(as, virt+mem.PageSize) {
		t.Fatalf("unmapped page must stay unmapped")
	}
}

func TestIoremapIounmapRoundTrip(t *testing.T) {
	m, _ := newManager(t)
	before := len(m.mmio.regions)

	v, err := m.Ioremap(mem.Pa(0xFEB00000), 0x20000, 0, "test-dev")
	if err != nil {
		t.Fatalf("Ioremap: %v", err)
	}
	kernelAS := &AddressSpace{root: m.kernel}
	if p, ok := m.Translate(kernelAS, v); !ok || p != mem.Pa(0xFEB00000) {
		t.Fatalf("Translate(ioremap base) = (%#x,%v), want 0xFEB00000", p, ok)
	}
	if p, ok := m.Translate(kernelAS, v+0x1FFF0); !ok || p != mem.Pa(0xFEB1FFF0) {
		t.Fatalf("Translate(base+0x1FFF0) = (%#x,%v), want 0xFEB1FFF0", p, ok)
	}

	if err := m.Iounmap(v); err != nil {
		t.Fatalf("Iounmap: %v", err)
	}
	if len(m.mmio.regions) != before {
		t.Fatalf("registry size changed: before=%d after=%d", before, len(m.mmio.regions))
	}
	if m.IsMapped(kernelAS, v) {
		t.Fatalf("expected ioremap page to be unmapped after Iounmap")
	}
}

func TestIoremapOverlapReturnsExistingMapping(t *testing.T) {
	m, _ := newManager(t)
	v1, err := m.Ioremap(mem.Pa(0x40000000), mem.PageSize, 0, "a")
	if err != nil {
		t.Fatalf("Ioremap: %v", err)
	}
	v2, err := m.Ioremap(mem.Pa(0x40000000), mem.PageSize, 0, "a-again")
	if err != nil {
		t.Fatalf("Ioremap (repeat): %v", err)
	}
	if v1 != v2 {
		t.Fatalf("expected identical remap of same region, got %#x and %#x", v1, v2)
	}
}

func TestUnmapUnknownPageFails(t *testing.T) {
	m, _ := newManager(t)
	as, _ := m.CreateAddressSpace()
	err := m.Unmap(as, mem.Va(0xdead0000))
	if err == nil || err.Kind != errs.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
