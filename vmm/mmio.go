package vmm

import (
	"alos/errs"
	"alos/mem"
)

// mmioRegion records one registered MMIO mapping: the physical device
// range, the kernel-virtual range it was mapped to, and a human label
// for diagnostics.
type mmioRegion struct {
	phys mem.Pa
	virt mem.Va
	size uintptr
	name string
}

// mmioState is the MMIO aperture: a reserved kernel-virtual range
// populated by a bump pointer, plus a registry of active mappings
// (spec.md §4.2).
type mmioState struct {
	base, end mem.Va
	next      mem.Va
	regions   []mmioRegion
}

// overlaps reports whether [phys, phys+size) intersects an already
// registered region, returning it if so.
func (s *mmioState) overlaps(phys mem.Pa, size uintptr) (mmioRegion, bool) {
	lo, hi := uint64(phys), uint64(phys)+uint64(size)
	for _, r := range s.regions {
		rlo, rhi := uint64(r.phys), uint64(r.phys)+uint64(r.size)
		if lo < rhi && rlo < hi {
			return r, true
		}
	}
	return mmioRegion{}, false
}

// Ioremap maps a device physical range into the MMIO aperture with
// PRESENT|RW|CACHE_DISABLED|WRITE_THROUGH and returns the resulting
// kernel-virtual address, offset-corrected for a non-page-aligned
// phys. A request whose physical range overlaps an existing registered
// region returns that region's mapping if compatible (same page-aligned
// phys/size), else fails with AlreadyMounted-shaped semantics reported
// as InvalidArgument (MMIO has no notion of mount slots).
func (m *Manager) Ioremap(phys mem.Pa, size uintptr, flags Attr, name string) (mem.Va, *errs.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alignedPhys := mem.Pa(uint64(phys) & ^uint64(mem.PageSize-1))
	offset := uint64(phys) - uint64(alignedPhys)
	alignedSize := mem.RoundUpPages(uintptr(offset)+size) * mem.PageSize

	if existing, ok := m.mmio.overlaps(alignedPhys, alignedSize); ok {
		if existing.phys == alignedPhys && existing.size == alignedSize {
			return mem.Va(uint64(existing.virt) + offset), nil
		}
		return 0, errs.New("vmm.Ioremap", errs.InvalidArgument)
	}

	pages := alignedSize / mem.PageSize
	if uint64(m.mmio.next)+uint64(alignedSize) > uint64(m.mmio.end) {
		return 0, errs.New("vmm.Ioremap", errs.NoMemory)
	}
	regionVirt := m.mmio.next

	kernelAS := &AddressSpace{root: m.kernel}
	attrs := flags | FlagPresent | FlagRW | FlagCacheDisabled | FlagWriteThrough
	for i := uintptr(0); i < pages; i++ {
		va := mem.Va(uint64(regionVirt) + uint64(i)*mem.PageSize)
		pa := mem.Pa(uint64(alignedPhys) + uint64(i)*mem.PageSize)
		if err := m.installLeafLocked(kernelAS, va, mem.FrameOf(pa), attrs); err != nil {
			return 0, err
		}
	}
	m.mmio.next = mem.Va(uint64(regionVirt) + uint64(alignedSize))
	m.mmio.regions = append(m.mmio.regions, mmioRegion{phys: alignedPhys, virt: regionVirt, size: alignedSize, name: name})

	log.Infof("Ioremap", "mapped %s: phys=%#x size=%#x -> virt=%#x", name, phys, size, regionVirt)
	return mem.Va(uint64(regionVirt) + offset), nil
}

// Iounmap looks up the registered region containing v, unmaps each of
// its pages, and removes the registry entry.
func (m *Manager) Iounmap(v mem.Va) *errs.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	var region mmioRegion
	for i, r := range m.mmio.regions {
		if uint64(v) >= uint64(r.virt) && uint64(v) < uint64(r.virt)+uint64(r.size) {
			idx, region = i, r
			break
		}
	}
	if idx < 0 {
		return errs.New("vmm.Iounmap", errs.NotFound)
	}

	kernelAS := &AddressSpace{root: m.kernel}
	pages := region.size / mem.PageSize
	for i := uintptr(0); i < pages; i++ {
		va := mem.Va(uint64(region.virt) + uint64(i)*mem.PageSize)
		frameNode := kernelAS.root
		levels := m.geom.levels()
		for level := 0; level < levels; level++ {
			t := m.arena.table(frameNode)
			if t == nil {
				break
			}
			vidx := m.geom.index(va, level)
			e := t[vidx]
			if !e.present() {
				break
			}
			if level == levels-1 {
				t[vidx] = 0
				invalidate(va)
				break
			}
			frameNode = e.frame()
		}
	}

	m.mmio.regions = append(m.mmio.regions[:idx], m.mmio.regions[idx+1:]...)
	return nil
}
