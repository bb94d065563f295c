package vfs

import (
	"alos/blockio"
	"alos/errs"
	"alos/kheap"
)

// maxMounts bounds the mount table to a fixed-size array of slots
// (spec.md §4.5 "fixed-size array of slots; first free slot wins"),
// rather than a growable structure — the teacher's registries (PCI,
// MMIO, VFS) are all fixed-capacity for the same reason (spec.md §9).
const maxMounts = 16

// Driver constructs a mounted filesystem's root node given a backing
// block device and heap. Registered once per filesystem type by name
// (spec.md §4.5 register_fs); this kernel core ships exactly one,
// "ext2", but the indirection keeps Vfs from hard-coding package ext2.
type Driver interface {
	Name() string
	Mount(dev blockio.Device, heap *kheap.Heap) (root Node, unmount func() *errs.Error, err *errs.Error)
}

type mountSlot struct {
	inUse   bool
	path    string
	root    Node
	unmount func() *errs.Error
}

type mountTable struct {
	slots [maxMounts]mountSlot
}

func (mt *mountTable) firstFreeSlot() int {
	for i := range mt.slots {
		if !mt.slots[i].inUse {
			return i
		}
	}
	return -1
}

// findExact returns the slot index mounted exactly at path, or -1.
func (mt *mountTable) findExact(path string) int {
	for i := range mt.slots {
		if mt.slots[i].inUse && mt.slots[i].path == path {
			return i
		}
	}
	return -1
}

// findLongestPrefix returns the slot index whose mount path is the
// longest prefix of path among all mounted slots, used by resolution to
// find which mounted filesystem a lookup should start under. "/" always
// qualifies as a prefix of everything.
func (mt *mountTable) findLongestPrefix(path string) int {
	best := -1
	bestLen := -1
	for i := range mt.slots {
		if !mt.slots[i].inUse {
			continue
		}
		mp := mt.slots[i].path
		if mp == "/" || path == mp || (len(path) > len(mp) && path[:len(mp)] == mp && path[len(mp)] == '/') {
			if len(mp) > bestLen {
				best = i
				bestLen = len(mp)
			}
		}
	}
	return best
}
