package vfs

import (
	"alos/blockio"
	"alos/errs"
	"alos/ext2"
	"alos/kheap"
)

// Ext2Driver registers package ext2 as a mountable filesystem type under
// the name "ext2" (spec.md §4.5 register_fs). It is this kernel core's
// only filesystem driver.
type Ext2Driver struct{}

func (Ext2Driver) Name() string { return "ext2" }

func (Ext2Driver) Mount(dev blockio.Device, heap *kheap.Heap) (Node, func() *errs.Error, *errs.Error) {
	fs, err := ext2.Mount(dev, heap)
	if err != nil {
		return nil, nil, err
	}
	root, err := fs.GetInode(fs.Root())
	if err != nil {
		return nil, nil, err
	}
	return newExt2Node(fs, root), fs.Unmount, nil
}
