package vfs

import (
	"sync"

	"alos/blockio"
	"alos/errs"
	"alos/ext2"
	"alos/kheap"
	"alos/klog"
)

var log = klog.For("vfs")

// Vfs is the kernel's single pathname namespace: a registry of available
// filesystem drivers and a fixed-size mount table splicing their roots
// into it (spec.md §4.5). The zero value is not ready for use; call Init.
type Vfs struct {
	mu      sync.Mutex
	drivers map[string]Driver
	mounts  mountTable
}

// Init prepares an empty Vfs with no drivers registered and no mounts.
func (v *Vfs) Init() {
	v.drivers = make(map[string]Driver)
}

// RegisterFS adds a filesystem driver under its own name, for later use
// by Mount (spec.md §4.5 register_fs).
func (v *Vfs) RegisterFS(d Driver) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drivers[d.Name()] = d
}

// Mount attaches the filesystem named fsName, backed by dev, at path. The
// first free mount-table slot is used; mounting at "/" makes that root
// the namespace's global root too (spec.md §4.5).
func (v *Vfs) Mount(path string, fsName string, dev blockio.Device, heap *kheap.Heap) *errs.Error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mounts.findExact(path) >= 0 {
		return errs.New("vfs.Mount", errs.AlreadyMounted)
	}
	slot := v.mounts.firstFreeSlot()
	if slot < 0 {
		return errs.New("vfs.Mount", errs.NoMountSlot)
	}
	driver, ok := v.drivers[fsName]
	if !ok {
		return errs.New("vfs.Mount", errs.NotFound)
	}

	root, unmount, err := driver.Mount(dev, heap)
	if err != nil {
		return err
	}
	v.mounts.slots[slot] = mountSlot{inUse: true, path: path, root: root, unmount: unmount}
	log.Infof("Mount", "fs=%s path=%s slot=%d", fsName, path, slot)
	return nil
}

// Unmount invokes the driver's unmount hook (if any) then releases the
// slot (spec.md §4.5).
func (v *Vfs) Unmount(path string) *errs.Error {
	v.mu.Lock()
	defer v.mu.Unlock()

	slot := v.mounts.findExact(path)
	if slot < 0 {
		return errs.New("vfs.Unmount", errs.NotFound)
	}
	if v.mounts.slots[slot].unmount != nil {
		if err := v.mounts.slots[slot].unmount(); err != nil {
			return err
		}
	}
	v.mounts.slots[slot] = mountSlot{}
	log.Infof("Unmount", "path=%s slot=%d", path, slot)
	return nil
}

// ResolvePath accepts only absolute paths (spec.md §4.5). "/" resolves to
// the root of whichever filesystem is mounted there. Otherwise the path
// components below the longest-matching mount prefix are walked one at a
// time through Finddir; a missing component aborts resolution.
func (v *Vfs) ResolvePath(path string) (Node, *errs.Error) {
	if len(path) == 0 || path[0] != '/' {
		return nil, errs.New("vfs.ResolvePath", errs.InvalidArgument)
	}

	v.mu.Lock()
	slot := v.mounts.findLongestPrefix(path)
	v.mu.Unlock()
	if slot < 0 {
		return nil, errs.New("vfs.ResolvePath", errs.NotFound)
	}

	node := v.mounts.slots[slot].root
	mountPath := v.mounts.slots[slot].path
	remainder := path[len(mountPath):]

	for _, comp := range splitComponents(remainder) {
		child, ok, err := node.Finddir(comp)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.New("vfs.ResolvePath", errs.NotFound)
		}
		node = child
	}
	return node, nil
}

// resolveParentDir resolves path's parent directory component and
// verifies it is in fact a directory, the shared first step of
// Create/Mkdir/Unlink/Rmdir (spec.md §4.5).
func (v *Vfs) resolveParentDir(path string) (Node, string, *errs.Error) {
	parent, name := splitParent(path)
	dir, err := v.ResolvePath(parent)
	if err != nil {
		return nil, "", err
	}
	if dir.Type() != ext2.TypeDirectory {
		return nil, "", errs.New("vfs.resolveParentDir", errs.NotDirectory)
	}
	return dir, name, nil
}

// Create splits path at its last '/', resolves the parent, and dispatches
// to the parent node's Create callback (spec.md §4.5).
func (v *Vfs) Create(path string, t NodeType, now uint32) (Node, *errs.Error) {
	dir, name, err := v.resolveParentDir(path)
	if err != nil {
		return nil, err
	}
	return dir.Create(name, t, now)
}

// Mkdir splits path at its last '/', resolves the parent, and dispatches
// to the parent node's Mkdir callback.
func (v *Vfs) Mkdir(path string, now uint32) (Node, *errs.Error) {
	dir, name, err := v.resolveParentDir(path)
	if err != nil {
		return nil, err
	}
	return dir.Mkdir(name, now)
}

// Unlink splits path at its last '/', resolves the parent, and dispatches
// to the parent node's Unlink callback.
func (v *Vfs) Unlink(path string) *errs.Error {
	dir, name, err := v.resolveParentDir(path)
	if err != nil {
		return err
	}
	return dir.Unlink(name)
}

// Rmdir is identical to Unlink (spec.md §4.5 "rmdir ≡ unlink").
func (v *Vfs) Rmdir(path string) *errs.Error {
	return v.Unlink(path)
}

// Open, Close, Read, Write, Readdir, and Finddir resolve path and delegate
// to the node's own method, producing NotSupported when the underlying
// driver has no implementation (spec.md §4.5). Callers already holding a
// Node call its methods directly.

func (v *Vfs) Open(path string) (Node, *errs.Error) {
	node, err := v.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	if err := node.Open(); err != nil {
		return nil, err
	}
	return node, nil
}

// Close resolves path and closes it, producing NotSupported when the
// underlying driver has no Close implementation.
func (v *Vfs) Close(path string) *errs.Error {
	node, err := v.ResolvePath(path)
	if err != nil {
		return err
	}
	return node.Close()
}

func (v *Vfs) Read(path string, offset int, buf []byte) (int, *errs.Error) {
	node, err := v.ResolvePath(path)
	if err != nil {
		return 0, err
	}
	return node.Read(offset, buf)
}

func (v *Vfs) Write(path string, offset int, buf []byte, now uint32) (int, *errs.Error) {
	node, err := v.ResolvePath(path)
	if err != nil {
		return 0, err
	}
	return node.Write(offset, buf, now)
}

func (v *Vfs) Readdir(path string, index int) (DirEntry, bool, *errs.Error) {
	node, err := v.ResolvePath(path)
	if err != nil {
		return DirEntry{}, false, err
	}
	return node.Readdir(index)
}

// Finddir resolves path and looks up name among its entries, without
// walking any further components of name itself.
func (v *Vfs) Finddir(path string, name string) (Node, bool, *errs.Error) {
	node, err := v.ResolvePath(path)
	if err != nil {
		return nil, false, err
	}
	return node.Finddir(name)
}
