// Package vfs splices one or more mounted filesystem drivers into a
// single pathname namespace (spec.md §4.5), dispatching each operation to
// the resolved node's capability methods. It sits above package ext2 (the
// only driver this kernel core ships) and below the syscall/shell layer.
package vfs

import (
	"alos/errs"
	"alos/ext2"
)

// NodeType is the VFS-facing node type; ext2 already defines the same
// enum for its own inode-mode decoding; reused here rather than declared
// twice; see ext2.Type's doc comment.
type NodeType = ext2.Type

// DirEntry is one entry returned by Node.Readdir; reused from ext2 rather
// than re-declared, since ext2 is the only driver and this shape is
// already the one it produces.
type DirEntry = ext2.DirEntry

// Node is the polymorphic VFS node: a capability trait over a record of
// function pointers in the source (spec.md §9's "polymorphic VFS node"
// design note). Every method is optional — a type that doesn't support an
// operation embeds Unsupported and inherits a NotSupported stub for it,
// rather than every concrete node type having to implement every method.
type Node interface {
	Type() NodeType
	Open() *errs.Error
	Close() *errs.Error
	Read(offset int, buf []byte) (int, *errs.Error)
	Write(offset int, buf []byte, now uint32) (int, *errs.Error)
	Readdir(index int) (DirEntry, bool, *errs.Error)
	Finddir(name string) (Node, bool, *errs.Error)
	Create(name string, t NodeType, now uint32) (Node, *errs.Error)
	Mkdir(name string, now uint32) (Node, *errs.Error)
	Unlink(name string) *errs.Error
}

// Unsupported is embedded by concrete node types to supply NotSupported
// stubs for every capability a given filesystem driver doesn't implement,
// so e.g. a read-only or leaf-file node need only override Read.
type Unsupported struct{}

func (Unsupported) Open() *errs.Error  { return errs.New("vfs.Open", errs.NotSupported) }
func (Unsupported) Close() *errs.Error { return errs.New("vfs.Close", errs.NotSupported) }
func (Unsupported) Read(offset int, buf []byte) (int, *errs.Error) {
	return 0, errs.New("vfs.Read", errs.NotSupported)
}
func (Unsupported) Write(offset int, buf []byte, now uint32) (int, *errs.Error) {
	return 0, errs.New("vfs.Write", errs.NotSupported)
}
func (Unsupported) Readdir(index int) (DirEntry, bool, *errs.Error) {
	return DirEntry{}, false, errs.New("vfs.Readdir", errs.NotSupported)
}
func (Unsupported) Finddir(name string) (Node, bool, *errs.Error) {
	return nil, false, errs.New("vfs.Finddir", errs.NotSupported)
}
func (Unsupported) Create(name string, t NodeType, now uint32) (Node, *errs.Error) {
	return nil, errs.New("vfs.Create", errs.NotSupported)
}
func (Unsupported) Mkdir(name string, now uint32) (Node, *errs.Error) {
	return nil, errs.New("vfs.Mkdir", errs.NotSupported)
}
func (Unsupported) Unlink(name string) *errs.Error {
	return errs.New("vfs.Unlink", errs.NotSupported)
}
