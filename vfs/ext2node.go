package vfs

import (
	"alos/errs"
	"alos/ext2"
)

// ext2Node adapts one mounted ext2.Filesystem inode to the Node
// interface. Every ext2 operation the driver supports is implemented
// directly; Open/Close have no ext2-side state so they succeed trivially
// rather than inheriting Unsupported's stub.
type ext2Node struct {
	Unsupported
	fs  *ext2.Filesystem
	ino *ext2.Inode
}

func newExt2Node(fs *ext2.Filesystem, ino *ext2.Inode) *ext2Node {
	return &ext2Node{fs: fs, ino: ino}
}

func (n *ext2Node) Type() NodeType { return n.ino.Type() }

func (n *ext2Node) Open() *errs.Error  { return nil }
func (n *ext2Node) Close() *errs.Error { return nil }

func (n *ext2Node) Read(offset int, buf []byte) (int, *errs.Error) {
	return n.fs.ReadData(n.ino, offset, buf)
}

func (n *ext2Node) Write(offset int, buf []byte, now uint32) (int, *errs.Error) {
	return n.fs.WriteData(n.ino, offset, buf, now)
}

func (n *ext2Node) Readdir(index int) (DirEntry, bool, *errs.Error) {
	return n.fs.Readdir(n.ino, index)
}

func (n *ext2Node) Finddir(name string) (Node, bool, *errs.Error) {
	entry, ok, err := n.fs.Finddir(n.ino, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	childInode, err := n.fs.GetInode(entry.Inode)
	if err != nil {
		return nil, false, err
	}
	return newExt2Node(n.fs, childInode), true, nil
}

func (n *ext2Node) Create(name string, t NodeType, now uint32) (Node, *errs.Error) {
	ino, err := n.fs.Create(n.ino, name, t, now)
	if err != nil {
		return nil, err
	}
	return newExt2Node(n.fs, ino), nil
}

func (n *ext2Node) Mkdir(name string, now uint32) (Node, *errs.Error) {
	ino, err := n.fs.Mkdir(n.ino, name, now)
	if err != nil {
		return nil, err
	}
	return newExt2Node(n.fs, ino), nil
}

func (n *ext2Node) Unlink(name string) *errs.Error {
	return n.fs.Unlink(n.ino, name)
}
