package ext2

import (
	"testing"

	"alos/blockio"
	"alos/kheap"
)

const fixtureNow = uint32(1700000000)

// newFixture builds the literal volume spec.md §8's end-to-end scenarios
// assume: an 8-MiB ext2 volume with 1-KiB blocks, 1024 inodes, 8192
// blocks, inode size 128, first-data-block 1.
func newFixture(t *testing.T) *Filesystem {
	t.Helper()
	const blockSize = 1024
	const totalBlocks = 8192
	dev := blockio.NewMemDevice(totalBlocks * (blockSize / blockio.SectorSize))

	heap := &kheap.Heap{}
	region := make([]byte, 256*1024)
	if err := heap.Init(region, 0); err != nil {
		t.Fatalf("heap.Init: %v", err)
	}

	fs, err := Format(dev, heap, FormatOptions{
		BlockSize:   blockSize,
		TotalBlocks: totalBlocks,
		InodesCount: 1024,
		VolumeName:  "alos-test",
	}, fixtureNow)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}

func TestFormatProducesExpectedGeometry(t *testing.T) {
	fs := newFixture(t)
	if fs.blockSize != 1024 {
		t.Fatalf("blockSize = %d, want 1024", fs.blockSize)
	}
	if fs.inodeSize != 128 {
		t.Fatalf("inodeSize = %d, want 128", fs.inodeSize)
	}
	if fs.firstDataBlock != 1 {
		t.Fatalf("firstDataBlock = %d, want 1", fs.firstDataBlock)
	}
	if fs.sb.blocksCount() != 8192 {
		t.Fatalf("blocksCount = %d, want 8192", fs.sb.blocksCount())
	}
	if fs.sb.inodesCount() != 1024 {
		t.Fatalf("inodesCount = %d, want 1024", fs.sb.inodesCount())
	}
}

func TestFormatSuperblockFreeCountsMatchGroupSum(t *testing.T) {
	fs := newFixture(t)
	var blockSum, inodeSum uint32
	for _, g := range fs.groups {
		blockSum += uint32(g.freeBlocksCount())
		inodeSum += uint32(g.freeInodesCount())
	}
	if fs.sb.freeBlocksCount() != blockSum {
		t.Fatalf("sb.freeBlocksCount = %d, group sum = %d", fs.sb.freeBlocksCount(), blockSum)
	}
	if fs.sb.freeInodesCount() != inodeSum {
		t.Fatalf("sb.freeInodesCount = %d, group sum = %d", fs.sb.freeInodesCount(), inodeSum)
	}
}

func TestFormatRootHasDotAndDotDot(t *testing.T) {
	fs := newFixture(t)
	root, err := fs.GetInode(fs.Root())
	if err != nil {
		t.Fatalf("GetInode(root): %v", err)
	}
	if root.Type() != TypeDirectory {
		t.Fatalf("root type = %v, want TypeDirectory", root.Type())
	}

	e0, ok, err := fs.Readdir(root, 0)
	if err != nil || !ok {
		t.Fatalf("Readdir(0) = %+v, %v, %v", e0, ok, err)
	}
	if e0.Name != "." || e0.Inode != rootInode {
		t.Fatalf("entry 0 = %+v, want name=. inode=%d", e0, rootInode)
	}

	e1, ok, err := fs.Readdir(root, 1)
	if err != nil || !ok {
		t.Fatalf("Readdir(1) = %+v, %v, %v", e1, ok, err)
	}
	if e1.Name != ".." || e1.Inode != rootInode {
		t.Fatalf("entry 1 = %+v, want name=.. inode=%d", e1, rootInode)
	}
}

func TestMountUnmountRemountPreservesContents(t *testing.T) {
	fs := newFixture(t)
	root, err := fs.GetInode(fs.Root())
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if _, err := fs.Create(root, "hello.txt", TypeFile, fixtureNow); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dev := fs.dev
	heap := fs.heap
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	remounted, err := Mount(dev, heap)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	root2, err := remounted.GetInode(remounted.Root())
	if err != nil {
		t.Fatalf("GetInode after remount: %v", err)
	}
	entry, ok, err := remounted.Finddir(root2, "hello.txt")
	if err != nil || !ok {
		t.Fatalf("Finddir(hello.txt) after remount = %+v, %v, %v", entry, ok, err)
	}
}
