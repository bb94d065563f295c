package ext2

import (
	"sync"

	"alos/blockio"
	"alos/errs"
	"alos/kheap"
	"alos/klog"
)

var log = klog.For("ext2")

// Filesystem is a mounted ext2 volume: the decoded superblock, the
// cached group-descriptor table, and the derived constants every
// operation needs (spec.md §3 Ext2Filesystem). The block-sized scratch
// buffers used for bitmap, inode, indirect-block and data I/O and for
// loading or writing the group-descriptor table are allocated from
// heap. The cached group-descriptor table itself, the whole-directory
// buffers of the dirent scans, and the new-block buffers built by
// Mkdir and addEntryLocked are ordinary Go slices, not heap allocations.
type Filesystem struct {
	mu   sync.Mutex
	dev  blockio.Device
	heap *kheap.Heap

	sb     *superblock
	groups []groupDesc

	blockSize       int
	sectorsPerBlock int
	inodesPerGroup  uint32
	blocksPerGroup  uint32
	numGroups       uint32
	inodeSize       int
	firstDataBlock  uint32
	gdtStart        uint32

	mounted bool
}

// Mount reads and validates the superblock, derives the constants above,
// loads the whole group-descriptor table, and flips the on-disk state to
// ERROR_FS (spec.md §4.4) so an unclean shutdown is detectable on the
// next mount.
func Mount(dev blockio.Device, heap *kheap.Heap) (*Filesystem, *errs.Error) {
	sb, err := readSuperblock(dev)
	if err != nil {
		return nil, err
	}

	fs := &Filesystem{
		dev:             dev,
		heap:            heap,
		sb:              sb,
		blockSize:       sb.blockSize(),
		inodesPerGroup:  sb.inodesPerGroup(),
		blocksPerGroup:  sb.blocksPerGroup(),
		inodeSize:       sb.inodeSize(),
		firstDataBlock:  sb.firstDataBlock(),
		gdtStart:        groupDescTableStart(sb.blockSize()),
	}
	fs.sectorsPerBlock = fs.blockSize / blockio.SectorSize
	fs.numGroups = (sb.blocksCount() + fs.blocksPerGroup - 1) / fs.blocksPerGroup

	if err := fs.loadGroupDescTable(); err != nil {
		return nil, err
	}

	sb.setState(stateError)
	if err := writeSuperblock(dev, sb); err != nil {
		return nil, err
	}

	fs.mounted = true
	log.Infof("Mount", "blocks=%d inodes=%d groups=%d blockSize=%d", sb.blocksCount(), sb.inodesCount(), fs.numGroups, fs.blockSize)
	return fs, nil
}

// Unmount flips the superblock state back to VALID_FS and writes it.
func (fs *Filesystem) Unmount() *errs.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil
	}
	fs.sb.setState(stateValid)
	if err := writeSuperblock(fs.dev, fs.sb); err != nil {
		return err
	}
	fs.mounted = false
	log.Infof("Unmount", "volume unmounted cleanly")
	return nil
}

func (fs *Filesystem) loadGroupDescTable() *errs.Error {
	tableBytes := int(fs.numGroups) * groupDescSize
	blocks := (tableBytes + fs.blockSize - 1) / fs.blockSize
	p, aerr := fs.heap.Kmalloc(blocks * fs.blockSize)
	if aerr != nil {
		return aerr
	}
	defer fs.heap.Kfree(p)
	buf := fs.heap.Bytes(p)

	if err := fs.readBlocks(fs.gdtStart, blocks, buf); err != nil {
		return err
	}
	fs.groups = make([]groupDesc, fs.numGroups)
	for i := uint32(0); i < fs.numGroups; i++ {
		copy(fs.groups[i].raw[:], buf[int(i)*groupDescSize:int(i)*groupDescSize+groupDescSize])
	}
	return nil
}

func (fs *Filesystem) writeGroupDesc(group uint32) *errs.Error {
	tableBytes := int(fs.numGroups) * groupDescSize
	blocks := (tableBytes + fs.blockSize - 1) / fs.blockSize
	p, aerr := fs.heap.Kmalloc(blocks * fs.blockSize)
	if aerr != nil {
		return aerr
	}
	defer fs.heap.Kfree(p)
	buf := fs.heap.Bytes(p)
	for i := uint32(0); i < fs.numGroups; i++ {
		copy(buf[int(i)*groupDescSize:int(i)*groupDescSize+groupDescSize], fs.groups[i].raw[:])
	}
	return fs.writeBlocks(fs.gdtStart, blocks, buf)
}

// readBlocks reads count filesystem blocks starting at block into buf,
// translating to the fixed 512-byte sector granularity of the block
// device contract (spec.md §6).
func (fs *Filesystem) readBlocks(block uint32, count int, buf []byte) *errs.Error {
	lba := int(block) * fs.sectorsPerBlock
	if err := fs.dev.ReadSectors(lba, count*fs.sectorsPerBlock, buf); err != nil {
		return errs.Wrap("ext2.readBlocks", errs.IoError, err)
	}
	return nil
}

func (fs *Filesystem) writeBlocks(block uint32, count int, buf []byte) *errs.Error {
	lba := int(block) * fs.sectorsPerBlock
	if err := fs.dev.WriteSectors(lba, count*fs.sectorsPerBlock, buf); err != nil {
		return errs.Wrap("ext2.writeBlocks", errs.IoError, err)
	}
	return nil
}

func (fs *Filesystem) readBlock(block uint32, buf []byte) *errs.Error {
	return fs.readBlocks(block, 1, buf)
}

func (fs *Filesystem) writeBlock(block uint32, buf []byte) *errs.Error {
	return fs.writeBlocks(block, 1, buf)
}

func (fs *Filesystem) zeroBlock(block uint32) *errs.Error {
	p, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return err
	}
	defer fs.heap.Kfree(p)
	buf := fs.heap.Bytes(p)
	for i := range buf {
		buf[i] = 0
	}
	return fs.writeBlock(block, buf)
}

// Root returns the filesystem's root directory inode number (always 2).
func (fs *Filesystem) Root() uint32 { return rootInode }

// GetInode reads inode num into an in-memory Inode. Exposed for the VFS
// node constructor.
func (fs *Filesystem) GetInode(num uint32) (*Inode, *errs.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.readInode(num)
}

// Create allocates a new regular-file (or device/fifo/symlink, per t)
// inode, writes it, and materializes a directory entry for name in
// dirIno. now is a caller-supplied Unix timestamp, keeping the package
// free of a wall-clock dependency (spec.md §4.4 create/mkdir).
func (fs *Filesystem) Create(dirIno *Inode, name string, t Type, now uint32) (*Inode, *errs.Error) {
	if dirIno.Type() != TypeDirectory {
		return nil, errs.New("ext2.Create", errs.NotDirectory)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok, err := fs.finddirLocked(dirIno, name); err != nil {
		return nil, err
	} else if ok {
		return nil, errs.New("ext2.Create", errs.InvalidArgument)
	}

	inum, err := fs.allocInode(t == TypeDirectory)
	if err != nil {
		return nil, err
	}
	ino := &Inode{Num: inum, size: fs.inodeSize}
	ino.SetMode(modeForType(t, 0644))
	ino.setLinksCount(1)
	ino.touch(now)
	if err := fs.writeInode(ino); err != nil {
		return nil, err
	}
	if err := fs.addEntryLocked(dirIno, name, inum, t, now); err != nil {
		return nil, err
	}
	return ino, nil
}

// Mkdir creates a new directory named name in dirIno, populating its
// first block with "." and ".." entries and incrementing the parent's
// link count for ".." (spec.md §5.4).
func (fs *Filesystem) Mkdir(dirIno *Inode, name string, now uint32) (*Inode, *errs.Error) {
	if dirIno.Type() != TypeDirectory {
		return nil, errs.New("ext2.Mkdir", errs.NotDirectory)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok, err := fs.finddirLocked(dirIno, name); err != nil {
		return nil, err
	} else if ok {
		return nil, errs.New("ext2.Mkdir", errs.InvalidArgument)
	}

	inum, err := fs.allocInode(true)
	if err != nil {
		return nil, err
	}
	ino := &Inode{Num: inum, size: fs.inodeSize}
	ino.SetMode(modeForType(TypeDirectory, 0755))
	ino.setLinksCount(2) // "." plus the parent's entry for this directory
	ino.touch(now)
	if err := fs.writeInode(ino); err != nil {
		return nil, err
	}

	dotBlock := make([]byte, fs.blockSize)
	selfRec := idealRecLen(1)
	putDirent(dotBlock, inum, selfRec, ".", ftDir)
	putDirent(dotBlock[selfRec:], dirIno.Num, uint16(fs.blockSize)-selfRec, "..", ftDir)
	if _, err := fs.writeDataLocked(ino, 0, dotBlock, now); err != nil {
		return nil, err
	}

	dirIno.setLinksCount(dirIno.LinksCount() + 1)
	if err := fs.writeInode(dirIno); err != nil {
		return nil, err
	}
	if err := fs.addEntryLocked(dirIno, name, inum, TypeDirectory, now); err != nil {
		return nil, err
	}
	return ino, nil
}

// Unlink removes name's directory entry from dirIno. It does not change
// the target inode's link count and does not free the inode or its
// blocks; package vfs, whose Unlink dispatches here, does not either.
func (fs *Filesystem) Unlink(dirIno *Inode, name string) *errs.Error {
	if dirIno.Type() != TypeDirectory {
		return errs.New("ext2.Unlink", errs.NotDirectory)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.removeEntryLocked(dirIno, name)
}
