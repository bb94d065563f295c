package ext2

import "alos/errs"

// Inode offsets within its on-disk record (spec.md §3).
const (
	inoMode        = 0x00
	inoSize        = 0x04
	inoAtime       = 0x08
	inoCtime       = 0x0C
	inoMtime       = 0x10
	inoLinksCount  = 0x1A
	inoBlocksCount = 0x1C // 512-byte sector count (spec.md §3)
	inoBlock       = 0x28
	inoBlockCount  = 15
)

// Inode is the in-memory decoding of one ext2 on-disk inode record
// (spec.md §3). Num is the inode's 1-based number.
type Inode struct {
	Num   uint32
	raw   [256]byte // sized for the largest rev1 inode this driver supports
	size  int        // the actual on-disk record size (sb.inodeSize())
}

func (ino *Inode) Mode() uint16       { return u16At(ino.raw[:], inoMode) }
func (ino *Inode) SetMode(v uint16)   { putU16At(ino.raw[:], inoMode, v) }
func (ino *Inode) Size() uint32       { return u32At(ino.raw[:], inoSize) }
func (ino *Inode) setSize(v uint32)   { putU32At(ino.raw[:], inoSize, v) }
func (ino *Inode) LinksCount() uint16 { return u16At(ino.raw[:], inoLinksCount) }
func (ino *Inode) setLinksCount(v uint16) { putU16At(ino.raw[:], inoLinksCount, v) }
func (ino *Inode) blocks512() uint32   { return u32At(ino.raw[:], inoBlocksCount) }
func (ino *Inode) setBlocks512(v uint32) { putU32At(ino.raw[:], inoBlocksCount, v) }

// Type reports the VFS-facing type decoded from the mode's high nibble.
func (ino *Inode) Type() Type { return typeFromMode(ino.Mode()) }

func (ino *Inode) blockPtr(i int) uint32 {
	return u32At(ino.raw[:], inoBlock+4*i)
}

func (ino *Inode) setBlockPtr(i int, v uint32) {
	putU32At(ino.raw[:], inoBlock+4*i, v)
}

func (ino *Inode) touch(now uint32) {
	putU32At(ino.raw[:], inoMtime, now)
	putU32At(ino.raw[:], inoCtime, now)
	putU32At(ino.raw[:], inoAtime, now)
}

// inodeLocation computes (group, block, offset-within-block) for an
// inode number (spec.md §4.4 "locate (group, index) = divmod(inode_num
// − 1, inodes_per_group)").
func (fs *Filesystem) inodeLocation(num uint32) (group uint32, block uint32, offset int) {
	idx := num - 1
	group = idx / fs.inodesPerGroup
	inGroup := idx % fs.inodesPerGroup
	bytesIn := int(inGroup) * fs.inodeSize
	block = fs.groups[group].inodeTable() + uint32(bytesIn/fs.blockSize)
	offset = bytesIn % fs.blockSize
	return
}

func (fs *Filesystem) readInode(num uint32) (*Inode, *errs.Error) {
	_, block, offset := fs.inodeLocation(num)
	p, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return nil, err
	}
	defer fs.heap.Kfree(p)
	buf := fs.heap.Bytes(p)
	if err := fs.readBlock(block, buf); err != nil {
		return nil, err
	}
	ino := &Inode{Num: num, size: fs.inodeSize}
	copy(ino.raw[:fs.inodeSize], buf[offset:offset+fs.inodeSize])
	return ino, nil
}

func (fs *Filesystem) writeInode(ino *Inode) *errs.Error {
	_, block, offset := fs.inodeLocation(ino.Num)
	p, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return err
	}
	defer fs.heap.Kfree(p)
	buf := fs.heap.Bytes(p)
	if err := fs.readBlock(block, buf); err != nil {
		return err
	}
	copy(buf[offset:offset+fs.inodeSize], ino.raw[:fs.inodeSize])
	return fs.writeBlock(block, buf)
}

// blockForIndex resolves the logical block index idx of inode ino to a
// physical block number, walking single/double indirect levels as
// needed (spec.md §4.4 read path). alloc, when true, allocates any
// missing data block and allocates and zero-fills any missing indirect
// level as it descends (the write path's helper; a new data block is
// not zeroed), reporting how many new blocks it allocated
// (data block plus any indirect levels) so the caller can grow
// i_blocks by exactly that much; when false, a missing block or level
// yields physical block 0 (a sparse hole) without allocating or
// erroring.
func (fs *Filesystem) blockForIndex(ino *Inode, idx int, alloc bool) (uint32, int, *errs.Error) {
	p := ptrsPerBlock(fs.blockSize)

	if idx < directPointers {
		b := ino.blockPtr(idx)
		if b == 0 && alloc {
			nb, err := fs.allocBlock()
			if err != nil {
				return 0, 0, err
			}
			ino.setBlockPtr(idx, nb)
			return nb, 1, nil
		}
		return b, 0, nil
	}
	idx -= directPointers

	if idx < p {
		return fs.resolveIndirect(ino, singleIndirectIdx, idx, alloc)
	}
	idx -= p

	if idx < p*p {
		return fs.resolveDoubleIndirect(ino, idx, alloc)
	}

	// Triple indirect: read-aware only, allocation out of scope
	// (spec.md §9 "Triple-indirect allocation").
	if alloc {
		return 0, 0, errs.New("ext2.blockForIndex", errs.NoSpace)
	}
	idx -= p * p
	b, err := fs.resolveTripleIndirectRead(ino, idx)
	return b, 0, err
}

// resolveIndirect walks one indirect level: ino.i_block[slot] names a
// block of p physical-block-number entries; entry idx within it names
// the data block.
func (fs *Filesystem) resolveIndirect(ino *Inode, slot int, idx int, alloc bool) (uint32, int, *errs.Error) {
	added := 0
	indirectBlock := ino.blockPtr(slot)
	if indirectBlock == 0 {
		if !alloc {
			return 0, 0, nil
		}
		nb, err := fs.allocBlock()
		if err != nil {
			return 0, 0, err
		}
		if err := fs.zeroBlock(nb); err != nil {
			return 0, 0, err
		}
		ino.setBlockPtr(slot, nb)
		indirectBlock = nb
		added++
	}

	p, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return 0, 0, err
	}
	defer fs.heap.Kfree(p)
	buf := fs.heap.Bytes(p)
	if err := fs.readBlock(indirectBlock, buf); err != nil {
		return 0, 0, err
	}

	data := u32At(buf, idx*4)
	if data == 0 && alloc {
		nb, err := fs.allocBlock()
		if err != nil {
			return 0, 0, err
		}
		putU32At(buf, idx*4, nb)
		if err := fs.writeBlock(indirectBlock, buf); err != nil {
			return 0, 0, err
		}
		return nb, added + 1, nil
	}
	return data, added, nil
}

func (fs *Filesystem) resolveDoubleIndirect(ino *Inode, idx int, alloc bool) (uint32, int, *errs.Error) {
	added := 0
	ptrs := ptrsPerBlock(fs.blockSize)
	outer := idx / ptrs
	inner := idx % ptrs

	l2Block := ino.blockPtr(doubleIndirectIdx)
	if l2Block == 0 {
		if !alloc {
			return 0, 0, nil
		}
		nb, err := fs.allocBlock()
		if err != nil {
			return 0, 0, err
		}
		if err := fs.zeroBlock(nb); err != nil {
			return 0, 0, err
		}
		ino.setBlockPtr(doubleIndirectIdx, nb)
		l2Block = nb
		added++
	}

	bp, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return 0, 0, err
	}
	defer fs.heap.Kfree(bp)
	l2 := fs.heap.Bytes(bp)
	if err := fs.readBlock(l2Block, l2); err != nil {
		return 0, 0, err
	}

	l1Block := u32At(l2, outer*4)
	if l1Block == 0 {
		if !alloc {
			return 0, 0, nil
		}
		nb, err := fs.allocBlock()
		if err != nil {
			return 0, 0, err
		}
		if err := fs.zeroBlock(nb); err != nil {
			return 0, 0, err
		}
		putU32At(l2, outer*4, nb)
		if err := fs.writeBlock(l2Block, l2); err != nil {
			return 0, 0, err
		}
		l1Block = nb
		added++
	}

	lp, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return 0, 0, err
	}
	defer fs.heap.Kfree(lp)
	l1 := fs.heap.Bytes(lp)
	if err := fs.readBlock(l1Block, l1); err != nil {
		return 0, 0, err
	}
	data := u32At(l1, inner*4)
	if data == 0 && alloc {
		nb, err := fs.allocBlock()
		if err != nil {
			return 0, 0, err
		}
		putU32At(l1, inner*4, nb)
		if err := fs.writeBlock(l1Block, l1); err != nil {
			return 0, 0, err
		}
		return nb, added + 1, nil
	}
	return data, added, nil
}

// resolveTripleIndirectRead reads (but never allocates into) the
// triple-indirect tree (spec.md §9).
func (fs *Filesystem) resolveTripleIndirectRead(ino *Inode, idx int) (uint32, *errs.Error) {
	ptrs := ptrsPerBlock(fs.blockSize)
	l3Block := ino.blockPtr(tripleIndirectIdx)
	if l3Block == 0 {
		return 0, nil
	}
	outer := idx / (ptrs * ptrs)
	rem := idx % (ptrs * ptrs)
	mid := rem / ptrs
	inner := rem % ptrs

	p, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return 0, err
	}
	defer fs.heap.Kfree(p)
	buf := fs.heap.Bytes(p)

	if err := fs.readBlock(l3Block, buf); err != nil {
		return 0, err
	}
	l2Block := u32At(buf, outer*4)
	if l2Block == 0 {
		return 0, nil
	}
	if err := fs.readBlock(l2Block, buf); err != nil {
		return 0, err
	}
	l1Block := u32At(buf, mid*4)
	if l1Block == 0 {
		return 0, nil
	}
	if err := fs.readBlock(l1Block, buf); err != nil {
		return 0, err
	}
	return u32At(buf, inner*4), nil
}
