package ext2

import (
	"alos/errs"
	"alos/util"
)

// ReadData implements read_inode_data (spec.md §4.4). It acquires the
// filesystem lock; see readDataLocked for the algorithm.
func (fs *Filesystem) ReadData(ino *Inode, offset int, buf []byte) (int, *errs.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.readDataLocked(ino, offset, buf)
}

// readDataLocked clips to the inode's size, then walks the logical
// block range the request spans, copying whole or partial blocks into
// buf. A physical block number of 0 (a sparse hole) yields zero bytes
// without issuing any I/O (spec.md §9). Callers must already hold
// fs.mu.
func (fs *Filesystem) readDataLocked(ino *Inode, offset int, buf []byte) (int, *errs.Error) {
	size := int(ino.Size())
	if offset >= size {
		return 0, nil
	}
	want := len(buf)
	if offset+want > size {
		want = size - offset
	}

	p, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return 0, err
	}
	defer fs.heap.Kfree(p)
	scratch := fs.heap.Bytes(p)

	read := 0
	for read < want {
		logicalOff := offset + read
		blockIdx := logicalOff / fs.blockSize
		inBlock := logicalOff % fs.blockSize
		n := util.Min(fs.blockSize-inBlock, want-read)

		phys, _, err := fs.blockForIndex(ino, blockIdx, false)
		if err != nil {
			return read, err
		}
		if phys == 0 {
			for i := 0; i < n; i++ {
				buf[read+i] = 0
			}
		} else {
			if err := fs.readBlock(phys, scratch); err != nil {
				return read, err
			}
			copy(buf[read:read+n], scratch[inBlock:inBlock+n])
		}
		read += n
	}
	return read, nil
}

// WriteData implements the data write path (spec.md §4.4). It acquires
// the filesystem lock; see writeDataLocked for the algorithm.
func (fs *Filesystem) WriteData(ino *Inode, offset int, buf []byte, now uint32) (int, *errs.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeDataLocked(ino, offset, buf, now)
}

// writeDataLocked looks up or allocates the physical block for each
// logical block in the span (zero-filling newly allocated indirect
// levels as it descends), read-modify-writes partial blocks, and
// updates size/blocks/timestamps before persisting the inode.
// blocksAdded accumulates every newly allocated block — data blocks and
// any indirect levels — so i_blocks grows by exactly the space this
// write consumed (spec.md §8 scenario 4: "free-block count decreased by
// (data blocks + 1 indirect)"). Callers must already hold fs.mu.
func (fs *Filesystem) writeDataLocked(ino *Inode, offset int, buf []byte, now uint32) (int, *errs.Error) {
	p, err := fs.heap.Kmalloc(fs.blockSize)
	if err != nil {
		return 0, err
	}
	defer fs.heap.Kfree(p)
	scratch := fs.heap.Bytes(p)

	written := 0
	blocksAdded := 0
	for written < len(buf) {
		logicalOff := offset + written
		blockIdx := logicalOff / fs.blockSize
		inBlock := logicalOff % fs.blockSize
		n := util.Min(fs.blockSize-inBlock, len(buf)-written)

		phys, added, err := fs.blockForIndex(ino, blockIdx, true)
		if err != nil {
			_ = fs.writeInode(ino)
			return written, err
		}
		blocksAdded += added

		if n < fs.blockSize {
			if err := fs.readBlock(phys, scratch); err != nil {
				return written, err
			}
		}
		copy(scratch[inBlock:inBlock+n], buf[written:written+n])
		if err := fs.writeBlock(phys, scratch); err != nil {
			return written, err
		}
		written += n
	}

	if offset+written > int(ino.Size()) {
		ino.setSize(uint32(offset + written))
	}
	sectorsPerBlock := uint32(fs.blockSize / 512)
	ino.setBlocks512(ino.blocks512() + uint32(blocksAdded)*sectorsPerBlock)
	ino.touch(now)
	if err := fs.writeInode(ino); err != nil {
		return written, err
	}
	return written, nil
}
