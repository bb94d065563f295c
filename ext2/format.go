package ext2

import (
	"alos/blockio"
	"alos/errs"
	"alos/kheap"
)

// FormatOptions describes a fresh ext2 volume to build (spec.md §8's
// end-to-end scenarios assume one: "a freshly-formatted 8-MiB ext2
// volume with 1-KiB blocks, 1024 inodes, 8192 blocks, inode size 128,
// first-data-block 1"). Format is this driver's library equivalent of
// the teacher's host-side mkfs tool, adapted to build a volume directly
// on a blockio.Device instead of a file on the host filesystem.
type FormatOptions struct {
	BlockSize   int    // 1024, 2048, or 4096
	TotalBlocks uint32 // volume size in blocks
	InodesCount uint32 // total inode slots across the volume
	VolumeName  string
}

// Format writes a minimal valid ext2 superblock, a group-descriptor
// table covering every group the volume size needs, zeroed bitmaps (with metadata blocks pre-marked
// used), an empty inode table, and a root directory containing "."
// and "..", then mounts and immediately returns the live Filesystem —
// mirroring Mount's own state-flipping behavior so a formatted volume
// is ready to use without a separate mount call.
func Format(dev blockio.Device, heap *kheap.Heap, opts FormatOptions, now uint32) (*Filesystem, *errs.Error) {
	blockSize := opts.BlockSize
	if blockSize%512 != 0 {
		return nil, errs.New("ext2.Format", errs.InvalidArgument)
	}
	blocksPerGroup := uint32(8 * blockSize)
	numGroups := (opts.TotalBlocks + blocksPerGroup - 1) / blocksPerGroup
	inodesPerGroup := (opts.InodesCount + numGroups - 1) / numGroups
	inodeSize := 128
	firstDataBlock := uint32(1)
	if blockSize > 1024 {
		firstDataBlock = 0
	}
	gdtStart := groupDescTableStart(blockSize)
	gdtBlocks := uint32((int(numGroups)*groupDescSize + blockSize - 1) / blockSize)

	sb := &superblock{}
	putU32At(sb.raw[:], sbInodesCount, opts.InodesCount)
	putU32At(sb.raw[:], sbBlocksCount, opts.TotalBlocks)
	putU32At(sb.raw[:], sbFirstDataBlock, firstDataBlock)
	logBlockSize := uint32(0)
	for (1024 << logBlockSize) < blockSize {
		logBlockSize++
	}
	putU32At(sb.raw[:], sbLogBlockSize, logBlockSize)
	putU32At(sb.raw[:], sbBlocksPerGroup, blocksPerGroup)
	putU32At(sb.raw[:], sbInodesPerGroup, inodesPerGroup)
	putU16At(sb.raw[:], sbMagic, Magic)
	putU16At(sb.raw[:], sbState, stateValid)
	putU32At(sb.raw[:], sbRevLevel, 0)
	copy(sb.volumeNameBytes(), []byte(opts.VolumeName))

	groups := make([]groupDesc, numGroups)
	inodeTableBlocksPerGroup := uint32((int(inodesPerGroup)*inodeSize + blockSize - 1) / blockSize)

	for g := uint32(0); g < numGroups; g++ {
		groupBase := firstDataBlock + g*blocksPerGroup
		metaStart := groupBase
		if g == 0 {
			metaStart = groupBase + 1 + gdtBlocks // skip the superblock + gdt blocks
		}
		blockBitmap := metaStart
		inodeBitmap := metaStart + 1
		inodeTable := metaStart + 2
		dataStart := inodeTable + inodeTableBlocksPerGroup

		groups[g].raw = [groupDescSize]byte{}
		putU32At(groups[g].raw[:], 0x00, blockBitmap)
		putU32At(groups[g].raw[:], 0x04, inodeBitmap)
		putU32At(groups[g].raw[:], 0x08, inodeTable)

		capacity := opts.TotalBlocks - groupBase
		if capacity > blocksPerGroup {
			capacity = blocksPerGroup
		}
		usedMeta := dataStart - groupBase
		freeBlocks := uint16(capacity - usedMeta)
		groups[g].setFreeBlocksCount(freeBlocks)
		groups[g].setFreeInodesCount(uint16(inodesPerGroup))

		if err := formatWriteBitmap(dev, blockSize, blockBitmap, int(usedMeta), int(capacity)); err != nil {
			return nil, err
		}
		reservedInodes := 0
		if g == 0 {
			reservedInodes = firstNonReservedInode - 1
		}
		if err := formatWriteBitmap(dev, blockSize, inodeBitmap, reservedInodes, int(inodesPerGroup)); err != nil {
			return nil, err
		}
		if err := formatZeroBlocks(dev, blockSize, inodeTable, int(inodeTableBlocksPerGroup)); err != nil {
			return nil, err
		}
		if g == 0 {
			groups[g].setUsedDirsCount(1)
			groups[g].setFreeInodesCount(groups[g].freeInodesCount() - uint16(reservedInodes))
		}
	}

	sb.setFreeBlocksCount(sumFreeBlocks(groups))
	sb.setFreeInodesCount(sumFreeInodes(groups))

	if err := writeSuperblock(dev, sb); err != nil {
		return nil, err
	}
	if err := formatWriteGroupTable(dev, blockSize, gdtStart, groups); err != nil {
		return nil, err
	}

	fs := &Filesystem{
		dev:             dev,
		heap:            heap,
		sb:              sb,
		groups:          groups,
		blockSize:       blockSize,
		sectorsPerBlock: blockSize / blockio.SectorSize,
		inodesPerGroup:  inodesPerGroup,
		blocksPerGroup:  blocksPerGroup,
		numGroups:       numGroups,
		inodeSize:       inodeSize,
		firstDataBlock:  firstDataBlock,
		gdtStart:        gdtStart,
		mounted:         true,
	}

	root := &Inode{Num: rootInode, size: inodeSize}
	root.SetMode(modeForType(TypeDirectory, 0755))
	root.setLinksCount(2)
	root.touch(now)
	if err := fs.writeInode(root); err != nil {
		return nil, err
	}
	rootBlock := make([]byte, blockSize)
	selfRec := idealRecLen(1)
	putDirent(rootBlock, rootInode, selfRec, ".", ftDir)
	putDirent(rootBlock[selfRec:], rootInode, uint16(blockSize)-selfRec, "..", ftDir)
	if _, err := fs.writeDataLocked(root, 0, rootBlock, now); err != nil {
		return nil, err
	}

	sb.setState(stateError)
	if err := writeSuperblock(dev, sb); err != nil {
		return nil, err
	}
	return fs, nil
}

func formatWriteBitmap(dev blockio.Device, blockSize int, block uint32, usedCount, capacity int) *errs.Error {
	buf := make([]byte, blockSize)
	for i := capacity; i < blockSize*8; i++ {
		buf[i/8] |= 1 << uint(i%8) // bits beyond this group's capacity read as used
	}
	for i := 0; i < usedCount; i++ {
		buf[i/8] |= 1 << uint(i%8)
	}
	lba := int(block) * (blockSize / blockio.SectorSize)
	if err := dev.WriteSectors(lba, blockSize/blockio.SectorSize, buf); err != nil {
		return errs.Wrap("ext2.Format", errs.IoError, err)
	}
	return nil
}

func formatZeroBlocks(dev blockio.Device, blockSize int, start uint32, count int) *errs.Error {
	buf := make([]byte, blockSize*count)
	lba := int(start) * (blockSize / blockio.SectorSize)
	if err := dev.WriteSectors(lba, count*(blockSize/blockio.SectorSize), buf); err != nil {
		return errs.Wrap("ext2.Format", errs.IoError, err)
	}
	return nil
}

func formatWriteGroupTable(dev blockio.Device, blockSize int, gdtStart uint32, groups []groupDesc) *errs.Error {
	tableBytes := len(groups) * groupDescSize
	blocks := (tableBytes + blockSize - 1) / blockSize
	buf := make([]byte, blocks*blockSize)
	for i, g := range groups {
		copy(buf[i*groupDescSize:i*groupDescSize+groupDescSize], g.raw[:])
	}
	lba := int(gdtStart) * (blockSize / blockio.SectorSize)
	if err := dev.WriteSectors(lba, blocks*(blockSize/blockio.SectorSize), buf); err != nil {
		return errs.Wrap("ext2.Format", errs.IoError, err)
	}
	return nil
}

func sumFreeBlocks(groups []groupDesc) uint32 {
	var total uint32
	for _, g := range groups {
		total += uint32(g.freeBlocksCount())
	}
	return total
}

func sumFreeInodes(groups []groupDesc) uint32 {
	var total uint32
	for _, g := range groups {
		total += uint32(g.freeInodesCount())
	}
	return total
}
