package ext2

import (
	"alos/blockio"
	"alos/errs"
)

// Superblock offsets within its 1024-byte on-disk record.
const (
	sbInodesCount      = 0x00
	sbBlocksCount      = 0x04
	sbFreeBlocksCount  = 0x0C
	sbFreeInodesCount  = 0x10
	sbFirstDataBlock   = 0x14
	sbLogBlockSize     = 0x18
	sbBlocksPerGroup   = 0x20
	sbInodesPerGroup   = 0x28
	sbMagic            = 0x38
	sbState            = 0x3A
	sbRevLevel         = 0x4C
	sbFirstIno         = 0x54
	sbInodeSize        = 0x58
	sbVolumeName       = 0x78
	sbVolumeNameLen    = 16

	superblockSize = 1024
	// superblockByteOffset is the fixed byte offset of the superblock on
	// every ext2 volume, regardless of block size (spec.md §6).
	superblockByteOffset = 1024
	groupDescSize        = 32
)

type superblock struct {
	raw [superblockSize]byte
}

func (sb *superblock) magic() uint16           { return u16At(sb.raw[:], sbMagic) }
func (sb *superblock) revLevel() uint32        { return u32At(sb.raw[:], sbRevLevel) }
func (sb *superblock) inodesCount() uint32      { return u32At(sb.raw[:], sbInodesCount) }
func (sb *superblock) blocksCount() uint32      { return u32At(sb.raw[:], sbBlocksCount) }
func (sb *superblock) freeBlocksCount() uint32  { return u32At(sb.raw[:], sbFreeBlocksCount) }
func (sb *superblock) setFreeBlocksCount(v uint32) { putU32At(sb.raw[:], sbFreeBlocksCount, v) }
func (sb *superblock) freeInodesCount() uint32  { return u32At(sb.raw[:], sbFreeInodesCount) }
func (sb *superblock) setFreeInodesCount(v uint32) { putU32At(sb.raw[:], sbFreeInodesCount, v) }
func (sb *superblock) firstDataBlock() uint32   { return u32At(sb.raw[:], sbFirstDataBlock) }
func (sb *superblock) logBlockSize() uint32     { return u32At(sb.raw[:], sbLogBlockSize) }
func (sb *superblock) blocksPerGroup() uint32   { return u32At(sb.raw[:], sbBlocksPerGroup) }
func (sb *superblock) inodesPerGroup() uint32   { return u32At(sb.raw[:], sbInodesPerGroup) }
func (sb *superblock) state() uint16            { return u16At(sb.raw[:], sbState) }
func (sb *superblock) setState(v uint16)        { putU16At(sb.raw[:], sbState, v) }

func (sb *superblock) inodeSize() int {
	if sb.revLevel() == 0 {
		return 128
	}
	return int(u16At(sb.raw[:], sbInodeSize))
}

func (sb *superblock) firstIno() uint32 {
	if sb.revLevel() == 0 {
		return firstNonReservedInode
	}
	return u32At(sb.raw[:], sbFirstIno)
}

func (sb *superblock) volumeNameBytes() []byte {
	return sb.raw[sbVolumeName : sbVolumeName+sbVolumeNameLen]
}

// blockSize derives the device block size from s_log_block_size
// (spec.md §4.4: "Block size is 1024 << s_log_block_size").
func (sb *superblock) blockSize() int {
	return 1024 << sb.logBlockSize()
}

type groupDesc struct {
	raw [groupDescSize]byte
}

func (g *groupDesc) blockBitmap() uint32     { return u32At(g.raw[:], 0x00) }
func (g *groupDesc) inodeBitmap() uint32     { return u32At(g.raw[:], 0x04) }
func (g *groupDesc) inodeTable() uint32      { return u32At(g.raw[:], 0x08) }
func (g *groupDesc) freeBlocksCount() uint16 { return u16At(g.raw[:], 0x0C) }
func (g *groupDesc) setFreeBlocksCount(v uint16) { putU16At(g.raw[:], 0x0C, v) }
func (g *groupDesc) freeInodesCount() uint16 { return u16At(g.raw[:], 0x0E) }
func (g *groupDesc) setFreeInodesCount(v uint16) { putU16At(g.raw[:], 0x0E, v) }
func (g *groupDesc) usedDirsCount() uint16   { return u16At(g.raw[:], 0x10) }
func (g *groupDesc) setUsedDirsCount(v uint16) { putU16At(g.raw[:], 0x10, v) }

// readSuperblock reads and validates the superblock at its fixed byte
// offset (spec.md §4.4 Mount).
func readSuperblock(dev blockio.Device) (*superblock, *errs.Error) {
	sectorsPerSB := superblockSize / blockio.SectorSize
	lba := superblockByteOffset / blockio.SectorSize
	buf := make([]byte, superblockSize)
	if err := dev.ReadSectors(lba, sectorsPerSB, buf); err != nil {
		return nil, errs.Wrap("ext2.readSuperblock", errs.IoError, err)
	}
	sb := &superblock{}
	copy(sb.raw[:], buf)
	if sb.magic() != Magic {
		return nil, errs.New("ext2.readSuperblock", errs.Corrupted)
	}
	if sb.blockSize()%blockio.SectorSize != 0 {
		return nil, errs.New("ext2.readSuperblock", errs.InvalidArgument)
	}
	return sb, nil
}

func writeSuperblock(dev blockio.Device, sb *superblock) *errs.Error {
	sectorsPerSB := superblockSize / blockio.SectorSize
	lba := superblockByteOffset / blockio.SectorSize
	if err := dev.WriteSectors(lba, sectorsPerSB, sb.raw[:]); err != nil {
		return errs.Wrap("ext2.writeSuperblock", errs.IoError, err)
	}
	return nil
}

// groupDescTableStart returns the block number the group-descriptor
// table begins at: block 1, or block 2 for 1-KiB blocks (the superblock
// itself occupies block 1 only when the block size is 1024; for larger
// block sizes byte offset 1024 still falls within block 0).
func groupDescTableStart(blockSize int) uint32 {
	if blockSize == 1024 {
		return 2
	}
	return 1
}
