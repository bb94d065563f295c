// Package ext2 implements the on-disk ext2 format driver: superblock and
// group-descriptor handling, inode read/write with direct and indirect
// block resolution, bitmap allocators, and directory-entry management
// (spec.md §4.4). It sits on blockio.Device below and is spliced into a
// pathname namespace by package vfs above.
package ext2

import "alos/util"

// Magic is the ext2 superblock signature, at byte offset 1024 on every
// volume regardless of block size.
const Magic = 0xEF53

// Superblock state flags (on-disk s_state).
const (
	stateValid = 1
	stateError = 2
)

// Inode mode high-nibble type bits (POSIX S_IFxxx, masked with modeTypeMask).
const (
	modeTypeMask = 0xF000
	modeFIFO     = 0x1000
	modeCharDev  = 0x2000
	modeDir      = 0x4000
	modeBlockDev = 0x6000
	modeRegular  = 0x8000
	modeSymlink  = 0xA000
)

// Directory-entry file-type byte values (on-disk, when the incompat
// filetype feature is set — this driver always writes it).
const (
	ftUnknown  = 0
	ftRegular  = 1
	ftDir      = 2
	ftCharDev  = 3
	ftBlockDev = 4
	ftFIFO     = 5
	ftSymlink  = 7
)

// Type is the VFS-facing node type, a common enum the inode mode and the
// directory-entry file-type byte both decode to (spec.md §4.4).
type Type int

const (
	TypeFile Type = iota
	TypeDirectory
	TypeCharDev
	TypeBlockDev
	TypeFIFO
	TypeSymlink
)

func typeFromMode(mode uint16) Type {
	switch mode & modeTypeMask {
	case modeDir:
		return TypeDirectory
	case modeCharDev:
		return TypeCharDev
	case modeBlockDev:
		return TypeBlockDev
	case modeFIFO:
		return TypeFIFO
	case modeSymlink:
		return TypeSymlink
	default:
		return TypeFile
	}
}

func modeForType(t Type, perm uint16) uint16 {
	switch t {
	case TypeDirectory:
		return modeDir | perm
	case TypeCharDev:
		return modeCharDev | perm
	case TypeBlockDev:
		return modeBlockDev | perm
	case TypeFIFO:
		return modeFIFO | perm
	case TypeSymlink:
		return modeSymlink | perm
	default:
		return modeRegular | perm
	}
}

func fileTypeByte(t Type) uint8 {
	switch t {
	case TypeDirectory:
		return ftDir
	case TypeCharDev:
		return ftCharDev
	case TypeBlockDev:
		return ftBlockDev
	case TypeFIFO:
		return ftFIFO
	case TypeSymlink:
		return ftSymlink
	default:
		return ftRegular
	}
}

// rootInode is the fixed inode number of the volume's root directory.
const rootInode = 2

// firstNonReservedInode is used by Format; ext2 reserves inodes 1..10.
const firstNonReservedInode = 11

// directPointers is the count of direct block pointers in i_block.
const directPointers = 12

// Indirect pointer indices within i_block.
const (
	singleIndirectIdx = 12
	doubleIndirectIdx = 13
	tripleIndirectIdx = 14
)

func ptrsPerBlock(blockSize int) int { return blockSize / 4 }

func u32At(b []byte, off int) uint32       { return util.ReadU32(b, off) }
func putU32At(b []byte, off int, v uint32) { util.WriteU32(b, off, v) }
func u16At(b []byte, off int) uint16       { return util.ReadU16(b, off) }
func putU16At(b []byte, off int, v uint16) { util.WriteU16(b, off, v) }
