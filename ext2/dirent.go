package ext2

import "alos/errs"

// Directory entry layout (spec.md §6): 4-B inode + 2-B rec_len + 1-B
// name_len + 1-B file_type + name, rec_len covering padding to 4-byte
// alignment.
const direntHeaderSize = 8

func direntInode(b []byte) uint32   { return u32At(b, 0) }
func direntRecLen(b []byte) uint16  { return u16At(b, 4) }
func direntNameLen(b []byte) uint8  { return b[6] }
func direntFileType(b []byte) uint8 { return b[7] }
func direntName(b []byte) string    { return string(b[direntHeaderSize : direntHeaderSize+int(direntNameLen(b))]) }

func putDirent(b []byte, inode uint32, recLen uint16, name string, ftype uint8) {
	putU32At(b, 0, inode)
	putU16At(b, 4, recLen)
	b[6] = uint8(len(name))
	b[7] = ftype
	copy(b[direntHeaderSize:direntHeaderSize+len(name)], name)
}

// idealRecLen is the minimum rec_len a record for this name needs:
// header plus name, rounded up to 4 bytes (spec.md §5.4 growth
// algorithm).
func idealRecLen(nameLen int) uint16 {
	n := direntHeaderSize + nameLen
	return uint16((n + 3) &^ 3)
}

// DirEntry is one live directory record, as returned by Readdir/Finddir.
type DirEntry struct {
	Name  string
	Inode uint32
	Type  Type
}

// Readdir returns the index-th live record (inode != 0) in dirIno's
// data, or ok=false if index is past the last live record. A rec_len of
// zero mid-scan aborts with Corrupted (spec.md §4.4 corruption guard).
func (fs *Filesystem) Readdir(dirIno *Inode, index int) (DirEntry, bool, *errs.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.readdirLocked(dirIno, index)
}

func (fs *Filesystem) readdirLocked(dirIno *Inode, index int) (DirEntry, bool, *errs.Error) {
	size := int(dirIno.Size())
	buf := make([]byte, size)
	if n, err := fs.readDataLocked(dirIno, 0, buf); err != nil {
		return DirEntry{}, false, err
	} else if n != size {
		return DirEntry{}, false, errs.New("ext2.Readdir", errs.Corrupted)
	}

	live := 0
	off := 0
	for off < size {
		recLen := direntRecLen(buf[off:])
		if recLen == 0 {
			return DirEntry{}, false, errs.New("ext2.Readdir", errs.Corrupted)
		}
		if direntInode(buf[off:]) != 0 {
			if live == index {
				rec := buf[off : off+int(recLen)]
				return DirEntry{
					Name:  direntName(rec),
					Inode: direntInode(rec),
					Type:  typeFromFileType(direntFileType(rec)),
				}, true, nil
			}
			live++
		}
		off += int(recLen)
	}
	return DirEntry{}, false, nil
}

// Finddir scans dirIno's data for a live record named name.
func (fs *Filesystem) Finddir(dirIno *Inode, name string) (DirEntry, bool, *errs.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.finddirLocked(dirIno, name)
}

func (fs *Filesystem) finddirLocked(dirIno *Inode, name string) (DirEntry, bool, *errs.Error) {
	size := int(dirIno.Size())
	buf := make([]byte, size)
	if n, err := fs.readDataLocked(dirIno, 0, buf); err != nil {
		return DirEntry{}, false, err
	} else if n != size {
		return DirEntry{}, false, errs.New("ext2.Finddir", errs.Corrupted)
	}

	off := 0
	for off < size {
		recLen := direntRecLen(buf[off:])
		if recLen == 0 {
			return DirEntry{}, false, errs.New("ext2.Finddir", errs.Corrupted)
		}
		rec := buf[off : off+int(recLen)]
		if direntInode(rec) != 0 && direntName(rec) == name {
			return DirEntry{
				Name:  name,
				Inode: direntInode(rec),
				Type:  typeFromFileType(direntFileType(rec)),
			}, true, nil
		}
		off += int(recLen)
	}
	return DirEntry{}, false, nil
}

func typeFromFileType(ft uint8) Type {
	switch ft {
	case ftDir:
		return TypeDirectory
	case ftCharDev:
		return TypeCharDev
	case ftBlockDev:
		return TypeBlockDev
	case ftFIFO:
		return TypeFIFO
	case ftSymlink:
		return TypeSymlink
	default:
		return TypeFile
	}
}

// addEntryLocked materializes a directory entry for (name, inum, t) in
// dirIno, resolving the Open Question of spec.md §9 (directory-entry
// growth): it scans existing records for one with enough internal
// slack to split in place; failing that, it appends a new block
// holding a single record spanning the whole block (spec.md §5.4).
// Callers must already hold fs.mu.
func (fs *Filesystem) addEntryLocked(dirIno *Inode, name string, inum uint32, t Type, now uint32) *errs.Error {
	need := idealRecLen(len(name))
	size := int(dirIno.Size())
	buf := make([]byte, size)
	if size > 0 {
		if n, err := fs.readDataLocked(dirIno, 0, buf); err != nil {
			return err
		} else if n != size {
			return errs.New("ext2.addEntry", errs.Corrupted)
		}
	}

	off := 0
	for off < size {
		recLen := direntRecLen(buf[off:])
		if recLen == 0 {
			return errs.New("ext2.addEntry", errs.Corrupted)
		}
		rec := buf[off : off+int(recLen)]
		used := uint16(0)
		if direntInode(rec) != 0 {
			used = idealRecLen(len(direntName(rec)))
		}
		slack := recLen - used
		if slack >= need {
			if used > 0 {
				putDirent(buf[off:off+int(used)], direntInode(rec), used, direntName(rec), direntFileType(rec))
			}
			putDirent(buf[off+int(used):off+int(used)+int(need)], inum, recLen-used, name, fileTypeByte(t))
			_, err := fs.writeDataLocked(dirIno, off, buf[off:off+int(recLen)], now)
			return err
		}
		off += int(recLen)
	}

	// No existing record has enough slack: append a new block holding
	// one record spanning the whole block.
	newBlockBuf := make([]byte, fs.blockSize)
	putDirent(newBlockBuf, inum, uint16(fs.blockSize), name, fileTypeByte(t))
	_, err := fs.writeDataLocked(dirIno, size, newBlockBuf, now)
	return err
}

// removeEntryLocked zeroes the inode field of name's record and merges
// its rec_len into the previous record in the same block; a record
// that is first in its block is left as a zero-inode tombstone so
// record lengths continue to tile the block (spec.md §5.4). Callers
// must already hold fs.mu.
func (fs *Filesystem) removeEntryLocked(dirIno *Inode, name string) *errs.Error {
	size := int(dirIno.Size())
	buf := make([]byte, size)
	if n, err := fs.readDataLocked(dirIno, 0, buf); err != nil {
		return err
	} else if n != size {
		return errs.New("ext2.removeEntry", errs.Corrupted)
	}

	blockStart := 0
	for blockStart < size {
		blockEnd := blockStart + fs.blockSize
		if blockEnd > size {
			blockEnd = size
		}

		off := blockStart
		prevOff := -1
		for off < blockEnd {
			recLen := direntRecLen(buf[off:])
			if recLen == 0 {
				return errs.New("ext2.removeEntry", errs.Corrupted)
			}
			rec := buf[off : off+int(recLen)]
			if direntInode(rec) != 0 && direntName(rec) == name {
				putU32At(buf, off, 0)
				if prevOff >= 0 {
					prevLen := direntRecLen(buf[prevOff:])
					putU16At(buf, prevOff+4, prevLen+recLen)
				}
				_, err := fs.writeDataLocked(dirIno, blockStart, buf[blockStart:blockEnd], 0)
				return err
			}
			prevOff = off
			off += int(recLen)
		}
		blockStart = blockEnd
	}
	return errs.New("ext2.removeEntry", errs.NotFound)
}
