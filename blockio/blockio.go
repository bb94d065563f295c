// Package blockio defines the synchronous 512-byte-sector contract ext2
// sits on top of (spec.md §4.4), grounded on biscuit's Disk_i interface
// (biscuit/src/fs/blk.go) but narrowed to the two primitives the spec
// names: sector-granular read and write.
package blockio

import (
	"alos/errs"
)

// SectorSize is the fixed logical sector size this kernel core supports.
// The Device contract has no way to report another size: every Device
// is addressed in units of SectorSize (spec.md §6 "non-512-byte sector
// size").
const SectorSize = 512

// Device is a block device addressed by 512-byte logical block (sector)
// number. Implementations need not be safe for concurrent use by more
// than one caller; ext2 serializes access to a mounted device itself.
type Device interface {
	// ReadSectors reads count sectors starting at lba into buf, which
	// must be exactly count*SectorSize bytes long.
	ReadSectors(lba, count int, buf []byte) *errs.Error
	// WriteSectors writes count sectors starting at lba from buf, which
	// must be exactly count*SectorSize bytes long.
	WriteSectors(lba, count int, buf []byte) *errs.Error
	// SectorCount reports the device's total size in sectors.
	SectorCount() int
}

// MemDevice is an in-memory Device backing integration tests and
// filesystem images built up in a single process, modeled after
// biscuit's test disk backends.
type MemDevice struct {
	sectors []byte
}

// NewMemDevice allocates a zero-filled device of the given sector count.
func NewMemDevice(sectorCount int) *MemDevice {
	return &MemDevice{sectors: make([]byte, sectorCount*SectorSize)}
}

func (d *MemDevice) bounds(lba, count int) *errs.Error {
	if lba < 0 || count < 0 || lba+count > d.SectorCount() {
		return errs.New("blockio.MemDevice", errs.InvalidArgument)
	}
	return nil
}

// ReadSectors implements Device.
func (d *MemDevice) ReadSectors(lba, count int, buf []byte) *errs.Error {
	if err := d.bounds(lba, count); err != nil {
		return err
	}
	if len(buf) != count*SectorSize {
		return errs.New("blockio.MemDevice.ReadSectors", errs.InvalidArgument)
	}
	copy(buf, d.sectors[lba*SectorSize:(lba+count)*SectorSize])
	return nil
}

// WriteSectors implements Device.
func (d *MemDevice) WriteSectors(lba, count int, buf []byte) *errs.Error {
	if err := d.bounds(lba, count); err != nil {
		return err
	}
	if len(buf) != count*SectorSize {
		return errs.New("blockio.MemDevice.WriteSectors", errs.InvalidArgument)
	}
	copy(d.sectors[lba*SectorSize:(lba+count)*SectorSize], buf)
	return nil
}

// SectorCount implements Device.
func (d *MemDevice) SectorCount() int { return len(d.sectors) / SectorSize }
