package blockio

import (
	"bytes"
	"testing"

	"alos/errs"
)

func TestReadWriteRoundTrip(t *testing.T) {
	d := NewMemDevice(16)
	want := bytes.Repeat([]byte{0xAB}, SectorSize*2)
	if err := d.WriteSectors(3, 2, want); err != nil {
		t.Fatalf("WriteSectors: %v", err)
	}
	got := make([]byte, SectorSize*2)
	if err := d.ReadSectors(3, 2, got); err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back mismatch")
	}
}

func TestOutOfRangeIsInvalidArgument(t *testing.T) {
	d := NewMemDevice(4)
	buf := make([]byte, SectorSize)
	err := d.ReadSectors(10, 1, buf)
	if err == nil || err.Kind != errs.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestMismatchedBufferSizeRejected(t *testing.T) {
	d := NewMemDevice(4)
	err := d.ReadSectors(0, 1, make([]byte, SectorSize-1))
	if err == nil || err.Kind != errs.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
