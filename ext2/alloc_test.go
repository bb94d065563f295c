package ext2

import "testing"

// TestAllocBlockReusesFreedBlockFirstFit mirrors spec.md §8 scenario 5
// (originally stated for the PMM's alloc_frame) at the ext2 block
// allocator: allocate N blocks, free one in the middle, allocate once
// more — the reallocation returns the freed block.
func TestAllocBlockReusesFreedBlockFirstFit(t *testing.T) {
	fs := newFixture(t)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	const n = 40
	allocated := make([]uint32, n)
	for i := 0; i < n; i++ {
		b, err := fs.allocBlock()
		if err != nil {
			t.Fatalf("allocBlock[%d]: %v", i, err)
		}
		allocated[i] = b
	}

	freed := allocated[20]
	if err := fs.freeBlock(freed); err != nil {
		t.Fatalf("freeBlock: %v", err)
	}

	got, err := fs.allocBlock()
	if err != nil {
		t.Fatalf("allocBlock after free: %v", err)
	}
	if got != freed {
		t.Fatalf("reallocated block = %d, want freed block %d (first-fit)", got, freed)
	}
}

func TestAllocBlockOutOfSpace(t *testing.T) {
	fs := newFixture(t)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	free := fs.sb.freeBlocksCount()
	for i := uint32(0); i < free; i++ {
		if _, err := fs.allocBlock(); err != nil {
			t.Fatalf("allocBlock[%d]: %v", i, err)
		}
	}
	if _, err := fs.allocBlock(); err == nil {
		t.Fatalf("allocBlock on exhausted volume: want NoSpace error, got nil")
	}
}
