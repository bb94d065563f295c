package ext2

import "testing"

// TestFinddirAcrossBlockBoundary covers spec.md §8's boundary behavior:
// finddir on a directory whose entries span exactly a block boundary
// returns the boundary-crossing entry. It creates enough files that the
// growth algorithm (spec.md §5.4) is forced to append a second block,
// then looks up a name materialized in that second block.
func TestFinddirAcrossBlockBoundary(t *testing.T) {
	fs := newFixture(t)
	root, err := fs.GetInode(fs.Root())
	if err != nil {
		t.Fatalf("GetInode(root): %v", err)
	}

	// Each three-byte "fXN" name needs idealRecLen(3) = 12 bytes; a 1-KiB block holds
	// well over 64 of them, so creating enough names forces addEntryLocked
	// to append a new directory block.
	var last string
	for i := 0; i < 120; i++ {
		name := "f" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		if _, err := fs.Create(root, name, TypeFile, fixtureNow); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		last = name
	}

	root, err = fs.GetInode(fs.Root())
	if err != nil {
		t.Fatalf("GetInode(root) reload: %v", err)
	}
	if int(root.Size()) <= fs.blockSize {
		t.Fatalf("root size = %d, want > %d (expected a second block)", root.Size(), fs.blockSize)
	}

	entry, ok, err := fs.Finddir(root, last)
	if err != nil || !ok {
		t.Fatalf("Finddir(%s) = %+v, %v, %v", last, entry, ok, err)
	}
	if entry.Name != last {
		t.Fatalf("entry.Name = %q, want %q", entry.Name, last)
	}
}

func TestUnlinkRemovesEntry(t *testing.T) {
	fs := newFixture(t)
	root, _ := fs.GetInode(fs.Root())
	if _, err := fs.Create(root, "gone.txt", TypeFile, fixtureNow); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fs.Unlink(root, "gone.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	root, _ = fs.GetInode(fs.Root())
	if _, ok, err := fs.Finddir(root, "gone.txt"); err != nil || ok {
		t.Fatalf("Finddir after unlink: ok=%v err=%v, want not found", ok, err)
	}
}

func TestMkdirCreatesDotAndDotDot(t *testing.T) {
	fs := newFixture(t)
	root, _ := fs.GetInode(fs.Root())
	linksBefore := root.LinksCount()
	sub, err := fs.Mkdir(root, "subdir", fixtureNow)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	e0, ok, err := fs.Readdir(sub, 0)
	if err != nil || !ok || e0.Name != "." || e0.Inode != sub.Num {
		t.Fatalf("entry 0 = %+v, %v, %v, want name=. inode=%d", e0, ok, err, sub.Num)
	}
	e1, ok, err := fs.Readdir(sub, 1)
	if err != nil || !ok || e1.Name != ".." || e1.Inode != rootInode {
		t.Fatalf("entry 1 = %+v, %v, %v, want name=.. inode=%d", e1, ok, err, rootInode)
	}

	root2, _ := fs.GetInode(fs.Root())
	if root2.LinksCount() != linksBefore+1 {
		t.Fatalf("root links = %d, want %d", root2.LinksCount(), linksBefore+1)
	}
}
