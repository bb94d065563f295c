package ext2

import (
	"golang.org/x/text/encoding/charmap"

	"alos/errs"
)

// VolumeName decodes the superblock's 16-byte s_volume_name field. ext2
// stores it as a raw ISO-8859-1 (Latin-1) string with no declared
// encoding of its own; charmap.ISO8859_1 makes the decode explicit
// instead of assuming the bytes happen to be ASCII.
func (fs *Filesystem) VolumeName() (string, *errs.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw := fs.sb.volumeNameBytes()
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	decoded, decErr := charmap.ISO8859_1.NewDecoder().String(string(raw[:end]))
	if decErr != nil {
		return "", errs.Wrap("ext2.VolumeName", errs.Corrupted, decErr)
	}
	return decoded, nil
}

// SetVolumeName encodes name as ISO-8859-1 into the superblock's
// 16-byte s_volume_name field, truncating and zero-padding as needed,
// and persists the superblock.
func (fs *Filesystem) SetVolumeName(name string) *errs.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	encoded, encErr := charmap.ISO8859_1.NewEncoder().String(name)
	if encErr != nil {
		return errs.Wrap("ext2.SetVolumeName", errs.InvalidArgument, encErr)
	}
	if len(encoded) > sbVolumeNameLen {
		encoded = encoded[:sbVolumeNameLen]
	}

	dst := fs.sb.volumeNameBytes()
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, encoded)
	return writeSuperblock(fs.dev, fs.sb)
}
