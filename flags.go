package floppyscope

import (
	"io/fs"
	"strings"
)

// AttributeFlags is the attribute byte of a FAT directory entry.
type AttributeFlags uint8

const (
	// AttrReadOnly marks a directory entry as read-only.
	AttrReadOnly AttributeFlags = 1 << iota

	// AttrHidden marks a directory entry as "hidden", meaning it wouldn't show
	// up in normal directory listings. This is most commonly used for hiding
	// operating system files from normal users.
	AttrHidden

	// AttrSystem marks a directory entry as essential to the operating system.
	AttrSystem

	// AttrVolumeLabel marks an entry as holding the true volume label of the
	// file system. It must reside in the root directory, and there must be only
	// one.
	AttrVolumeLabel

	// AttrDirectory marks a directory entry as being a directory.
	AttrDirectory

	// AttrArchived is set by some systems whenever the entry is created or
	// modified. Backup tools use it to decide what needs copying.
	AttrArchived

	// AttrDevice marks a directory entry as abstracting a device. It's typically
	// only found on in-memory file systems.
	AttrDevice

	// AttrReserved is undefined by the FAT standard.
	AttrReserved
)

var attrLetters = [...]struct {
	flag   AttributeFlags
	letter byte
}{
	{AttrReadOnly, 'R'},
	{AttrHidden, 'H'},
	{AttrSystem, 'S'},
	{AttrVolumeLabel, 'V'},
	{AttrDirectory, 'D'},
	{AttrArchived, 'A'},
	{AttrDevice, 'X'},
}

// Has returns true if every bit in `flag` is set.
func (f AttributeFlags) Has(flag AttributeFlags) bool {
	return f&flag == flag
}

// String renders the flags DOS-style, one column per flag, e.g. "R----A-".
func (f AttributeFlags) String() string {
	var sb strings.Builder
	for _, attr := range attrLetters {
		if f.Has(attr.flag) {
			sb.WriteByte(attr.letter)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// FileMode converts FAT attribute flags into Go file mode flags.
//
// FAT has no way to mark files as executable or not, and no concept of owners,
// so the permission bits are either 0o555 or 0o777 depending on AttrReadOnly.
func (f AttributeFlags) FileMode() fs.FileMode {
	var mode fs.FileMode
	if f.Has(AttrReadOnly) {
		mode = 0o555
	} else {
		mode = 0o777
	}

	if f.Has(AttrDirectory) {
		mode |= fs.ModeDir
	} else if f.Has(AttrDevice) {
		mode |= fs.ModeDevice | fs.ModeCharDevice
	}
	return mode
}
