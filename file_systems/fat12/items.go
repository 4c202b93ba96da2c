package fat12

import (
	"bytes"
	"io"
	"io/fs"
	"strings"
	"time"
)

type Kind int

const (
	KindVolumeLabel Kind = iota
	KindFile
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindVolumeLabel:
		return "VolumeLabel"
	case KindFile:
		return "File"
	case KindDirectory:
		return "Directory"
	default:
		return "Unknown"
	}
}

// Item is a node in a decoded directory tree. It's always one of [*VolumeLabel],
// [*File], or [*Directory].
type Item interface {
	Kind() Kind
	Name() string
	// Entry returns the directory record the item was decoded from.
	Entry() DirectoryEntry
	Info() fs.FileInfo
	isItem()
}

type itemBase struct {
	entry DirectoryEntry
}

func (base *itemBase) Entry() DirectoryEntry {
	return base.entry
}

func (base *itemBase) isItem() {}

// VolumeLabel is the directory entry holding the volume's label. It has no
// contents.
type VolumeLabel struct {
	itemBase
}

func (label *VolumeLabel) Kind() Kind {
	return KindVolumeLabel
}

func (label *VolumeLabel) Name() string {
	return label.entry.LabelName()
}

func (label *VolumeLabel) Info() fs.FileInfo {
	return itemInfo{item: label, size: 0}
}

// File is a regular file along with its entire contents.
type File struct {
	itemBase
	contents []byte
}

func (file *File) Kind() Kind {
	return KindFile
}

func (file *File) Name() string {
	return file.entry.ShortName()
}

// Size gives the size of the file, in bytes.
func (file *File) Size() int64 {
	return int64(len(file.contents))
}

// Bytes returns a copy of the file's contents.
func (file *File) Bytes() []byte {
	contents := make([]byte, len(file.contents))
	copy(contents, file.contents)
	return contents
}

// Open returns a reader over the file's contents.
func (file *File) Open() io.ReadSeeker {
	return bytes.NewReader(file.contents)
}

func (file *File) Info() fs.FileInfo {
	return itemInfo{item: file, size: file.Size()}
}

// Directory is a subdirectory and everything in it, in on-disk order. The "."
// and ".." entries aren't included.
type Directory struct {
	itemBase
	children []Item
}

func (dir *Directory) Kind() Kind {
	return KindDirectory
}

func (dir *Directory) Name() string {
	return dir.entry.ShortName()
}

// Children returns the items in this directory. The slice is a copy, but the
// items themselves are shared.
func (dir *Directory) Children() []Item {
	children := make([]Item, len(dir.children))
	copy(children, dir.children)
	return children
}

// Child finds an immediate child by name. Case is ignored, as it is on DOS.
// Volume labels are never matched.
func (dir *Directory) Child(name string) (Item, bool) {
	return findChild(dir.children, name)
}

func (dir *Directory) Info() fs.FileInfo {
	return itemInfo{item: dir, size: 0}
}

func findChild(items []Item, name string) (Item, bool) {
	for _, item := range items {
		if item.Kind() == KindVolumeLabel {
			continue
		}
		if strings.EqualFold(item.Name(), name) {
			return item, true
		}
	}
	return nil, false
}

// itemInfo implements [fs.FileInfo] for an [Item].
type itemInfo struct {
	item Item
	size int64
}

func (info itemInfo) Name() string {
	return info.item.Name()
}

func (info itemInfo) Size() int64 {
	return info.size
}

func (info itemInfo) Mode() fs.FileMode {
	return info.item.Entry().Attributes.FileMode()
}

func (info itemInfo) ModTime() time.Time {
	entry := info.item.Entry()
	return entry.LastModifiedAt()
}

func (info itemInfo) IsDir() bool {
	return info.item.Kind() == KindDirectory
}

// Sys returns the item's [DirectoryEntry].
func (info itemInfo) Sys() any {
	return info.item.Entry()
}
