package fat12

import (
	"github.com/dargueta/floppyscope"
)

// Cursor reads consecutive regions of an image. The boot sector, FATs and root
// directory are laid out back to back, so they're consumed in that order
// through a single cursor.
type Cursor struct {
	source floppyscope.ByteSource
	offset int64
}

func NewCursor(source floppyscope.ByteSource, offset int64) *Cursor {
	return &Cursor{source: source, offset: offset}
}

// Offset gives the position of the next byte to be read.
func (cursor *Cursor) Offset() int64 {
	return cursor.offset
}

// Seek moves the cursor to an absolute offset.
func (cursor *Cursor) Seek(offset int64) {
	cursor.offset = offset
}

// Skip advances the cursor without reading anything.
func (cursor *Cursor) Skip(count int64) {
	cursor.offset += count
}

// Next reads the next `count` bytes and advances past them. The cursor doesn't
// move if the read fails.
func (cursor *Cursor) Next(count int) ([]byte, error) {
	buffer := make([]byte, count)
	err := floppyscope.ReadFull(cursor.source, buffer, cursor.offset)
	if err != nil {
		return nil, err
	}
	cursor.offset += int64(count)
	return buffer, nil
}
