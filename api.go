package floppyscope

import (
	"fmt"
	"io"
)

// ByteSource is a random-access view of a fixed-size volume image. It's the
// only thing the decoder needs from whoever opened the image.
//
// *bytes.Reader, *io.SectionReader and the block cache all satisfy it. The
// contents must not change while a volume is being decoded.
type ByteSource interface {
	io.ReaderAt
	// Size returns the total size of the image, in bytes.
	Size() int64
}

// ReadFull reads exactly len(buffer) bytes from `source` at `offset`. Unlike
// ReadAt, a short read is always an error, and the error is an [ErrIOFailed]
// carrying the offset that was requested.
func ReadFull(source ByteSource, buffer []byte, offset int64) error {
	if offset < 0 || offset+int64(len(buffer)) > source.Size() {
		return ErrIOFailed.AtIndex(
			offset,
			"refusing to read past end of image: "+
				rangeString(offset, len(buffer), source.Size()))
	}

	n, err := source.ReadAt(buffer, offset)
	if n == len(buffer) {
		// io.ReaderAt allows io.EOF alongside a full read at the very end.
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return ErrIOFailed.AtIndex(offset, rangeString(offset, len(buffer), source.Size())).Wrap(err)
}

func rangeString(offset int64, length int, size int64) string {
	return fmt.Sprintf("%d bytes at offset %d, image is %d bytes", length, offset, size)
}
