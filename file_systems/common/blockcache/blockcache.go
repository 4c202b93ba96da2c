// Package blockcache provides a read-only, block-oriented cache over a volume
// image. Blocks are fetched from the backing storage the first time any byte in
// them is read, and never again afterwards.
//
// All block indices begin at 0.

package blockcache

import (
	"errors"
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/floppyscope"
	c "github.com/dargueta/floppyscope/file_systems/common"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. The following guarantees
// apply:
//
//   - `blockIndex` is in the range [0, TotalBlocks).
//   - `buffer` is always BytesPerBlock bytes and zeroed out.
//
// If the image isn't a whole number of blocks, the callback for the last block
// only needs to fill as much of the buffer as there is data.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

type BlockCache struct {
	loadedBlocks  bitmap.Bitmap
	fetch         FetchBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
	size          int64
	data          []byte
}

// New creates a new BlockCache holding `size` bytes, fetched through `fetchCb`
// in blocks of `bytesPerBlock` bytes.
func New(bytesPerBlock uint, size int64, fetchCb FetchBlockCallback) *BlockCache {
	totalBlocks := c.BlocksForLength(size, bytesPerBlock)

	return &BlockCache{
		loadedBlocks:  bitmap.New(int(totalBlocks)),
		data:          make([]byte, int(bytesPerBlock*totalBlocks)),
		fetch:         fetchCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
		size:          size,
	}
}

// WrapReaderAt creates a [BlockCache] over any [floppyscope.ByteSource].
func WrapReaderAt(source floppyscope.ByteSource, bytesPerBlock uint) *BlockCache {
	fetchCb := func(block c.LogicalBlock, buffer []byte) error {
		offset := int64(block) * int64(bytesPerBlock)
		_, err := source.ReadAt(buffer, offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
	return New(bytesPerBlock, source.Size(), fetchCb)
}

// WrapStream creates a [BlockCache] over a seekable stream. The size of the
// cache is determined by seeking to the end of the stream.
func WrapStream(stream io.ReadSeeker, bytesPerBlock uint) (*BlockCache, error) {
	size, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, floppyscope.ErrIOFailed.Wrap(err)
	}

	fetchCb := func(block c.LogicalBlock, buffer []byte) error {
		err := seekToBlock(stream, block, c.LogicalBlock(c.BlocksForLength(size, bytesPerBlock)), bytesPerBlock)
		if err != nil {
			return err
		}

		_, err = io.ReadFull(stream, buffer)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}
		return nil
	}

	return New(bytesPerBlock, size, fetchCb), nil
}

// seekToBlock sets the stream pointer for a stream to the offset of a block.
func seekToBlock(stream io.Seeker, block, totalBlocks c.LogicalBlock, bytesPerBlock uint) error {
	if block >= totalBlocks {
		return floppyscope.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				block,
				totalBlocks,
			),
		)
	}

	blockOffset := int64(block) * int64(bytesPerBlock)
	_, err := stream.Seek(blockOffset, io.SeekStart)
	return err
}

// BytesPerBlock returns the size of a single block, in bytes.
func (cache *BlockCache) BytesPerBlock() uint {
	return cache.bytesPerBlock
}

// TotalBlocks returns the size of the cache, in blocks. The last block may be
// only partially backed by data.
func (cache *BlockCache) TotalBlocks() uint {
	return cache.totalBlocks
}

// Size gives the size of the image, in bytes (not blocks!).
func (cache *BlockCache) Size() int64 {
	return cache.size
}

// LoadedBlocks returns the number of blocks that have been fetched so far.
func (cache *BlockCache) LoadedBlocks() uint {
	count := uint(0)
	for i := 0; i < int(cache.totalBlocks); i++ {
		if cache.loadedBlocks.Get(i) {
			count++
		}
	}
	return count
}

// IsLoaded returns true if the given block has been fetched.
func (cache *BlockCache) IsLoaded(block c.LogicalBlock) bool {
	if uint(block) >= cache.totalBlocks {
		return false
	}
	return cache.loadedBlocks.Get(int(block))
}

// checkBounds verifies that `length` bytes can be read from the cache starting
// at byte `offset`. If not, it returns an error describing the exact
// conditions. If no error would occur, this returns nil.
func (cache *BlockCache) checkBounds(offset int64, length int) error {
	if offset < 0 || offset+int64(length) > cache.size {
		return floppyscope.ErrIOFailed.AtIndex(
			offset,
			fmt.Sprintf(
				"can't read %d bytes at offset %d; range not in [0, %d)",
				length,
				offset,
				cache.size,
			),
		)
	}
	return nil
}

// loadBlockRange ensures that all blocks in the range [start, start + count) are
// present in the cache, and loads any missing ones from storage.
func (cache *BlockCache) loadBlockRange(start c.LogicalBlock, count uint) error {
	for blockIndex := int(start); uint(blockIndex) < uint(start)+count; blockIndex++ {
		if cache.loadedBlocks.Get(blockIndex) {
			continue
		}

		startOffset := uint(blockIndex) * cache.bytesPerBlock
		buffer := cache.data[startOffset : startOffset+cache.bytesPerBlock]

		// Load the block from backing storage directly into the cache.
		err := cache.fetch(c.LogicalBlock(blockIndex), buffer)
		if err != nil {
			return floppyscope.ErrIOFailed.AtIndex(
				int64(startOffset),
				fmt.Sprintf("failed to load block %d from source", blockIndex),
			).Wrap(err)
		}

		cache.loadedBlocks.Set(blockIndex, true)
	}

	return nil
}

// LoadAll ensures all missing blocks are loaded from storage into the cache.
func (cache *BlockCache) LoadAll() error {
	return cache.loadBlockRange(0, cache.totalBlocks)
}

// Data returns a slice of the entire image. This requires loading all blocks
// not yet in the cache.
//
// The returned slice must not be modified.
func (cache *BlockCache) Data() ([]byte, error) {
	err := cache.LoadAll()
	if err != nil {
		return nil, err
	}
	return cache.data[:cache.size], nil
}

// ReadAt implements [io.ReaderAt], loading any missing blocks first.
//
// Unlike most readers, attempting to read past the end of the image fails
// without reading anything, and `buffer` is left unmodified.
func (cache *BlockCache) ReadAt(buffer []byte, offset int64) (int, error) {
	err := cache.checkBounds(offset, len(buffer))
	if err != nil {
		return 0, err
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	firstBlock := c.LogicalBlock(offset / int64(cache.bytesPerBlock))
	lastBlock := c.LogicalBlock((offset + int64(len(buffer)) - 1) / int64(cache.bytesPerBlock))

	err = cache.loadBlockRange(firstBlock, uint(lastBlock-firstBlock)+1)
	if err != nil {
		return 0, err
	}

	return copy(buffer, cache.data[offset:offset+int64(len(buffer))]), nil
}
