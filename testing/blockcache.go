package testing

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/dargueta/floppyscope/file_systems/common/blockcache"
	"github.com/stretchr/testify/require"
)

// Create an image with the given number of blocks and bytes per block. It is
// guaranteed to either return a valid slice or fail the test and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// CountingSource is a [floppyscope.ByteSource] over a byte slice that records
// how many times ReadAt was called, so tests can tell whether a cache hit the
// backing storage.
type CountingSource struct {
	*bytes.Reader
	Reads int
}

func NewCountingSource(data []byte) *CountingSource {
	return &CountingSource{Reader: bytes.NewReader(data)}
}

func (s *CountingSource) ReadAt(buffer []byte, offset int64) (int, error) {
	s.Reads++
	return s.Reader.ReadAt(buffer, offset)
}

// CreateDefaultCache creates a block cache over `backingData`, or over random
// data if `backingData` is nil. The returned CountingSource is the cache's
// backing storage.
//
// Arguments:
//
//   - bytesPerBlock: The number of bytes in a single block.
//   - totalBlocks: The number of blocks in the image. Ignored if backingData
//     is given.
//   - backingData: Optional. The image the cache sits on top of.
//   - `t`: The testing fixture.
func CreateDefaultCache(
	bytesPerBlock,
	totalBlocks uint,
	backingData []byte,
	t *testing.T,
) (*blockcache.BlockCache, *CountingSource) {
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	source := NewCountingSource(backingData)
	return blockcache.WrapReaderAt(source, bytesPerBlock), source
}
