package fat12_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/floppyscope"
	"github.com/dargueta/floppyscope/file_systems/fat12"
	fstest "github.com/dargueta/floppyscope/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterRange(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.SectorsPerCluster = 2
	_, _, addressor := decodeParts(t, builder)

	// 64 sectors - 4 for the boot sector, FATs and root directory = 30 clusters
	assert.EqualValues(t, 30, addressor.TotalClusters())
	assert.EqualValues(t, 1024, addressor.BytesPerCluster())

	start, length, err := addressor.ClusterRange(2)
	require.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.EqualValues(t, 1024, length)

	start, _, err = addressor.ClusterRange(31)
	require.NoError(t, err)
	assert.EqualValues(t, 29*1024, start)

	for _, cluster := range []fat12.ClusterID{0, 1, 32, 0xFFF} {
		_, _, err = addressor.ClusterRange(cluster)
		assert.ErrorIsf(t, err, floppyscope.ErrClusterOutOfRange, "cluster %d", cluster)

		index, ok := floppyscope.IndexOf(err)
		assert.True(t, ok)
		assert.EqualValues(t, cluster, index)
	}
}

func TestClusterRange__TruncatedImage(t *testing.T) {
	builder := fstest.NewImageBuilder()
	image := builder.Build(t)

	// Chop off the last 10 sectors, leaving clusters 2-51.
	truncated := bytes.NewReader(image[:len(image)-10*512])
	geometry, err := fat12.DecodeBootSector(image[:512])
	require.NoError(t, err)
	fat, err := fat12.LoadFAT(fat12.NewCursor(truncated, geometry.FATOffset()), &geometry)
	require.NoError(t, err)

	addressor := fat12.NewClusterAddressor(&geometry, fat, truncated, nil)
	assert.EqualValues(t, 50, addressor.TotalClusters())

	_, _, err = addressor.ClusterRange(51)
	assert.NoError(t, err)
	_, _, err = addressor.ClusterRange(52)
	assert.ErrorIs(t, err, floppyscope.ErrClusterOutOfRange)
}

func TestChainFrom__Terminated(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.Chain(2, 7, 3, 40, 5)
	builder.Chain(10)
	_, _, addressor := decodeParts(t, builder)

	chain, err := addressor.ChainFrom(2)
	require.NoError(t, err)
	assert.Equal(t, []fat12.ClusterID{2, 7, 3, 40, 5}, chain)

	// Starting partway through gives the tail.
	chain, err = addressor.ChainFrom(3)
	require.NoError(t, err)
	assert.Equal(t, []fat12.ClusterID{3, 40, 5}, chain)

	chain, err = addressor.ChainFrom(10)
	require.NoError(t, err)
	assert.Equal(t, []fat12.ClusterID{10}, chain)
}

// Any end-of-chain marker ends a chain, not just 0xFFF.
func TestChainFrom__LowEndOfChainMarker(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.SetFATEntry(2, 3).SetFATEntry(3, 0xFF8)
	_, _, addressor := decodeParts(t, builder)

	chain, err := addressor.ChainFrom(2)
	require.NoError(t, err)
	assert.Equal(t, []fat12.ClusterID{2, 3}, chain)
}

func TestChainFrom__Cycle(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.SetFATEntry(2, 3).SetFATEntry(3, 4).SetFATEntry(4, 2)
	builder.SetFATEntry(9, 9)
	_, _, addressor := decodeParts(t, builder)

	_, err := addressor.ChainFrom(2)
	require.ErrorIs(t, err, floppyscope.ErrFATCycle)
	index, ok := floppyscope.IndexOf(err)
	require.True(t, ok)
	assert.EqualValues(t, 2, index)

	// Cycle not involving the first cluster
	_, err = addressor.ChainFrom(3)
	assert.ErrorIs(t, err, floppyscope.ErrFATCycle)

	// Self-loop
	_, err = addressor.ChainFrom(9)
	assert.ErrorIs(t, err, floppyscope.ErrFATCycle)
}

func TestChainFrom__OutOfRange(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.SetFATEntry(2, 0xEFF)
	_, fat, addressor := decodeParts(t, builder)
	require.Less(t, fat.EntryCount(), uint(0xEFF))

	_, err := addressor.ChainFrom(2)
	require.ErrorIs(t, err, floppyscope.ErrClusterOutOfRange)
	index, _ := floppyscope.IndexOf(err)
	assert.EqualValues(t, 0xEFF, index)

	_, err = addressor.ChainFrom(0)
	assert.ErrorIs(t, err, floppyscope.ErrClusterOutOfRange)
	_, err = addressor.ChainFrom(1)
	assert.ErrorIs(t, err, floppyscope.ErrClusterOutOfRange)
}

func TestReadChain(t *testing.T) {
	builder := fstest.NewImageBuilder()
	first := bytes.Repeat([]byte{'a'}, 512)
	second := bytes.Repeat([]byte{'b'}, 512)
	builder.WriteCluster(8, first).WriteCluster(3, second).Chain(8, 3)
	_, _, addressor := decodeParts(t, builder)

	contents, err := addressor.ReadChain(8)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, first...), second...), contents)

	prefix, err := addressor.ReadChainPrefix(8, 600)
	require.NoError(t, err)
	assert.Equal(t, contents[:600], prefix)

	_, err = addressor.ReadChainPrefix(8, 1025)
	assert.ErrorIs(t, err, floppyscope.ErrFileSystemCorrupted)
}

// A chain that runs into a cluster the FAT knows about but the data region
// doesn't can't be read.
func TestReadChain__PastDataRegion(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.Chain(2, 100)
	_, _, addressor := decodeParts(t, builder)

	_, err := addressor.ChainFrom(2)
	require.NoError(t, err)

	_, err = addressor.ReadChain(2)
	assert.ErrorIs(t, err, floppyscope.ErrClusterOutOfRange)
}
