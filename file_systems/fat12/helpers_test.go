package fat12_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/floppyscope/file_systems/fat12"
	fstest "github.com/dargueta/floppyscope/testing"
	"github.com/stretchr/testify/require"
)

// decodeParts decodes the boot sector and FAT of a built image, and returns an
// addressor over its data region.
func decodeParts(
	t *testing.T, builder *fstest.ImageBuilder,
) (fat12.VolumeGeometry, *fat12.FATTable, *fat12.ClusterAddressor) {
	source := builder.Source(t)

	bootSector := make([]byte, fat12.BootSectorSize)
	_, err := source.ReadAt(bootSector, 0)
	require.NoError(t, err)

	geometry, err := fat12.DecodeBootSector(bootSector)
	require.NoError(t, err)

	fat, err := fat12.LoadFAT(fat12.NewCursor(source, geometry.FATOffset()), &geometry)
	require.NoError(t, err)

	return geometry, fat, fat12.NewClusterAddressor(&geometry, fat, source, nil)
}

// sampleVolume builds the following tree:
//
//	SAMPLE       (volume label)
//	README.TXT   700 bytes, clusters 2 -> 3
//	DOCS/        cluster 4
//	  NOTES.TXT  10 bytes, cluster 5
//	  SUB/       cluster 6
//	    EMPTY    0 bytes, no cluster
//	AUTOEXEC.BAT 5 bytes, cluster 7
//
// The root directory also has a deleted entry between DOCS and AUTOEXEC.BAT.
func sampleVolume() (*fstest.ImageBuilder, []byte) {
	readme := bytes.Repeat([]byte("0123456789"), 70)

	builder := fstest.NewImageBuilder()
	builder.AddRootEntry(fstest.RawDirent("SAMPLE", "", fstest.AttrVolumeLabel, 0, 0)).
		AddRootEntry(fstest.RawDirent("README", "TXT", fstest.AttrArchived, 2, uint32(len(readme)))).
		AddRootEntry(fstest.RawDirent("DOCS", "", fstest.AttrDirectory, 4, 0)).
		AddRootEntry(deletedDirent("OLD", "TXT", 8, 100)).
		AddRootEntry(fstest.RawDirent("AUTOEXEC", "BAT", fstest.AttrReadOnly, 7, 5))

	// Pad README's second cluster with junk that must not show up in the file.
	builder.WriteChain(append(readme, bytes.Repeat([]byte{0xAA}, 100)...), 2, 3)

	builder.WriteCluster(4, fstest.DirectoryBlock(
		fstest.DotEntries(4, 0),
		fstest.RawDirent("NOTES", "TXT", 0, 5, 10),
		fstest.RawDirent("SUB", "", fstest.AttrDirectory, 6, 0),
	)).Chain(4)

	builder.WriteCluster(5, []byte("some notes and then some")).Chain(5)

	builder.WriteCluster(6, fstest.DirectoryBlock(
		fstest.DotEntries(6, 4),
		fstest.RawDirent("EMPTY", "", 0, 0, 0),
	)).Chain(6)

	builder.WriteCluster(7, []byte("@ECHO")).Chain(7)

	return builder, readme
}

func deletedDirent(name, ext string, firstCluster uint16, size uint32) []byte {
	record := fstest.RawDirent(name, ext, 0, firstCluster, size)
	record[0] = 0xE5
	return record
}

func openSample(t *testing.T) (*fat12.Volume, []byte) {
	builder, readme := sampleVolume()
	volume, err := fat12.Open(builder.Source(t))
	require.NoError(t, err)
	return volume, readme
}

func itemNames(items []fat12.Item) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name()
	}
	return names
}
