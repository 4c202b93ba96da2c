package testing

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Attribute bits, repeated here so tests can build records without pulling in
// the package under test.
const (
	AttrReadOnly    = 0x01
	AttrHidden      = 0x02
	AttrSystem      = 0x04
	AttrVolumeLabel = 0x08
	AttrDirectory   = 0x10
	AttrArchived    = 0x20
)

// rawBootSector is the on-disk layout of the first 62 bytes of a FAT12 boot
// sector.
type rawBootSector struct {
	JumpInstruction   [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	MaxRootEntries    uint16
	TotalSectors      uint16
	MediaDescriptor   uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	DriveNumber       uint8
	Reserved          uint8
	BootSignature     uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
}

type fatPatch struct {
	copyIndex  int
	byteOffset int
}

// ImageBuilder assembles small FAT12 images in memory. The exported fields go
// straight into the boot sector and can be changed freely before calling
// Build; they're not validated, so it's possible to build broken images on
// purpose.
type ImageBuilder struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	MaxRootEntries    uint16
	TotalSectors      uint16
	MediaDescriptor   uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	BootSignature     uint8
	VolumeID          uint32
	VolumeLabel       string
	FileSystemType    string

	fat        map[uint16]uint16
	root       [][]byte
	clusters   map[uint16][]byte
	fatPatches []fatPatch
}

// NewImageBuilder creates a builder for a tiny volume: 512-byte sectors, one
// sector per cluster, two FATs of one sector each, 16 root directory entries,
// and 64 sectors in total. That leaves 60 data clusters, numbered 2 through 61.
func NewImageBuilder() *ImageBuilder {
	return &ImageBuilder{
		OEMName:           "MSDOS5.0",
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		MaxRootEntries:    16,
		TotalSectors:      64,
		MediaDescriptor:   0xF0,
		SectorsPerFAT:     1,
		SectorsPerTrack:   18,
		NumHeads:          2,
		BootSignature:     0x29,
		VolumeID:          0x1234ABCD,
		VolumeLabel:       "NO NAME",
		FileSystemType:    "FAT12",
		fat:               map[uint16]uint16{},
		clusters:          map[uint16][]byte{},
	}
}

// SetFATEntry sets a single entry in every copy of the FAT.
func (builder *ImageBuilder) SetFATEntry(cluster, value uint16) *ImageBuilder {
	builder.fat[cluster] = value & 0x0FFF
	return builder
}

// Chain links the given clusters together in order and terminates the last one
// with 0xFFF.
func (builder *ImageBuilder) Chain(clusters ...uint16) *ImageBuilder {
	for i, cluster := range clusters {
		if i == len(clusters)-1 {
			builder.SetFATEntry(cluster, 0xFFF)
		} else {
			builder.SetFATEntry(cluster, clusters[i+1])
		}
	}
	return builder
}

// WriteCluster sets the contents of a cluster. `data` is zero-padded or
// truncated to the cluster size when the image is built.
func (builder *ImageBuilder) WriteCluster(cluster uint16, data []byte) *ImageBuilder {
	builder.clusters[cluster] = data
	return builder
}

// WriteChain spreads `data` over the given clusters in order, and chains them
// together.
func (builder *ImageBuilder) WriteChain(data []byte, clusters ...uint16) *ImageBuilder {
	clusterSize := builder.BytesPerCluster()
	for i, cluster := range clusters {
		start := i * clusterSize
		end := start + clusterSize
		if start > len(data) {
			start = len(data)
		}
		if end > len(data) {
			end = len(data)
		}
		builder.WriteCluster(cluster, data[start:end])
	}
	return builder.Chain(clusters...)
}

// AddRootEntry appends a record to the root directory.
func (builder *ImageBuilder) AddRootEntry(record []byte) *ImageBuilder {
	builder.root = append(builder.root, record)
	return builder
}

// CorruptFATCopy flips every bit of one byte in a redundant copy of the FAT.
// `copyIndex` 0 is the primary.
func (builder *ImageBuilder) CorruptFATCopy(copyIndex, byteOffset int) *ImageBuilder {
	builder.fatPatches = append(builder.fatPatches, fatPatch{copyIndex, byteOffset})
	return builder
}

func (builder *ImageBuilder) BytesPerCluster() int {
	return int(builder.BytesPerSector) * int(builder.SectorsPerCluster)
}

func (builder *ImageBuilder) fatOffset() int {
	return int(builder.ReservedSectors) * int(builder.BytesPerSector)
}

func (builder *ImageBuilder) fatSize() int {
	return int(builder.SectorsPerFAT) * int(builder.BytesPerSector)
}

func (builder *ImageBuilder) rootDirOffset() int {
	return builder.fatOffset() + int(builder.NumFATs)*builder.fatSize()
}

// DataOffset gives the byte offset of cluster 2 in the built image.
func (builder *ImageBuilder) DataOffset() int {
	bytesPerSector := int(builder.BytesPerSector)
	rootDirSize := int(builder.MaxRootEntries) * 32
	rootDirSectors := (rootDirSize + bytesPerSector - 1) / bytesPerSector
	return builder.rootDirOffset() + rootDirSectors*bytesPerSector
}

// Build returns the finished image.
func (builder *ImageBuilder) Build(t *testing.T) []byte {
	imageSize := int(builder.TotalSectors) * int(builder.BytesPerSector)
	require.GreaterOrEqual(t, imageSize, 512, "image must be at least one sector")
	image := make([]byte, imageSize)

	builder.writeBootSector(t, image[:512])

	packedFAT := builder.packFAT()
	require.LessOrEqualf(
		t, len(packedFAT), builder.fatSize(), "FAT entries don't fit in %d sectors", builder.SectorsPerFAT)
	for copyIndex := 0; copyIndex < int(builder.NumFATs); copyIndex++ {
		start := builder.fatOffset() + copyIndex*builder.fatSize()
		copy(image[start:start+builder.fatSize()], packedFAT)
	}
	for _, patch := range builder.fatPatches {
		offset := builder.fatOffset() + patch.copyIndex*builder.fatSize() + patch.byteOffset
		image[offset] ^= 0xFF
	}

	require.LessOrEqual(
		t, len(builder.root), int(builder.MaxRootEntries), "too many root directory entries")
	for i, record := range builder.root {
		start := builder.rootDirOffset() + i*32
		copy(image[start:start+32], record)
	}

	clusterSize := builder.BytesPerCluster()
	for cluster, data := range builder.clusters {
		require.GreaterOrEqualf(t, cluster, uint16(2), "cluster %d isn't in the data region", cluster)
		start := builder.DataOffset() + int(cluster-2)*clusterSize
		require.LessOrEqualf(t, start+clusterSize, len(image), "cluster %d is past the end of the image", cluster)

		if len(data) > clusterSize {
			data = data[:clusterSize]
		}
		copy(image[start:start+clusterSize], data)
	}

	return image
}

// Source builds the image and wraps it in a reader that satisfies
// floppyscope.ByteSource.
func (builder *ImageBuilder) Source(t *testing.T) *bytes.Reader {
	return bytes.NewReader(builder.Build(t))
}

// Stream builds the image and wraps it in a seekable stream.
func (builder *ImageBuilder) Stream(t *testing.T) io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(builder.Build(t))
}

func (builder *ImageBuilder) writeBootSector(t *testing.T, sector []byte) {
	header := rawBootSector{
		JumpInstruction:   [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    builder.BytesPerSector,
		SectorsPerCluster: builder.SectorsPerCluster,
		ReservedSectors:   builder.ReservedSectors,
		NumFATs:           builder.NumFATs,
		MaxRootEntries:    builder.MaxRootEntries,
		TotalSectors:      builder.TotalSectors,
		MediaDescriptor:   builder.MediaDescriptor,
		SectorsPerFAT:     builder.SectorsPerFAT,
		SectorsPerTrack:   builder.SectorsPerTrack,
		NumHeads:          builder.NumHeads,
		BootSignature:     builder.BootSignature,
		VolumeID:          builder.VolumeID,
	}
	copy(header.OEMName[:], padded(builder.OEMName, 8))
	copy(header.VolumeLabel[:], padded(builder.VolumeLabel, 11))
	copy(header.FileSystemType[:], padded(builder.FileSystemType, 8))

	writer := bytewriter.New(sector)
	err := binary.Write(writer, binary.LittleEndian, &header)
	require.NoError(t, err, "failed to write boot sector header")

	sector[510] = 0x55
	sector[511] = 0xAA
}

// packFAT encodes the FAT. Entries 0 and 1 always hold the media descriptor and
// an end-of-chain marker.
func (builder *ImageBuilder) packFAT() []byte {
	entries := map[uint16]uint16{
		0: 0xF00 | uint16(builder.MediaDescriptor),
		1: 0xFFF,
	}
	maxIndex := uint16(1)
	for index, value := range builder.fat {
		entries[index] = value
		if index > maxIndex {
			maxIndex = index
		}
	}

	packed := make([]byte, ((int(maxIndex)+2)/2)*3)
	for index, value := range entries {
		offset := (int(index) * 3) / 2
		word := binary.LittleEndian.Uint16(packed[offset : offset+2])
		if index%2 == 0 {
			word = (word & 0xF000) | value
		} else {
			word = (word & 0x000F) | (value << 4)
		}
		binary.LittleEndian.PutUint16(packed[offset:offset+2], word)
	}
	return packed
}

// RawDirent builds a 32-byte directory record. `name` and `ext` are
// space-padded; timestamps are left zeroed.
func RawDirent(name, ext string, attributes uint8, firstCluster uint16, size uint32) []byte {
	record := make([]byte, 32)
	copy(record[0:8], padded(name, 8))
	copy(record[8:11], padded(ext, 3))
	record[11] = attributes
	binary.LittleEndian.PutUint16(record[26:28], firstCluster)
	binary.LittleEndian.PutUint32(record[28:32], size)
	return record
}

// DotEntries returns the "." and ".." records found at the beginning of every
// subdirectory. `parent` is 0 if the parent is the root directory.
func DotEntries(self, parent uint16) []byte {
	block := RawDirent(".", "", AttrDirectory, self, 0)
	return append(block, RawDirent("..", "", AttrDirectory, parent, 0)...)
}

// DirectoryBlock concatenates records into the contents of a directory.
func DirectoryBlock(records ...[]byte) []byte {
	return bytes.Join(records, nil)
}

func padded(value string, width int) []byte {
	field := bytes.Repeat([]byte{' '}, width)
	copy(field, value)
	return field
}
