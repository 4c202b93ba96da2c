package fat12

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/floppyscope"
)

// BootSectorSize is the number of bytes of the boot sector that are decoded.
// It's also the smallest sector size the decoder accepts.
const BootSectorSize = 512

// VolumeGeometry is the decoded form of the boot sector: the BIOS Parameter
// Block plus the FAT12 extended fields. It's created once when a volume is
// opened and never changes afterwards.
type VolumeGeometry struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	MaxRootEntries    uint16
	TotalSectors      uint32
	MediaDescriptor   uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	DriveNumber       uint8
	// BootSignature is the extended boot signature, always 0x28 or 0x29.
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    string
	FileSystemType string
	// BootSectorMarker is the two bytes at the end of the boot sector. It should
	// be 0xAA55 but many images don't bother, so it isn't checked.
	BootSectorMarker uint16
}

// DecodeBootSector decodes the first sector of an image. `sector` must be at
// least [BootSectorSize] bytes long.
//
// It fails with [floppyscope.ErrInvalidSignature] if the extended boot
// signature isn't 0x28 or 0x29, and with [floppyscope.ErrFileSystemCorrupted]
// if any of the counts needed to find the FAT, root directory, or data region
// are zero or nonsensical.
func DecodeBootSector(sector []byte) (VolumeGeometry, error) {
	if len(sector) < BootSectorSize {
		return VolumeGeometry{}, floppyscope.ErrIOFailed.WithMessage(
			fmt.Sprintf("boot sector must be at least %d bytes, got %d", BootSectorSize, len(sector)))
	}

	signature := sector[38]
	if signature != 0x28 && signature != 0x29 {
		return VolumeGeometry{}, floppyscope.ErrInvalidSignature.AtIndex(
			int64(signature),
			fmt.Sprintf("expected 0x28 or 0x29 at offset 38, got %#02x", signature))
	}

	geometry := VolumeGeometry{
		OEMName:           paddedString(sector[3:11]),
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		ReservedSectors:   binary.LittleEndian.Uint16(sector[14:16]),
		NumFATs:           sector[16],
		MaxRootEntries:    binary.LittleEndian.Uint16(sector[17:19]),
		TotalSectors:      uint32(binary.LittleEndian.Uint16(sector[19:21])),
		MediaDescriptor:   sector[21],
		SectorsPerFAT:     binary.LittleEndian.Uint16(sector[22:24]),
		SectorsPerTrack:   binary.LittleEndian.Uint16(sector[24:26]),
		NumHeads:          binary.LittleEndian.Uint16(sector[26:28]),
		HiddenSectors:     binary.LittleEndian.Uint32(sector[28:32]),
		DriveNumber:       sector[36],
		BootSignature:     signature,
		VolumeID:          binary.LittleEndian.Uint32(sector[39:43]),
		VolumeLabel:       paddedString(sector[43:54]),
		FileSystemType:    paddedString(sector[54:62]),
		BootSectorMarker:  binary.LittleEndian.Uint16(sector[510:512]),
	}

	// The 16-bit sector count is zero if the volume has 65,536 or more sectors,
	// in which case the 32-bit field holds it. That's far too big for FAT12 but
	// we'll let the cluster count check below reject it.
	if geometry.TotalSectors == 0 {
		geometry.TotalSectors = binary.LittleEndian.Uint32(sector[32:36])
	}

	err := geometry.validate()
	if err != nil {
		return VolumeGeometry{}, err
	}
	return geometry, nil
}

func (g *VolumeGeometry) validate() error {
	// BytesPerSector must be 512, 1024, 2048, or 4096.
	switch g.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return floppyscope.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"BytesPerSector must be 512, 1024, 2048, or 4096, got %d",
				g.BytesPerSector))
	}

	// SectorsPerCluster must be 2^x with x in [0, 8)
	switch g.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return floppyscope.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"SectorsPerCluster must be a power of 2 in 1-128, got %d",
				g.SectorsPerCluster))
	}

	if g.ReservedSectors == 0 {
		return floppyscope.ErrFileSystemCorrupted.WithMessage(
			"ReservedSectors must be at least 1 to hold the boot sector")
	}
	if g.NumFATs == 0 {
		return floppyscope.ErrFileSystemCorrupted.WithMessage("NumFATs must be at least 1")
	}
	if g.SectorsPerFAT == 0 {
		return floppyscope.ErrFileSystemCorrupted.WithMessage("SectorsPerFAT must be at least 1")
	}
	if g.MaxRootEntries == 0 {
		return floppyscope.ErrFileSystemCorrupted.WithMessage("MaxRootEntries must be at least 1")
	}

	firstDataSector := g.DataOffset() / int64(g.BytesPerSector)
	if int64(g.TotalSectors) < firstDataSector {
		return floppyscope.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"volume has %d sectors but the data region starts at sector %d",
				g.TotalSectors,
				firstDataSector))
	}

	if g.ClusterCount() > MaxClusters {
		return floppyscope.ErrNotSupported.WithMessage(
			fmt.Sprintf(
				"volume has %d clusters, too many for FAT12 (max %d)",
				g.ClusterCount(),
				MaxClusters))
	}
	return nil
}

// BytesPerCluster gives the size of a single cluster, in bytes.
func (g *VolumeGeometry) BytesPerCluster() int64 {
	return int64(g.SectorsPerCluster) * int64(g.BytesPerSector)
}

// FATSize gives the size of a single copy of the FAT, in bytes.
func (g *VolumeGeometry) FATSize() int64 {
	return int64(g.SectorsPerFAT) * int64(g.BytesPerSector)
}

// FATOffset gives the byte offset of the first copy of the FAT. It comes
// immediately after the reserved sectors, the first of which is the boot
// sector.
func (g *VolumeGeometry) FATOffset() int64 {
	return int64(g.ReservedSectors) * int64(g.BytesPerSector)
}

// RootDirOffset gives the byte offset of the root directory, which
// immediately follows the last copy of the FAT.
func (g *VolumeGeometry) RootDirOffset() int64 {
	return g.FATOffset() + int64(g.NumFATs)*g.FATSize()
}

// RootDirSize gives the size of the root directory, in bytes. This is always a
// whole number of directory entries but not necessarily a whole number of
// sectors.
func (g *VolumeGeometry) RootDirSize() int64 {
	return int64(g.MaxRootEntries) * DirentSize
}

// DataOffset gives the byte offset of cluster 2, the first cluster of the data
// region. The root directory is rounded up to a whole number of sectors.
func (g *VolumeGeometry) DataOffset() int64 {
	bytesPerSector := int64(g.BytesPerSector)
	rootDirSectors := (g.RootDirSize() + bytesPerSector - 1) / bytesPerSector
	return g.RootDirOffset() + rootDirSectors*bytesPerSector
}

// TotalSize gives the size of the volume according to the boot sector. The
// image may be larger or (if truncated) smaller.
func (g *VolumeGeometry) TotalSize() int64 {
	return int64(g.TotalSectors) * int64(g.BytesPerSector)
}

// ClusterCount gives the number of whole clusters in the data region. A
// partial cluster at the end of the volume is ignored.
func (g *VolumeGeometry) ClusterCount() uint {
	dataBytes := g.TotalSize() - g.DataOffset()
	if dataBytes <= 0 {
		return 0
	}
	return uint(dataBytes / g.BytesPerCluster())
}

// paddedString converts a fixed-width, space-padded field into a string.
func paddedString(field []byte) string {
	field = bytes.TrimRight(field, " \x00")
	return string(field)
}
