// Package fat12 implements a read-only decoder for FAT12 volume images.
//
// Opening a volume decodes the boot sector, verifies that every redundant copy
// of the FAT matches the first, and then walks the directory tree from the
// fixed-size root directory, following cluster chains through the FAT for
// every subdirectory and file. The result is an immutable tree of [Item]s that
// can be listed and extracted without going back to the image.
package fat12

import (
	"fmt"

	"github.com/dargueta/floppyscope"
)

type ClusterID uint16

// Special values of a FAT12 entry.
const (
	ClusterFree          = 0x000
	ClusterReserved      = 0x001
	ClusterReservedFirst = 0xFF0
	ClusterReservedLast  = 0xFF6
	ClusterBad           = 0xFF7
	ClusterEndOfChainMin = 0xFF8
	ClusterEndOfChain    = 0xFFF
)

// FirstDataCluster is the lowest cluster number that refers to the data
// region. Entries 0 and 1 of the FAT hold the media descriptor and aren't
// addressable.
const FirstDataCluster ClusterID = 2

// MaxClusters is the largest number of data clusters a volume can have and
// still be FAT12. Taken from Microsoft's FAT documentation, v1.03, page 14.
const MaxClusters = 4084

// IsEndOfChain returns true if `value` is one of the end-of-chain markers.
func IsEndOfChain(value uint16) bool {
	return value >= ClusterEndOfChainMin && value <= ClusterEndOfChain
}

// IsReservedValue returns true if `value` marks a reserved cluster.
func IsReservedValue(value uint16) bool {
	return value == ClusterReserved ||
		(value >= ClusterReservedFirst && value <= ClusterReservedLast)
}

// withPath attaches the path of the item being decoded to an error, keeping the
// error's kind and index intact.
func withPath(err error, path string) error {
	if driverErr, ok := err.(floppyscope.DriverError); ok {
		return driverErr.WithMessage(fmt.Sprintf("while reading %q", path))
	}
	return floppyscope.ErrIOFailed.Wrap(err).WithMessage(fmt.Sprintf("while reading %q", path))
}
