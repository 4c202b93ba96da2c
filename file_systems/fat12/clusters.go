package fat12

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/floppyscope"
	"go.uber.org/zap"
)

// ClusterAddressor maps cluster numbers to their locations in the data region
// and follows cluster chains through the FAT.
type ClusterAddressor struct {
	fat             *FATTable
	source          floppyscope.ByteSource
	dataOffset      int64
	bytesPerCluster int64
	totalClusters   uint
	logger          *zap.Logger
}

// NewClusterAddressor creates an addressor for the data region described by
// `geometry`. Clusters that the boot sector claims exist but lie past the end
// of `source` are treated as out of range.
func NewClusterAddressor(
	geometry *VolumeGeometry,
	fat *FATTable,
	source floppyscope.ByteSource,
	logger *zap.Logger,
) *ClusterAddressor {
	if logger == nil {
		logger = zap.NewNop()
	}

	totalClusters := geometry.ClusterCount()
	available := source.Size() - geometry.DataOffset()
	if available < 0 {
		available = 0
	}
	if inImage := uint(available / geometry.BytesPerCluster()); inImage < totalClusters {
		logger.Warn(
			"image is truncated",
			zap.Uint("declaredClusters", totalClusters),
			zap.Uint("availableClusters", inImage),
		)
		totalClusters = inImage
	}

	return &ClusterAddressor{
		fat:             fat,
		source:          source,
		dataOffset:      geometry.DataOffset(),
		bytesPerCluster: geometry.BytesPerCluster(),
		totalClusters:   totalClusters,
		logger:          logger,
	}
}

// BytesPerCluster gives the size of a single cluster, in bytes.
func (addressor *ClusterAddressor) BytesPerCluster() int64 {
	return addressor.bytesPerCluster
}

// TotalClusters gives the number of clusters that can be read.
func (addressor *ClusterAddressor) TotalClusters() uint {
	return addressor.totalClusters
}

// ClusterRange gives the location of a cluster as an offset from the beginning
// of the data region, along with its length. Cluster 2 is at offset 0.
//
// Clusters 0 and 1 don't exist in the data region, so asking for them fails
// with [floppyscope.ErrClusterOutOfRange], as does any cluster past the end of
// the data region.
func (addressor *ClusterAddressor) ClusterRange(cluster ClusterID) (int64, int64, error) {
	if cluster < FirstDataCluster || uint(cluster-FirstDataCluster) >= addressor.totalClusters {
		return 0, 0, floppyscope.ErrClusterOutOfRange.AtIndex(
			int64(cluster),
			fmt.Sprintf(
				"cluster %d not in range [%d, %d)",
				cluster,
				FirstDataCluster,
				uint(FirstDataCluster)+addressor.totalClusters))
	}
	return int64(cluster-FirstDataCluster) * addressor.bytesPerCluster, addressor.bytesPerCluster, nil
}

// ReadCluster returns the contents of a single cluster.
func (addressor *ClusterAddressor) ReadCluster(cluster ClusterID) ([]byte, error) {
	start, length, err := addressor.ClusterRange(cluster)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, length)
	err = floppyscope.ReadFull(addressor.source, buffer, addressor.dataOffset+start)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// ChainFrom returns every cluster in the chain beginning at `start`, in order.
// The chain ends at the first cluster whose FAT entry doesn't point to another
// cluster (see [FATTable.NextCluster]).
//
// If the chain visits a cluster twice, this fails with [floppyscope.ErrFATCycle]
// with the index of that cluster. A chain that starts or continues outside of
// the FAT fails with [floppyscope.ErrClusterOutOfRange].
func (addressor *ClusterAddressor) ChainFrom(start ClusterID) ([]ClusterID, error) {
	if start < FirstDataCluster || !addressor.fat.Contains(start) {
		return nil, floppyscope.ErrClusterOutOfRange.AtIndex(
			int64(start),
			fmt.Sprintf(
				"chain can't start at cluster %d; must be in [%d, %d)",
				start,
				FirstDataCluster,
				addressor.fat.EntryCount()))
	}

	visited := bitmap.New(int(addressor.fat.EntryCount()))
	chain := []ClusterID{}
	current := start

	for {
		if visited.Get(int(current)) {
			return nil, floppyscope.ErrFATCycle.AtIndex(
				int64(current),
				fmt.Sprintf(
					"cluster %d appears twice in the chain starting at %d",
					current,
					start))
		}
		visited.Set(int(current), true)
		chain = append(chain, current)

		next, ok := addressor.fat.NextCluster(current)
		if !ok {
			if value := addressor.fat.EntryAt(current); !IsEndOfChain(value) {
				addressor.logger.Warn(
					"cluster chain ends without an end-of-chain marker",
					zap.Uint16("start", uint16(start)),
					zap.Uint16("cluster", uint16(current)),
					zap.String("entry", fmt.Sprintf("%#03x", value)),
				)
			}
			return chain, nil
		}

		if !addressor.fat.Contains(next) {
			return nil, floppyscope.ErrClusterOutOfRange.AtIndex(
				int64(next),
				fmt.Sprintf(
					"cluster %d in the chain starting at %d points to %d, past the end of the FAT",
					current,
					start,
					next))
		}
		current = next
	}
}

// ReadChain returns the contents of every cluster in the chain starting at
// `start`, concatenated in chain order.
func (addressor *ClusterAddressor) ReadChain(start ClusterID) ([]byte, error) {
	chain, err := addressor.ChainFrom(start)
	if err != nil {
		return nil, err
	}
	return addressor.readClusters(chain, int64(len(chain))*addressor.bytesPerCluster)
}

// ReadChainPrefix returns the first `size` bytes of the chain starting at
// `start`. The entire chain is still walked, but clusters after the first
// `size` bytes aren't read.
//
// If the chain is too short to hold `size` bytes, this fails with
// [floppyscope.ErrFileSystemCorrupted].
func (addressor *ClusterAddressor) ReadChainPrefix(start ClusterID, size int64) ([]byte, error) {
	chain, err := addressor.ChainFrom(start)
	if err != nil {
		return nil, err
	}
	return addressor.readChainPrefix(chain, size)
}

// readChainPrefix is [ClusterAddressor.ReadChainPrefix] for a chain that has
// already been walked.
func (addressor *ClusterAddressor) readChainPrefix(chain []ClusterID, size int64) ([]byte, error) {
	start := chain[0]
	chainBytes := int64(len(chain)) * addressor.bytesPerCluster
	if chainBytes < size {
		return nil, floppyscope.ErrFileSystemCorrupted.AtIndex(
			int64(start),
			fmt.Sprintf(
				"chain starting at cluster %d has %d clusters (%d bytes), need %d bytes",
				start,
				len(chain),
				chainBytes,
				size))
	}
	return addressor.readClusters(chain, size)
}

// readClusters concatenates the contents of `chain`, stopping after `size`
// bytes.
func (addressor *ClusterAddressor) readClusters(chain []ClusterID, size int64) ([]byte, error) {
	contents := make([]byte, size)
	written := int64(0)

	for _, cluster := range chain {
		if written >= size {
			break
		}

		start, length, err := addressor.ClusterRange(cluster)
		if err != nil {
			return nil, err
		}
		if remaining := size - written; length > remaining {
			length = remaining
		}

		err = floppyscope.ReadFull(
			addressor.source,
			contents[written:written+length],
			addressor.dataOffset+start)
		if err != nil {
			return nil, err
		}
		written += length
	}
	return contents, nil
}
