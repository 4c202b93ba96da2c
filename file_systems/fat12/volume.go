package fat12

import (
	"io"

	"github.com/dargueta/floppyscope"
	"github.com/dargueta/floppyscope/file_systems/common/blockcache"
	"go.uber.org/zap"
)

// Volume is a fully decoded FAT12 image. Everything is read when the volume is
// opened; afterwards the image isn't touched again and a Volume is safe to
// share between goroutines.
type Volume struct {
	geometry  VolumeGeometry
	fat       *FATTable
	root      []Item
	addressor *ClusterAddressor
	logger    *zap.Logger
}

type options struct {
	logger         *zap.Logger
	cacheBlockSize uint
}

type Option func(*options)

// WithLogger sets the logger used while decoding. By default nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithCacheBlockSize sets the size of the blocks the image is read in. It
// defaults to 512, the smallest legal sector size.
func WithCacheBlockSize(size uint) Option {
	return func(opts *options) {
		opts.cacheBlockSize = size
	}
}

// Open decodes the image in `source`, failing on the first inconsistency it
// finds. The steps are, in order:
//
//  1. Decode the boot sector.
//  2. Load every copy of the FAT and make sure they're identical.
//  3. Read the root directory.
//  4. Recursively decode every subdirectory and file.
//
// No partial tree is returned on failure.
func Open(source floppyscope.ByteSource, opts ...Option) (*Volume, error) {
	config := options{
		logger:         zap.NewNop(),
		cacheBlockSize: BootSectorSize,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.logger

	cache, ok := source.(*blockcache.BlockCache)
	if !ok {
		cache = blockcache.WrapReaderAt(source, config.cacheBlockSize)
	}
	cursor := NewCursor(cache, 0)

	bootSector, err := cursor.Next(BootSectorSize)
	if err != nil {
		return nil, err
	}
	geometry, err := DecodeBootSector(bootSector)
	if err != nil {
		return nil, err
	}

	logger.Debug(
		"decoded boot sector",
		zap.String("oem", geometry.OEMName),
		zap.Uint16("bytesPerSector", geometry.BytesPerSector),
		zap.Uint8("sectorsPerCluster", geometry.SectorsPerCluster),
		zap.Uint16("reservedSectors", geometry.ReservedSectors),
		zap.Uint8("numFATs", geometry.NumFATs),
		zap.Uint16("maxRootEntries", geometry.MaxRootEntries),
		zap.Uint32("totalSectors", geometry.TotalSectors),
		zap.Uint16("sectorsPerFAT", geometry.SectorsPerFAT),
	)

	if source.Size() < geometry.TotalSize() {
		logger.Warn(
			"image is smaller than the volume",
			zap.Int64("imageSize", source.Size()),
			zap.Int64("volumeSize", geometry.TotalSize()),
		)
	}

	// The FAT starts after the reserved sectors, not after the 512 bytes we
	// decoded.
	cursor.Seek(geometry.FATOffset())
	fat, err := LoadFAT(cursor, &geometry)
	if err != nil {
		return nil, err
	}

	rootRecords, err := cursor.Next(int(geometry.RootDirSize()))
	if err != nil {
		return nil, err
	}

	addressor := NewClusterAddressor(&geometry, fat, cache, logger)
	builder := newTreeBuilder(addressor, logger)

	root, err := builder.buildDirectory(rootRecords, "/", nil)
	if err != nil {
		return nil, err
	}

	logger.Debug(
		"decoded volume",
		zap.Int("rootEntries", len(root)),
		zap.Uint("blocksRead", cache.LoadedBlocks()),
		zap.Uint("totalBlocks", cache.TotalBlocks()),
	)

	return &Volume{
		geometry:  geometry,
		fat:       fat,
		root:      root,
		addressor: addressor,
		logger:    logger,
	}, nil
}

// OpenStream is like [Open] but reads from a seekable stream instead of a
// random-access source. The stream must not be used by anything else until
// this returns.
func OpenStream(stream io.ReadSeeker, opts ...Option) (*Volume, error) {
	cache, err := blockcache.WrapStream(stream, BootSectorSize)
	if err != nil {
		return nil, err
	}
	return Open(cache, opts...)
}

// Geometry returns the decoded boot sector.
func (volume *Volume) Geometry() VolumeGeometry {
	return volume.geometry
}

// FAT returns the primary allocation table.
func (volume *Volume) FAT() *FATTable {
	return volume.fat
}

// Stats summarizes cluster allocation in the data region.
func (volume *Volume) Stats() FATStats {
	return volume.fat.Stats(volume.addressor.TotalClusters())
}

// RootEntries returns the top-level items, in on-disk order.
func (volume *Volume) RootEntries() []Item {
	root := make([]Item, len(volume.root))
	copy(root, volume.root)
	return root
}

// Label gives the volume label. The label entry in the root directory is
// preferred; if there isn't one, the label from the boot sector is used.
func (volume *Volume) Label() string {
	for _, item := range volume.root {
		if item.Kind() == KindVolumeLabel {
			return item.Name()
		}
	}
	return volume.geometry.VolumeLabel
}
