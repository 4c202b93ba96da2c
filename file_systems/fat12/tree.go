package fat12

import (
	"fmt"
	"path"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/floppyscope"
	"go.uber.org/zap"
)

// treeBuilder decodes directory blocks into items, recursing into
// subdirectories as it finds them.
type treeBuilder struct {
	addressor *ClusterAddressor
	logger    *zap.Logger
	// claimed marks every cluster that already belongs to a file or directory.
	// Each cluster has at most one owner.
	claimed bitmap.Bitmap
}

func newTreeBuilder(addressor *ClusterAddressor, logger *zap.Logger) *treeBuilder {
	return &treeBuilder{
		addressor: addressor,
		logger:    logger,
		claimed:   bitmap.New(int(addressor.fat.EntryCount())),
	}
}

// claimChain walks the chain starting at `start` and marks every cluster in it
// as owned by `itemPath`. A cluster that's already owned by another item fails
// with [floppyscope.ErrFileSystemCorrupted] carrying the cluster number.
func (builder *treeBuilder) claimChain(start ClusterID, itemPath string) ([]ClusterID, error) {
	chain, err := builder.addressor.ChainFrom(start)
	if err != nil {
		return nil, withPath(err, itemPath)
	}

	for _, cluster := range chain {
		if builder.claimed.Get(int(cluster)) {
			return nil, floppyscope.ErrFileSystemCorrupted.AtIndex(
				int64(cluster),
				fmt.Sprintf(
					"cluster %d of %q already belongs to another file or directory",
					cluster,
					itemPath))
		}
		builder.claimed.Set(int(cluster), true)
	}
	return chain, nil
}

// buildDirectory decodes every entry in `records`, the concatenated contents of
// a directory. `dirPath` is only used for error messages and logging.
// `ancestors` holds the first cluster of every directory between the root and
// this one, inclusive; the root directory isn't in a cluster and so never
// appears in it.
func (builder *treeBuilder) buildDirectory(
	records []byte,
	dirPath string,
	ancestors []ClusterID,
) ([]Item, error) {
	items := []Item{}

	for offset := 0; offset+DirentSize <= len(records); offset += DirentSize {
		entry := DecodeDirectoryEntry(records[offset : offset+DirentSize])

		if entry.IsEndOfDirectory() {
			break
		}
		if entry.IsDeleted() || entry.IsDotEntry() {
			continue
		}
		if entry.IsLongNameFragment() {
			builder.logger.Debug(
				"skipping long file name entry",
				zap.String("directory", dirPath),
				zap.Int("offset", offset),
			)
			continue
		}

		item, err := builder.buildItem(entry, dirPath, ancestors)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, nil
}

func (builder *treeBuilder) buildItem(
	entry DirectoryEntry,
	dirPath string,
	ancestors []ClusterID,
) (Item, error) {
	if entry.IsVolumeLabel() {
		return &VolumeLabel{itemBase{entry: entry}}, nil
	}

	itemPath := path.Join(dirPath, entry.ShortName())

	if entry.IsDirectory() {
		for _, ancestor := range ancestors {
			if ancestor == entry.FirstCluster {
				return nil, floppyscope.ErrFATCycle.AtIndex(
					int64(entry.FirstCluster),
					fmt.Sprintf(
						"directory %q points back to cluster %d, which contains it",
						itemPath,
						entry.FirstCluster))
			}
		}

		chain, err := builder.claimChain(entry.FirstCluster, itemPath)
		if err != nil {
			return nil, err
		}
		records, err := builder.addressor.readClusters(
			chain, int64(len(chain))*builder.addressor.BytesPerCluster())
		if err != nil {
			return nil, withPath(err, itemPath)
		}

		builder.logger.Debug(
			"reading directory",
			zap.String("path", itemPath),
			zap.Uint16("cluster", uint16(entry.FirstCluster)),
			zap.Int("size", len(records)),
		)

		// Copy so sibling directories don't share a backing array.
		childAncestors := make([]ClusterID, len(ancestors), len(ancestors)+1)
		copy(childAncestors, ancestors)
		childAncestors = append(childAncestors, entry.FirstCluster)

		children, err := builder.buildDirectory(records, itemPath, childAncestors)
		if err != nil {
			return nil, err
		}
		return &Directory{itemBase: itemBase{entry: entry}, children: children}, nil
	}

	// Empty files usually don't have a cluster allocated to them, so there's no
	// chain to follow.
	if entry.FileSize == 0 {
		return &File{itemBase: itemBase{entry: entry}, contents: []byte{}}, nil
	}

	chain, err := builder.claimChain(entry.FirstCluster, itemPath)
	if err != nil {
		return nil, err
	}
	contents, err := builder.addressor.readChainPrefix(chain, int64(entry.FileSize))
	if err != nil {
		return nil, withPath(err, itemPath)
	}

	builder.logger.Debug(
		"read file",
		zap.String("path", itemPath),
		zap.Uint16("cluster", uint16(entry.FirstCluster)),
		zap.Uint32("size", entry.FileSize),
	)
	return &File{itemBase: itemBase{entry: entry}, contents: contents}, nil
}
