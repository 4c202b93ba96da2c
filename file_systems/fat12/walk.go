package fat12

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/dargueta/floppyscope"
)

// SkipDir can be returned by a [WalkFunc] to skip the contents of the directory
// it was just called for. It's the same value as [fs.SkipDir].
var SkipDir = fs.SkipDir

// WalkFunc is called once for every item in a volume. `itemPath` is absolute
// and uses forward slashes, e.g. "/DOCS/README.TXT".
type WalkFunc func(itemPath string, item Item) error

// Walk calls `fn` for every item in the volume, depth first, in on-disk order.
// A directory is visited before its children. Volume labels are included.
//
// If `fn` returns [SkipDir] for a directory, its children are skipped. If it
// returns SkipDir for anything else, the remaining items in the same directory
// are skipped, as with [fs.WalkDir]. Any other error stops the walk and is
// returned.
func (volume *Volume) Walk(fn WalkFunc) error {
	return walkItems(volume.root, "/", fn)
}

func walkItems(items []Item, dirPath string, fn WalkFunc) error {
	for _, item := range items {
		itemPath := path.Join(dirPath, item.Name())
		err := fn(itemPath, item)

		dir, isDir := item.(*Directory)
		if errors.Is(err, SkipDir) {
			if isDir {
				continue
			}
			// Returned for a file, so skip the rest of its parent directory.
			return nil
		} else if err != nil {
			return err
		}

		if isDir {
			err = walkItems(dir.children, itemPath, fn)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Lookup finds an item by its absolute path. Case is ignored. Volume labels
// can't be looked up this way; use [Volume.Label].
//
// It fails with [floppyscope.ErrNotFound] if any component of the path doesn't
// exist, and [floppyscope.ErrNotADirectory] if a component other than the last
// is a file.
func (volume *Volume) Lookup(itemPath string) (Item, error) {
	components := splitPath(itemPath)
	if len(components) == 0 {
		return nil, floppyscope.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q doesn't name an item", itemPath))
	}

	current := volume.root
	walked := "/"

	for i, component := range components {
		item, found := findChild(current, component)
		if !found {
			return nil, floppyscope.ErrNotFound.WithMessage(
				fmt.Sprintf("%q has no entry named %q", walked, component))
		}
		if i == len(components)-1 {
			return item, nil
		}

		walked = path.Join(walked, item.Name())
		dir, ok := item.(*Directory)
		if !ok {
			return nil, floppyscope.ErrNotADirectory.WithMessage(walked)
		}
		current = dir.children
	}

	// Unreachable; the loop always returns on the last component.
	return nil, floppyscope.ErrNotFound
}

// splitPath breaks a path into its components, ignoring empty ones. DOS-style
// backslashes are accepted as separators.
func splitPath(itemPath string) []string {
	itemPath = strings.ReplaceAll(itemPath, "\\", "/")
	components := []string{}
	for _, component := range strings.Split(itemPath, "/") {
		if component != "" && component != "." {
			components = append(components, component)
		}
	}
	return components
}

// ReadFileBytes returns the contents of a file. It fails with
// [floppyscope.ErrIsADirectory] for anything that isn't a [*File].
func ReadFileBytes(item Item) ([]byte, error) {
	file, ok := item.(*File)
	if !ok {
		return nil, floppyscope.ErrIsADirectory.WithMessage(
			fmt.Sprintf("%q is a %s, not a file", item.Name(), item.Kind()))
	}
	return file.Bytes(), nil
}
