// Package exporter copies the contents of a decoded volume onto a real (or
// in-memory) file system.
package exporter

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"

	"github.com/dargueta/floppyscope"
	"github.com/dargueta/floppyscope/file_systems/fat12"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ProgressFunc is called after each file is written, with the number of bytes
// in that file.
type ProgressFunc func(itemPath string, written int64)

type Exporter struct {
	Fs afero.Fs
	// Location is the directory the volume's root directory is written to. It's
	// created if it doesn't exist.
	Location string
	// Hash is either empty, "MD5" or "SHA1". If set, a digest of every exported
	// file is recorded in the result.
	Hash string
	// PreserveTimes sets the modification time of every file to the one
	// recorded in its directory entry.
	PreserveTimes bool
	Progress      ProgressFunc
	Logger        *zap.Logger
}

type Result struct {
	Files       int
	Directories int
	Bytes       int64
	// Digests maps the path of every file within the volume to the hex-encoded
	// digest of its contents. It's nil if no hash was requested.
	Digests map[string]string
}

// TotalFileBytes gives the combined size of every file in the volume, for
// sizing progress bars.
func TotalFileBytes(volume *fat12.Volume) int64 {
	total := int64(0)
	volume.Walk(func(itemPath string, item fat12.Item) error {
		if file, ok := item.(*fat12.File); ok {
			total += file.Size()
		}
		return nil
	})
	return total
}

func (exp Exporter) newHash() (hash.Hash, error) {
	switch strings.ToUpper(exp.Hash) {
	case "":
		return nil, nil
	case "MD5":
		return md5.New(), nil
	case "SHA1":
		return sha1.New(), nil
	default:
		return nil, floppyscope.ErrNotSupported.WithMessage(
			fmt.Sprintf("only supported hashes are MD5 or SHA1 and not %q", exp.Hash))
	}
}

// Export writes every file and directory in the volume under Location. Volume
// labels are skipped. Files are written 0644, or 0444 if marked read-only.
//
// A file that can't be written doesn't stop the export; all such errors are
// collected and returned together once everything else has been written.
func (exp Exporter) Export(volume *fat12.Volume) (Result, error) {
	logger := exp.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result := Result{}
	if _, err := exp.newHash(); err != nil {
		return result, err
	}
	if exp.Hash != "" {
		result.Digests = map[string]string{}
	}

	err := exp.Fs.MkdirAll(exp.Location, 0o750)
	if err != nil && !os.IsExist(err) {
		return result, floppyscope.ErrIOFailed.Wrap(err)
	}

	var allErrors *multierror.Error
	volume.Walk(func(itemPath string, item fat12.Item) error {
		fullPath := exp.hostPath(itemPath)

		switch typed := item.(type) {
		case *fat12.VolumeLabel:
			return nil
		case *fat12.Directory:
			err := exp.Fs.MkdirAll(fullPath, 0o750)
			if err != nil {
				logger.Error("failed to create directory", zap.String("path", fullPath), zap.Error(err))
				allErrors = multierror.Append(allErrors, fmt.Errorf("%s: %w", itemPath, err))
				return fat12.SkipDir
			}
			result.Directories++
		case *fat12.File:
			digest, err := exp.writeFile(fullPath, typed)
			if err != nil {
				logger.Error("failed to export file", zap.String("path", fullPath), zap.Error(err))
				allErrors = multierror.Append(allErrors, fmt.Errorf("%s: %w", itemPath, err))
				return nil
			}

			logger.Debug("exported file", zap.String("path", fullPath), zap.Int64("size", typed.Size()))
			result.Files++
			result.Bytes += typed.Size()
			if result.Digests != nil {
				result.Digests[itemPath] = digest
			}
			if exp.Progress != nil {
				exp.Progress(itemPath, typed.Size())
			}
		}
		return nil
	})

	return result, allErrors.ErrorOrNil()
}

// hostPath converts an absolute path within the volume into one under Location.
func (exp Exporter) hostPath(itemPath string) string {
	return filepath.Join(exp.Location, filepath.FromSlash(strings.TrimPrefix(itemPath, "/")))
}

func (exp Exporter) writeFile(fullPath string, file *fat12.File) (string, error) {
	contents := file.Bytes()
	perm := os.FileMode(0o644)
	if file.Entry().Attributes.Has(floppyscope.AttrReadOnly) {
		perm = 0o444
	}

	err := afero.WriteFile(exp.Fs, fullPath, contents, perm)
	if err != nil {
		return "", err
	}

	if exp.PreserveTimes {
		modTime := file.Info().ModTime()
		if !modTime.IsZero() {
			err = exp.Fs.Chtimes(fullPath, modTime, modTime)
			if err != nil {
				return "", err
			}
		}
	}

	hasher, _ := exp.newHash()
	if hasher == nil {
		return "", nil
	}
	hasher.Write(contents)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
