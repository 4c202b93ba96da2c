// Package disks is a catalogue of physical floppy disk formats, used to put a
// name to the geometry found in a boot sector.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dargueta/floppyscope"
	"github.com/gocarina/gocsv"
)

////////////////////////////////////////////////////////////////////////////////
// Geometry

type DiskGeometry struct {
	Name               string `csv:"name"`
	Slug               string `csv:"slug"`
	FirstYearAvailable uint   `csv:"first_year_available"`
	FormFactor         string `csv:"form_factor"`
	IsRemovable        uint   `csv:"is_removable"`

	// BitsPerAddressUnit gives the number of bits in the device's smallest
	// addressible unit of memory. For every format here it's a byte (8).
	BitsPerAddressUnit uint `csv:"bits_per_address_unit"`

	// AddressUnitsPerSector gives the number of address units in a sector, or
	// "record".
	AddressUnitsPerSector uint `csv:"address_units_per_sector"`
	SectorsPerTrack       uint `csv:"sectors_per_track"`

	// TotalDataTracks gives the number of data tracks per head.
	TotalDataTracks uint `csv:"total_data_tracks"`
	HiddenTracks    uint `csv:"hidden_tracks"`
	// Heads gives the number of heads in the device.
	Heads uint   `csv:"heads"`
	Notes string `csv:"notes"`
}

// TotalSectors gives the number of data sectors on the disk.
func (g *DiskGeometry) TotalSectors() uint {
	return g.SectorsPerTrack * g.TotalDataTracks * g.Heads
}

// TotalSizeBytes gives the size of the storage device, rounded up to the nearest
// byte. This gives the minimum size of the image file.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	bits := int64(
		g.BitsPerAddressUnit * g.AddressUnitsPerSector * g.SectorsPerTrack *
			g.TotalDataTracks * g.Heads)
	if bits%8 == 0 {
		return bits / 8
	}
	return (bits / 8) + 1
}

////////////////////////////////////////////////////////////////////////////////

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries []DiskGeometry
var diskGeometriesBySlug map[string]DiskGeometry

func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometriesBySlug[slug]
	if ok {
		return geometry, nil
	}

	return DiskGeometry{}, floppyscope.ErrNotFound.WithMessage(
		fmt.Sprintf("no predefined disk geometry exists with slug %q", slug))
}

// All returns every known format, in catalogue order.
func All() []DiskGeometry {
	geometries := make([]DiskGeometry, len(diskGeometries))
	copy(geometries, diskGeometries)
	return geometries
}

// Match finds the physical format a volume was most likely written on. Every
// field must match exactly; there's no fuzzy matching.
func Match(bytesPerSector, sectorsPerTrack, heads, totalSectors uint) (DiskGeometry, bool) {
	for _, geometry := range diskGeometries {
		if geometry.BitsPerAddressUnit == 8 &&
			geometry.AddressUnitsPerSector == bytesPerSector &&
			geometry.SectorsPerTrack == sectorsPerTrack &&
			geometry.Heads == heads &&
			geometry.TotalSectors() == totalSectors {
			return geometry, true
		}
	}
	return DiskGeometry{}, false
}

func loadGeometries(rawCSV string) ([]DiskGeometry, error) {
	csvReader := csv.NewReader(strings.NewReader(rawCSV))
	csvReader.Comma = '|'

	rows := []DiskGeometry{}
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode disk geometries: %w", err)
	}

	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		if previous, exists := seen[row.Slug]; exists {
			return nil, fmt.Errorf(
				"duplicate definition for disk %q found on rows %d and %d",
				row.Slug,
				previous+1,
				i+1)
		}
		seen[row.Slug] = i
	}
	return rows, nil
}

func init() {
	rows, err := loadGeometries(diskGeometriesRawCSV)
	if err != nil {
		panic(err)
	}

	diskGeometries = rows
	diskGeometriesBySlug = make(map[string]DiskGeometry, len(rows))
	for _, row := range rows {
		diskGeometriesBySlug[row.Slug] = row
	}
}
