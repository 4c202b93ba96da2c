package fat12

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/floppyscope"
)

// FATTable is the primary copy of the file allocation table, exactly as it
// appears on disk. Entries are 12 bits wide and packed two to every three
// bytes, so they're decoded on demand instead of up front.
type FATTable struct {
	data []byte
}

// FATStats summarizes what the allocation table says about the data region.
type FATStats struct {
	Free       uint
	Used       uint
	Bad        uint
	Reserved   uint
	EndOfChain uint
}

// NewFATTable wraps the raw bytes of a FAT. The slice is used directly, not
// copied.
func NewFATTable(data []byte) *FATTable {
	return &FATTable{data: data}
}

// LoadFAT reads every copy of the FAT starting at the cursor's position and
// returns the primary copy. On success the cursor is left immediately after
// the last copy, which is where the root directory begins.
//
// All redundant copies must be byte-for-byte identical to the primary. If one
// isn't, this fails with [floppyscope.ErrFATMismatch] carrying the copy's
// index; 1 is the second FAT on the disk.
func LoadFAT(cursor *Cursor, geometry *VolumeGeometry) (*FATTable, error) {
	fatSize := int(geometry.FATSize())

	primary, err := cursor.Next(fatSize)
	if err != nil {
		return nil, err
	}

	for copyIndex := 1; copyIndex < int(geometry.NumFATs); copyIndex++ {
		redundant, err := cursor.Next(fatSize)
		if err != nil {
			return nil, err
		}

		if !bytes.Equal(primary, redundant) {
			return nil, floppyscope.ErrFATMismatch.AtIndex(
				int64(copyIndex),
				fmt.Sprintf(
					"FAT copy %d differs from the primary at byte %d",
					copyIndex,
					firstDifference(primary, redundant)))
		}
	}

	return NewFATTable(primary), nil
}

func firstDifference(left, right []byte) int {
	for i := range left {
		if left[i] != right[i] {
			return i
		}
	}
	return -1
}

// EntryCount gives the number of 12-bit entries the table can hold, including
// the two reserved ones at the beginning.
func (table *FATTable) EntryCount() uint {
	return uint(len(table.data)) * 2 / 3
}

// Contains returns true if `index` has an entry in the table.
func (table *FATTable) Contains(index ClusterID) bool {
	return uint(index) < table.EntryCount()
}

// EntryAt returns the raw 12-bit value of entry `index`. Indexes past the end
// of the table read as [ClusterBad].
func (table *FATTable) EntryAt(index ClusterID) uint16 {
	if !table.Contains(index) {
		return ClusterBad
	}

	// Entry i lives in the 16-bit little-endian word at byte 3i/2. Even entries
	// are the low 12 bits of that word, odd entries the high 12 bits.
	offset := (uint(index) * 3) / 2
	word := binary.LittleEndian.Uint16(table.data[offset : offset+2])
	if index%2 == 0 {
		return word & 0x0FFF
	}
	return word >> 4
}

// NextCluster gives the cluster following `index` in its chain. The second
// return value is false if `index` is the last cluster of the chain, or if
// its entry is free, reserved or marked bad.
//
// The returned cluster isn't guaranteed to be in the table; callers walking a
// chain need to check that themselves.
func (table *FATTable) NextCluster(index ClusterID) (ClusterID, bool) {
	value := table.EntryAt(index)
	if value < uint16(FirstDataCluster) || value >= ClusterReservedFirst {
		return 0, false
	}
	return ClusterID(value), true
}

// Bytes returns the table as it appears on disk. It must not be modified.
func (table *FATTable) Bytes() []byte {
	return table.data
}

// Stats counts the entries for clusters in [2, clusterCount + 2), i.e. the
// ones that refer to the data region.
func (table *FATTable) Stats(clusterCount uint) FATStats {
	stats := FATStats{}
	last := uint(FirstDataCluster) + clusterCount
	if last > table.EntryCount() {
		last = table.EntryCount()
	}

	for i := uint(FirstDataCluster); i < last; i++ {
		value := table.EntryAt(ClusterID(i))
		switch {
		case value == ClusterFree:
			stats.Free++
		case value == ClusterBad:
			stats.Bad++
		case IsReservedValue(value):
			stats.Reserved++
		case IsEndOfChain(value):
			stats.EndOfChain++
			stats.Used++
		default:
			stats.Used++
		}
	}
	return stats
}

// PackFAT encodes a list of 12-bit values into their on-disk form. Only the low
// 12 bits of each value are used. The output is 3*ceil(n/2) bytes long; if
// there's an odd number of entries, the unused high nybbles are zero.
func PackFAT(entries []uint16) []byte {
	packed := make([]byte, ((len(entries)+1)/2)*3)
	for i, value := range entries {
		value &= 0x0FFF
		offset := (i * 3) / 2
		if i%2 == 0 {
			packed[offset] = byte(value)
			packed[offset+1] = (packed[offset+1] & 0xF0) | byte(value>>8)
		} else {
			packed[offset] = (packed[offset] & 0x0F) | byte(value<<4)
			packed[offset+1] = byte(value >> 4)
		}
	}
	return packed
}
