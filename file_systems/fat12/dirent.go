package fat12

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/dargueta/floppyscope"
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// Markers found in the first byte of a directory entry's name.
const (
	// direntEndOfDirectory means this entry and all following it are unused.
	direntEndOfDirectory = 0x00
	// direntDeleted marks an entry whose file was deleted.
	direntDeleted = 0xE5
	// direntEscapedE5 stands in for a real 0xE5 as the first character of a
	// name, since that would otherwise look deleted.
	direntEscapedE5 = 0x05
)

// attrLongName is the attribute combination used by VFAT long file name
// entries.
const attrLongName = floppyscope.AttrReadOnly |
	floppyscope.AttrHidden |
	floppyscope.AttrSystem |
	floppyscope.AttrVolumeLabel

// DirectoryEntry is a single 32-byte directory record, broken down into its
// constituent fields. Nothing is validated when decoding; interpreting the
// fields is up to the caller.
type DirectoryEntry struct {
	Name              [8]byte
	Extension         [3]byte
	Attributes        floppyscope.AttributeFlags
	Reserved          uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	// FirstClusterHigh is only meaningful on FAT32. It's kept so that records
	// can be reproduced exactly but is otherwise ignored.
	FirstClusterHigh uint16
	LastModifiedTime uint16
	LastModifiedDate uint16
	FirstCluster     ClusterID
	FileSize         uint32
}

// DecodeDirectoryEntry decodes a single record. `record` must be at least
// [DirentSize] bytes; anything after that is ignored.
func DecodeDirectoryEntry(record []byte) DirectoryEntry {
	entry := DirectoryEntry{
		Attributes:        floppyscope.AttributeFlags(record[11]),
		Reserved:          record[12],
		CreatedTimeTenths: record[13],
		CreatedTime:       binary.LittleEndian.Uint16(record[14:16]),
		CreatedDate:       binary.LittleEndian.Uint16(record[16:18]),
		LastAccessedDate:  binary.LittleEndian.Uint16(record[18:20]),
		FirstClusterHigh:  binary.LittleEndian.Uint16(record[20:22]),
		LastModifiedTime:  binary.LittleEndian.Uint16(record[22:24]),
		LastModifiedDate:  binary.LittleEndian.Uint16(record[24:26]),
		FirstCluster:      ClusterID(binary.LittleEndian.Uint16(record[26:28])),
		FileSize:          binary.LittleEndian.Uint32(record[28:32]),
	}
	copy(entry.Name[:], record[0:8])
	copy(entry.Extension[:], record[8:11])
	return entry
}

// IsEndOfDirectory returns true if this entry and all that follow it in the same
// directory are unused.
func (entry *DirectoryEntry) IsEndOfDirectory() bool {
	return entry.Name[0] == direntEndOfDirectory
}

func (entry *DirectoryEntry) IsDeleted() bool {
	return entry.Name[0] == direntDeleted
}

// IsDotEntry returns true for the "." and ".." entries at the beginning of
// every subdirectory.
func (entry *DirectoryEntry) IsDotEntry() bool {
	return entry.Name[0] == '.'
}

// IsLongNameFragment returns true if this is part of a VFAT long file name
// rather than a real file.
func (entry *DirectoryEntry) IsLongNameFragment() bool {
	return entry.Attributes&attrLongName == attrLongName
}

func (entry *DirectoryEntry) IsVolumeLabel() bool {
	return entry.Attributes.Has(floppyscope.AttrVolumeLabel)
}

func (entry *DirectoryEntry) IsDirectory() bool {
	return entry.Attributes.Has(floppyscope.AttrDirectory)
}

// BaseName gives the name without its extension, with padding removed.
func (entry *DirectoryEntry) BaseName() string {
	name := entry.Name
	if name[0] == direntEscapedE5 {
		name[0] = direntDeleted
	}
	return paddedString(name[:])
}

// Ext gives the extension, with padding removed. Many entries have none.
func (entry *DirectoryEntry) Ext() string {
	return paddedString(entry.Extension[:])
}

// ShortName gives the full 8.3 name as it'd be displayed, e.g. "README.TXT". The
// dot is omitted if there's no extension.
func (entry *DirectoryEntry) ShortName() string {
	base := entry.BaseName()
	ext := entry.Ext()
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// LabelName gives the name of a volume label entry. Labels aren't split into a
// name and extension, so all 11 bytes are used.
func (entry *DirectoryEntry) LabelName() string {
	raw := make([]byte, 0, 11)
	raw = append(raw, entry.Name[:]...)
	raw = append(raw, entry.Extension[:]...)
	return paddedString(raw)
}

// LastModifiedAt gives the last time the entry was written to. It's the zero
// time if the date field is invalid.
func (entry *DirectoryEntry) LastModifiedAt() time.Time {
	return TimestampFromParts(entry.LastModifiedDate, entry.LastModifiedTime, 0)
}

// CreatedAt gives the entry's creation time, including the 10ms component.
func (entry *DirectoryEntry) CreatedAt() time.Time {
	return TimestampFromParts(entry.CreatedDate, entry.CreatedTime, entry.CreatedTimeTenths)
}

// LastAccessedAt only has a date component.
func (entry *DirectoryEntry) LastAccessedAt() time.Time {
	return DateFromInt(entry.LastAccessedDate)
}

// Bytes re-encodes the entry into its on-disk form.
func (entry *DirectoryEntry) Bytes() []byte {
	var buffer bytes.Buffer
	buffer.Grow(DirentSize)
	buffer.Write(entry.Name[:])
	buffer.Write(entry.Extension[:])
	buffer.WriteByte(byte(entry.Attributes))
	buffer.WriteByte(entry.Reserved)
	buffer.WriteByte(entry.CreatedTimeTenths)
	binary.Write(&buffer, binary.LittleEndian, []uint16{
		entry.CreatedTime,
		entry.CreatedDate,
		entry.LastAccessedDate,
		entry.FirstClusterHigh,
		entry.LastModifiedTime,
		entry.LastModifiedDate,
		uint16(entry.FirstCluster),
	})
	binary.Write(&buffer, binary.LittleEndian, entry.FileSize)
	return buffer.Bytes()
}

// DateFromInt converts the FAT on-disk representation of a date into a Go
// time.Time. Day and month are 1-based, so a zero in either means the field
// was never set, and the zero time is returned.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts converts a FAT timestamp into a time.Time. datePart is
// required; timePart and tenMillis should be 0 if they're not present in the
// source field(s). tenMillis is in units of 10ms and may be up to 199, in which
// case it adds a second.
func TimestampFromParts(datePart uint16, timePart uint16, tenMillis uint8) time.Time {
	date := DateFromInt(datePart)
	if date.IsZero() {
		return date
	}

	seconds := int(timePart&0x001f) * 2
	if tenMillis >= 100 {
		seconds++
		tenMillis -= 100
	}

	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	nanoseconds := int(tenMillis) * 10_000_000

	return time.Date(
		date.Year(), date.Month(), date.Day(), hours, minutes, seconds, nanoseconds, time.UTC)
}
