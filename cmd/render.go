package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dargueta/floppyscope/disks"
	"github.com/dargueta/floppyscope/file_systems/fat12"
	"gopkg.in/yaml.v3"
)

var outputFormats = []string{"text", "json", "yaml"}

func checkOutputFormat(format string) error {
	for _, supported := range outputFormats {
		if format == supported {
			return nil
		}
	}
	return fmt.Errorf(
		"unsupported --format %q (supported: %s)", format, strings.Join(outputFormats, ", "))
}

// VolumeSummary is the machine-readable form of the `info` command's output.
type VolumeSummary struct {
	OEMName           string `json:"oemName" yaml:"oemName"`
	BytesPerSector    uint16 `json:"bytesPerSector" yaml:"bytesPerSector"`
	SectorsPerCluster uint8  `json:"sectorsPerCluster" yaml:"sectorsPerCluster"`
	ReservedSectors   uint16 `json:"reservedSectors" yaml:"reservedSectors"`
	NumFATs           uint8  `json:"numFATs" yaml:"numFATs"`
	MaxRootEntries    uint16 `json:"maxRootEntries" yaml:"maxRootEntries"`
	TotalSectors      uint32 `json:"totalSectors" yaml:"totalSectors"`
	SectorsPerFAT     uint16 `json:"sectorsPerFAT" yaml:"sectorsPerFAT"`
	SectorsPerTrack   uint16 `json:"sectorsPerTrack" yaml:"sectorsPerTrack"`
	NumHeads          uint16 `json:"numHeads" yaml:"numHeads"`
	HiddenSectors     uint32 `json:"hiddenSectors" yaml:"hiddenSectors"`
	MediaDescriptor   string `json:"mediaDescriptor" yaml:"mediaDescriptor"`
	VolumeID          string `json:"volumeID" yaml:"volumeID"`
	VolumeLabel       string `json:"volumeLabel" yaml:"volumeLabel"`
	FileSystemType    string `json:"fileSystemType" yaml:"fileSystemType"`
	Clusters          uint   `json:"clusters" yaml:"clusters"`
	FreeClusters      uint   `json:"freeClusters" yaml:"freeClusters"`
	BadClusters       uint   `json:"badClusters" yaml:"badClusters"`
	DiskFormat        string `json:"diskFormat,omitempty" yaml:"diskFormat,omitempty"`
}

func summarizeVolume(volume *fat12.Volume) VolumeSummary {
	geometry := volume.Geometry()
	stats := volume.Stats()

	summary := VolumeSummary{
		OEMName:           geometry.OEMName,
		BytesPerSector:    geometry.BytesPerSector,
		SectorsPerCluster: geometry.SectorsPerCluster,
		ReservedSectors:   geometry.ReservedSectors,
		NumFATs:           geometry.NumFATs,
		MaxRootEntries:    geometry.MaxRootEntries,
		TotalSectors:      geometry.TotalSectors,
		SectorsPerFAT:     geometry.SectorsPerFAT,
		SectorsPerTrack:   geometry.SectorsPerTrack,
		NumHeads:          geometry.NumHeads,
		HiddenSectors:     geometry.HiddenSectors,
		MediaDescriptor:   fmt.Sprintf("0x%02X", geometry.MediaDescriptor),
		VolumeID:          fmt.Sprintf("%04X-%04X", geometry.VolumeID>>16, geometry.VolumeID&0xFFFF),
		VolumeLabel:       volume.Label(),
		FileSystemType:    geometry.FileSystemType,
		Clusters:          geometry.ClusterCount(),
		FreeClusters:      stats.Free,
		BadClusters:       stats.Bad,
	}

	diskFormat, ok := disks.Match(
		uint(geometry.BytesPerSector),
		uint(geometry.SectorsPerTrack),
		uint(geometry.NumHeads),
		uint(geometry.TotalSectors))
	if ok {
		summary.DiskFormat = diskFormat.Name
	}
	return summary
}

func writeInfo(w io.Writer, volume *fat12.Volume, format string) error {
	summary := summarizeVolume(volume)

	switch format {
	case "text":
		table := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
		rows := []struct {
			label string
			value any
		}{
			{"OEM", summary.OEMName},
			{"Bytes per sector", summary.BytesPerSector},
			{"Sectors per cluster", summary.SectorsPerCluster},
			{"Reserved sectors", summary.ReservedSectors},
			{"Number of FATs", summary.NumFATs},
			{"Max root entries", summary.MaxRootEntries},
			{"Sector count", summary.TotalSectors},
			{"Sectors per FAT", summary.SectorsPerFAT},
			{"Sectors per track", summary.SectorsPerTrack},
			{"Heads", summary.NumHeads},
			{"Hidden sectors", summary.HiddenSectors},
			{"Media descriptor", summary.MediaDescriptor},
			{"Volume ID", summary.VolumeID},
			{"Volume label", summary.VolumeLabel},
			{"File system type", summary.FileSystemType},
			{"Clusters", fmt.Sprintf(
				"%d (%d free, %d bad)", summary.Clusters, summary.FreeClusters, summary.BadClusters)},
		}
		if summary.DiskFormat != "" {
			rows = append(rows, struct {
				label string
				value any
			}{"Disk format", summary.DiskFormat})
		}

		for _, row := range rows {
			fmt.Fprintf(table, "%s:\t%v\n", row.label, row.value)
		}
		return table.Flush()
	case "json":
		return writeJSON(w, summary)
	case "yaml":
		return writeYAML(w, summary)
	default:
		return checkOutputFormat(format)
	}
}

// TreeNode is the machine-readable form of a single item in the `tree`
// command's output.
type TreeNode struct {
	Name       string     `json:"name" yaml:"name"`
	Kind       string     `json:"kind" yaml:"kind"`
	Size       int64      `json:"size,omitempty" yaml:"size,omitempty"`
	Attributes string     `json:"attributes" yaml:"attributes"`
	Modified   *time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
	Cluster    uint16     `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Children   []TreeNode `json:"children,omitempty" yaml:"children,omitempty"`
}

func buildTreeNodes(items []fat12.Item) []TreeNode {
	nodes := make([]TreeNode, 0, len(items))
	for _, item := range items {
		entry := item.Entry()
		node := TreeNode{
			Name:       item.Name(),
			Kind:       item.Kind().String(),
			Attributes: entry.Attributes.String(),
			Cluster:    uint16(entry.FirstCluster),
		}
		if modified := entry.LastModifiedAt(); !modified.IsZero() {
			node.Modified = &modified
		}

		switch typed := item.(type) {
		case *fat12.File:
			node.Size = typed.Size()
		case *fat12.Directory:
			node.Children = buildTreeNodes(typed.Children())
		case *fat12.VolumeLabel:
			node.Cluster = 0
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// writeTree prints every item in the volume. `withContents` only applies to
// the text format, which then follows each file with its contents.
func writeTree(w io.Writer, volume *fat12.Volume, format string, withContents bool) error {
	switch format {
	case "text":
		return writeTreeText(w, volume.RootEntries(), 0, withContents)
	case "json":
		return writeJSON(w, buildTreeNodes(volume.RootEntries()))
	case "yaml":
		return writeYAML(w, buildTreeNodes(volume.RootEntries()))
	default:
		return checkOutputFormat(format)
	}
}

// writeTreeText prints one item per line, indented with a tab per level. File
// contents are printed as text up to the first null byte.
func writeTreeText(w io.Writer, items []fat12.Item, depth int, withContents bool) error {
	indent := strings.Repeat("\t", depth)
	for _, item := range items {
		var err error
		switch typed := item.(type) {
		case *fat12.VolumeLabel:
			_, err = fmt.Fprintf(w, "%s- VolumeID: %s\n", indent, typed.Name())
		case *fat12.File:
			_, err = fmt.Fprintf(w, "%s- File: %s\n", indent, typed.Name())
			if err == nil && withContents {
				contents := typed.Bytes()
				if end := bytes.IndexByte(contents, 0); end >= 0 {
					contents = contents[:end]
				}
				_, err = fmt.Fprintf(w, "%s  Contents: %s\n", indent, contents)
			}
		case *fat12.Directory:
			_, err = fmt.Fprintf(w, "%s- Dir: %s\n", indent, typed.Name())
			if err == nil {
				err = writeTreeText(w, typed.Children(), depth+1, withContents)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(encoded))
	return err
}

func writeYAML(w io.Writer, value any) error {
	encoded, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	_, err = w.Write(encoded)
	return err
}
