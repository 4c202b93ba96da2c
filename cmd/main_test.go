package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dargueta/floppyscope"
	"github.com/dargueta/floppyscope/file_systems/fat12"
	"github.com/dargueta/floppyscope/imagesource"
	fstest "github.com/dargueta/floppyscope/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleImage(t *testing.T) *fstest.ImageBuilder {
	builder := fstest.NewImageBuilder()
	builder.AddRootEntry(fstest.RawDirent("DISK1", "", fstest.AttrVolumeLabel, 0, 0)).
		AddRootEntry(fstest.RawDirent("HELLO", "TXT", fstest.AttrArchived, 2, 5)).
		AddRootEntry(fstest.RawDirent("GAMES", "", fstest.AttrDirectory, 3, 0))
	builder.WriteCluster(2, []byte("hello")).Chain(2)
	builder.WriteCluster(3, fstest.DirectoryBlock(
		fstest.DotEntries(3, 0),
		fstest.RawDirent("TETRIS", "EXE", fstest.AttrReadOnly, 4, 12),
	)).Chain(3)
	builder.WriteCluster(4, []byte("MZ tetris!!!")).Chain(4)
	return builder
}

func writeImage(t *testing.T, builder *fstest.ImageBuilder) string {
	imagePath := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(imagePath, builder.Build(t), 0o600))
	return imagePath
}

// run executes the command line tool with the given arguments and returns
// whatever it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr

	err := app.Run(append([]string{"floppyscope"}, args...))
	return stdout.String(), err
}

func openSample(t *testing.T) *fat12.Volume {
	volume, err := fat12.Open(sampleImage(t).Source(t))
	require.NoError(t, err)
	return volume
}

func TestWriteTree__Text(t *testing.T) {
	var output bytes.Buffer
	require.NoError(t, writeTree(&output, openSample(t), "text", false))
	assert.Equal(
		t,
		"- VolumeID: DISK1\n- File: HELLO.TXT\n- Dir: GAMES\n\t- File: TETRIS.EXE\n",
		output.String())
}

func TestWriteTree__TextWithContents(t *testing.T) {
	var output bytes.Buffer
	require.NoError(t, writeTree(&output, openSample(t), "text", true))
	assert.Equal(
		t,
		"- VolumeID: DISK1\n"+
			"- File: HELLO.TXT\n"+
			"  Contents: hello\n"+
			"- Dir: GAMES\n"+
			"\t- File: TETRIS.EXE\n"+
			"\t  Contents: MZ tetris!!!\n",
		output.String())
}

func TestTreeCommand__Contents(t *testing.T) {
	imagePath := writeImage(t, sampleImage(t))

	output, err := run(t, "tree", "--contents", imagePath)
	require.NoError(t, err)
	assert.Contains(t, output, "- File: HELLO.TXT\n  Contents: hello\n")
}

func TestWriteTree__JSON(t *testing.T) {
	var output bytes.Buffer
	require.NoError(t, writeTree(&output, openSample(t), "json", false))

	var nodes []TreeNode
	require.NoError(t, json.Unmarshal(output.Bytes(), &nodes))
	require.Len(t, nodes, 3)

	assert.Equal(t, "DISK1", nodes[0].Name)
	assert.Equal(t, fat12.KindVolumeLabel.String(), nodes[0].Kind)
	assert.Zero(t, nodes[0].Cluster)

	assert.Equal(t, "HELLO.TXT", nodes[1].Name)
	assert.EqualValues(t, 5, nodes[1].Size)
	assert.EqualValues(t, 2, nodes[1].Cluster)

	assert.Equal(t, "GAMES", nodes[2].Name)
	require.Len(t, nodes[2].Children, 1)
	assert.Equal(t, "TETRIS.EXE", nodes[2].Children[0].Name)
	assert.EqualValues(t, 12, nodes[2].Children[0].Size)
}

func TestWriteTree__YAML(t *testing.T) {
	var output bytes.Buffer
	require.NoError(t, writeTree(&output, openSample(t), "yaml", false))

	var nodes []TreeNode
	require.NoError(t, yaml.Unmarshal(output.Bytes(), &nodes))
	require.Len(t, nodes, 3)
	assert.Equal(t, "GAMES", nodes[2].Name)
	assert.Equal(t, fat12.KindDirectory.String(), nodes[2].Kind)
	require.Len(t, nodes[2].Children, 1)
	assert.Equal(t, "TETRIS.EXE", nodes[2].Children[0].Name)
}

func TestWriteTree__BadFormat(t *testing.T) {
	err := writeTree(&bytes.Buffer{}, openSample(t), "xml", false)
	assert.ErrorContains(t, err, `unsupported --format "xml"`)
}

func TestWriteInfo__Text(t *testing.T) {
	var output bytes.Buffer
	require.NoError(t, writeInfo(&output, openSample(t), "text"))

	text := output.String()
	assert.Contains(t, text, "OEM:")
	assert.Contains(t, text, "MSDOS5.0")
	assert.Contains(t, text, "Volume label:")
	assert.Contains(t, text, "DISK1")
	assert.Contains(t, text, "1234-ABCD")
	assert.Contains(t, text, "0xF0")
	assert.NotContains(t, text, "Disk format")
}

func TestWriteInfo__DiskFormatDetected(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.TotalSectors = 2880
	builder.SectorsPerFAT = 9
	builder.MaxRootEntries = 224

	volume, err := fat12.Open(builder.Source(t))
	require.NoError(t, err)

	var output bytes.Buffer
	require.NoError(t, writeInfo(&output, volume, "json"))

	var summary VolumeSummary
	require.NoError(t, json.Unmarshal(output.Bytes(), &summary))
	assert.Equal(t, "3.5-inch 1.44M high density", summary.DiskFormat)
	assert.EqualValues(t, 2880, summary.TotalSectors)
	assert.Equal(t, "NO NAME", summary.VolumeLabel)
	assert.EqualValues(t, 2847, summary.Clusters)
	assert.EqualValues(t, 2847, summary.FreeClusters)
}

func TestInfoCommand(t *testing.T) {
	imagePath := writeImage(t, sampleImage(t))

	output, err := run(t, "info", "--format", "yaml", imagePath)
	require.NoError(t, err)

	var summary VolumeSummary
	require.NoError(t, yaml.Unmarshal([]byte(output), &summary))
	assert.Equal(t, "DISK1", summary.VolumeLabel)
	assert.Equal(t, "FAT12", summary.FileSystemType)
	assert.EqualValues(t, 60, summary.Clusters)
	assert.EqualValues(t, 57, summary.FreeClusters)
}

func TestTreeCommand__Compressed(t *testing.T) {
	var compressed bytes.Buffer
	require.NoError(
		t,
		imagesource.Compress(&compressed, sampleImage(t).Build(t), imagesource.FormatZstd, true))

	imagePath := filepath.Join(t.TempDir(), "disk.img.rle8.zst")
	require.NoError(t, os.WriteFile(imagePath, compressed.Bytes(), 0o600))

	output, err := run(t, "tree", imagePath)
	require.NoError(t, err)
	assert.Contains(t, output, "- File: HELLO.TXT\n")
	assert.Contains(t, output, "\t- File: TETRIS.EXE\n")
}

func TestCatCommand(t *testing.T) {
	imagePath := writeImage(t, sampleImage(t))

	output, err := run(t, "cat", imagePath, "games/tetris.exe")
	require.NoError(t, err)
	assert.Equal(t, "MZ tetris!!!", output)

	_, err = run(t, "cat", imagePath, "GAMES")
	assert.ErrorIs(t, err, floppyscope.ErrIsADirectory)

	_, err = run(t, "cat", imagePath, "NOPE.TXT")
	assert.ErrorIs(t, err, floppyscope.ErrNotFound)
}

func TestCommands__WrongArgumentCount(t *testing.T) {
	_, err := run(t, "cat", "only-one-argument")
	assert.ErrorContains(t, err, "cat expects 2 argument(s) but got 1")
}

func TestCommands__MissingImage(t *testing.T) {
	_, err := run(t, "tree", filepath.Join(t.TempDir(), "missing.img"))
	assert.ErrorIs(t, err, floppyscope.ErrNotFound)
}

func TestExtractCommand(t *testing.T) {
	imagePath := writeImage(t, sampleImage(t))
	destination := filepath.Join(t.TempDir(), "out")

	output, err := run(t, "extract", "--hash", "md5", "--progress", imagePath, destination)
	require.NoError(t, err)
	assert.Equal(
		t,
		[]string{
			"5d41402abc4b2a76b9719d911017c592  /HELLO.TXT",
		},
		filterLines(output, "HELLO"))

	contents, err := os.ReadFile(filepath.Join(destination, "GAMES", "TETRIS.EXE"))
	require.NoError(t, err)
	assert.Equal(t, []byte("MZ tetris!!!"), contents)
}

func TestPackCommand(t *testing.T) {
	imagePath := writeImage(t, sampleImage(t))
	packedPath := filepath.Join(t.TempDir(), "disk.img.rle8.xz")

	_, err := run(t, "pack", "--format", "xz", "--rle8", imagePath, packedPath)
	require.NoError(t, err)

	image, err := imagesource.Open(packedPath)
	require.NoError(t, err)
	assert.Equal(t, imagesource.FormatXZ, image.Format)
	assert.True(t, image.RLE8)

	output, err := run(t, "cat", packedPath, "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "hello", output)
}

func TestPackCommand__UnknownFormat(t *testing.T) {
	imagePath := writeImage(t, sampleImage(t))
	_, err := run(t, "pack", "--format", "lzma", imagePath, imagePath+".out")
	assert.ErrorIs(t, err, floppyscope.ErrInvalidArgument)
}

func filterLines(text, substring string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, substring) {
			lines = append(lines, line)
		}
	}
	return lines
}
