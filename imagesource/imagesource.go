// Package imagesource loads volume images from disk, transparently
// decompressing them. Floppy images are often archived with gzip, zstd or xz,
// optionally run-length encoded first; the container format is detected from
// the file's magic number and RLE8 from a ".rle8" suffix on the name.
package imagesource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dargueta/floppyscope"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
)

// MaxImageSize is the largest decompressed image that will be loaded. The
// biggest FAT12 volume possible is a little over 128 MiB, with 4084 clusters of
// 32 KiB each.
const MaxImageSize = 136 * 1024 * 1024

type Format int

const (
	FormatRaw Format = iota
	FormatGzip
	FormatZstd
	FormatXZ
)

var magicNumbers = []struct {
	format Format
	magic  []byte
}{
	{FormatGzip, []byte{0x1F, 0x8B}},
	{FormatZstd, []byte{0x28, 0xB5, 0x2F, 0xFD}},
	{FormatXZ, []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}},
}

var formatExtensions = map[Format]string{
	FormatGzip: ".gz",
	FormatZstd: ".zst",
	FormatXZ:   ".xz",
}

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatXZ:
		return "xz"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension gives the file extension conventionally used for the format,
// including the dot. Raw images have none.
func (f Format) Extension() string {
	return formatExtensions[f]
}

// ParseFormat converts a format name as returned by [Format.String] back into
// a Format.
func ParseFormat(name string) (Format, error) {
	for _, format := range []Format{FormatRaw, FormatGzip, FormatZstd, FormatXZ} {
		if strings.EqualFold(name, format.String()) {
			return format, nil
		}
	}
	return FormatRaw, floppyscope.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("unknown image format %q", name))
}

// DetectFormat determines the container format from the first few bytes of a
// file. Anything unrecognized is assumed to be a raw image.
func DetectFormat(header []byte) Format {
	for _, candidate := range magicNumbers {
		if bytes.HasPrefix(header, candidate.magic) {
			return candidate.format
		}
	}
	return FormatRaw
}

// Image is a fully decompressed volume image held in memory. It satisfies
// [floppyscope.ByteSource].
type Image struct {
	*bytes.Reader
	// Name is the base name of the file the image was loaded from.
	Name string
	// Format is the container format the image was stored in.
	Format Format
	// RLE8 is true if the image was run-length encoded.
	RLE8 bool
}

// Open loads the image at `filePath` from the local file system.
func Open(filePath string) (*Image, error) {
	return OpenFs(afero.NewOsFs(), filePath)
}

// OpenFs loads the image at `filePath` from `fs`.
func OpenFs(fs afero.Fs, filePath string) (*Image, error) {
	file, err := fs.Open(filePath)
	if err != nil {
		return nil, floppyscope.ErrNotFound.Wrap(err)
	}
	defer file.Close()

	return Load(file, path.Base(filePath))
}

// FromBytes wraps an uncompressed image already in memory.
func FromBytes(data []byte, name string) *Image {
	return &Image{Reader: bytes.NewReader(data), Name: name, Format: FormatRaw}
}

// Load reads an entire image from `input`, decompressing it as needed. `name`
// is only used to decide whether the data is RLE8-encoded.
func Load(input io.Reader, name string) (*Image, error) {
	buffered := bufio.NewReader(input)
	header, err := buffered.Peek(8)
	if err != nil && err != io.EOF {
		return nil, floppyscope.ErrIOFailed.Wrap(err)
	}
	format := DetectFormat(header)

	decompressed, closer, err := newDecompressor(buffered, format)
	if err != nil {
		return nil, floppyscope.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("%s: not a valid %s stream", name, format)).Wrap(err)
	}
	defer closer()

	data, err := readLimited(decompressed, MaxImageSize)
	if err != nil {
		return nil, err
	}

	isRLE8 := strings.HasSuffix(
		strings.ToLower(strings.TrimSuffix(name, format.Extension())), ".rle8")
	if isRLE8 {
		decoded := cappedBuffer{limit: MaxImageSize}
		_, err = DecodeRLE8(bytes.NewReader(data), &decoded)
		if errors.Is(err, errCapacityExceeded) {
			return nil, tooBig(name)
		} else if err != nil {
			return nil, floppyscope.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("%s: bad RLE8 data", name)).Wrap(err)
		}
		data = decoded.Bytes()
	}

	return &Image{
		Reader: bytes.NewReader(data),
		Name:   name,
		Format: format,
		RLE8:   isRLE8,
	}, nil
}

func newDecompressor(input io.Reader, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatGzip:
		reader, err := gzip.NewReader(input)
		if err != nil {
			return nil, nil, err
		}
		return reader, func() { reader.Close() }, nil
	case FormatZstd:
		decoder, err := zstd.NewReader(input)
		if err != nil {
			return nil, nil, err
		}
		return decoder, decoder.Close, nil
	case FormatXZ:
		reader, err := xz.NewReader(input)
		if err != nil {
			return nil, nil, err
		}
		return reader, func() {}, nil
	default:
		return input, func() {}, nil
	}
}

func readLimited(input io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(input, limit+1))
	if err != nil {
		return nil, floppyscope.ErrIOFailed.Wrap(err)
	}
	if int64(len(data)) > limit {
		return nil, tooBig("image")
	}
	return data, nil
}

var errCapacityExceeded = errors.New("buffer capacity exceeded")

// cappedBuffer is a [bytes.Buffer] that refuses writes that would take it past
// `limit` bytes.
type cappedBuffer struct {
	bytes.Buffer
	limit int
}

func (buffer *cappedBuffer) Write(data []byte) (int, error) {
	if buffer.Len()+len(data) > buffer.limit {
		return 0, errCapacityExceeded
	}
	return buffer.Buffer.Write(data)
}

func tooBig(name string) error {
	return floppyscope.ErrNotSupported.WithMessage(
		fmt.Sprintf("%s is larger than %d bytes when decompressed", name, MaxImageSize))
}

// Compress writes `data` to `output` in the given container format, run-length
// encoding it first if `rle8` is set.
func Compress(output io.Writer, data []byte, format Format, rle8 bool) error {
	if rle8 {
		var encoded bytes.Buffer
		_, err := EncodeRLE8(data, &encoded)
		if err != nil {
			return err
		}
		data = encoded.Bytes()
	}

	var writer io.WriteCloser
	var err error

	switch format {
	case FormatRaw:
		_, err = output.Write(data)
		return err
	case FormatGzip:
		// The images are small, so the best level costs next to nothing.
		writer, err = gzip.NewWriterLevel(output, gzip.BestCompression)
	case FormatZstd:
		writer, err = zstd.NewWriter(output, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case FormatXZ:
		writer, err = xz.NewWriter(output)
	default:
		return floppyscope.ErrNotSupported.WithMessage(fmt.Sprintf("unknown format %d", format))
	}
	if err != nil {
		return err
	}

	_, err = writer.Write(data)
	if err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
