package imagesource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Floppy images are mostly runs of null bytes, so they're stored run-length
// encoded before being handed to a general-purpose compressor. The scheme is
// RLE8 as used by BMP files: if a byte B occurs N >= 2 times, B is written
// twice, followed by a byte giving how many additional times B occurred.
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// A run can be at most 257 bytes; longer ones are split.
const maxRLE8Run = 257

// EncodeRLE8 run-length encodes `input` and writes it to `output`. It returns
// the number of bytes written.
func EncodeRLE8(input []byte, output io.Writer) (int64, error) {
	written := int64(0)

	for i := 0; i < len(input); {
		value := input[i]
		runLength := 1
		for i+runLength < len(input) && input[i+runLength] == value {
			runLength++
		}
		i += runLength

		for runLength >= 2 {
			chunk := runLength
			if chunk > maxRLE8Run {
				chunk = maxRLE8Run
			}

			n, err := output.Write([]byte{value, value, byte(chunk - 2)})
			written += int64(n)
			if err != nil {
				return written, err
			}
			runLength -= chunk
		}

		if runLength == 1 {
			n, err := output.Write([]byte{value})
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// DecodeRLE8 reverses [EncodeRLE8], reading until `input` is exhausted.
func DecodeRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	lastByteRead := -1
	written := int64(0)

	for {
		currentByte, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			return written, nil
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		var currentOutput []byte
		if int(currentByte) == lastByteRead {
			// Second of a pair; the next byte is the repeat count.
			repeatCount, err := source.ReadByte()
			if errors.Is(err, io.EOF) {
				return written, fmt.Errorf(
					"%w: missing repeat count after two %02x bytes",
					io.ErrUnexpectedEOF,
					currentByte)
			} else if err != nil {
				return written, fmt.Errorf("error reading input: %w", err)
			}

			// +1 instead of +2 because the first byte of the pair was already
			// written on the previous iteration.
			currentOutput = bytes.Repeat([]byte{currentByte}, int(repeatCount)+1)

			// The pair is consumed, so a third copy of the byte starts a new run.
			lastByteRead = -1
		} else {
			lastByteRead = int(currentByte)
			currentOutput = []byte{currentByte}
		}

		n, err := output.Write(currentOutput)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
