package floppyscope

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
	// AtIndex returns a copy of the error tied to a specific cluster, FAT copy,
	// or byte offset in the image. See [IndexedError].
	AtIndex(index int64, message string) DriverError
}

type baseFloppyError string

const rootError = baseFloppyError("")

// Fatal conditions found while decoding a volume. None of these are retried.
var ErrInvalidSignature = rootError.WithMessage("Invalid extended boot signature")
var ErrFATMismatch = rootError.WithMessage("Redundant FAT copy differs from the primary")
var ErrClusterOutOfRange = rootError.WithMessage("Cluster out of range")
var ErrFATCycle = rootError.WithMessage("Cycle detected in cluster chain")

var ErrFileSystemCorrupted = rootError.WithMessage("Structure needs cleaning")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrIsADirectory = rootError.WithMessage("Is a directory")
var ErrNotADirectory = rootError.WithMessage("Not a directory")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrNotSupported = rootError.WithMessage("Operation not supported")

func (e baseFloppyError) Error() string {
	return string(e)
}

func (e baseFloppyError) RootCause() DriverError {
	return e
}

func (e baseFloppyError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       message,
		originalError: e,
	}
}

func (e baseFloppyError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e baseFloppyError) AtIndex(index int64, message string) DriverError {
	return &IndexedError{
		kind:    e,
		Index:   index,
		message: message,
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) AtIndex(index int64, message string) DriverError {
	return &IndexedError{
		kind:    e,
		Index:   index,
		message: fmt.Sprintf("%s: %s", e.message, message),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}

// -----------------------------------------------------------------------------

// IndexedError is a [DriverError] that records where in the image the problem
// was found. What Index means depends on the kind of error:
//
//   - [ErrFATMismatch]: the index of the redundant FAT copy that differs, where
//     the primary copy is 0.
//   - [ErrClusterOutOfRange], [ErrFATCycle]: the cluster number. The same goes
//     for [ErrFileSystemCorrupted] raised while following a cluster chain.
//   - [ErrInvalidSignature]: the signature byte that was found.
//   - Anything else: a byte offset into the image.
//
// Use errors.Is to check the kind and errors.As to get at the index.
type IndexedError struct {
	kind    DriverError
	Index   int64
	message string
}

func (e *IndexedError) Error() string {
	return e.message
}

func (e *IndexedError) Unwrap() error {
	return e.kind
}

func (e *IndexedError) WithMessage(message string) DriverError {
	return &IndexedError{
		kind:    e.kind,
		Index:   e.Index,
		message: fmt.Sprintf("%s: %s", e.message, message),
	}
}

func (e *IndexedError) Wrap(err error) DriverError {
	return &IndexedError{
		kind:    customDriverError{message: e.kind.Error(), originalError: multierror.Append(e.kind, err)},
		Index:   e.Index,
		message: fmt.Sprintf("%s: %s", e.message, err.Error()),
	}
}

func (e *IndexedError) AtIndex(index int64, message string) DriverError {
	return e.kind.AtIndex(index, message)
}

// IndexOf returns the index recorded in the first [IndexedError] found in err's
// chain. The second return value is false if there isn't one.
func IndexOf(err error) (int64, bool) {
	var indexed *IndexedError
	if errors.As(err, &indexed) {
		return indexed.Index, true
	}
	return 0, false
}
