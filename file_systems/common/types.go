// Package common contains definitions of fundamental types and functions used
// across the file system implementations.
package common

type LogicalBlock uint

// BlocksForLength gives the minimum number of blocks of `bytesPerBlock` bytes
// needed to hold `length` bytes.
func BlocksForLength(length int64, bytesPerBlock uint) uint {
	if length <= 0 {
		return 0
	}
	return uint((length + int64(bytesPerBlock) - 1) / int64(bytesPerBlock))
}
