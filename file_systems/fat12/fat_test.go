package fat12_test

import (
	"math/rand"
	"testing"

	"github.com/dargueta/floppyscope"
	"github.com/dargueta/floppyscope/file_systems/fat12"
	fstest "github.com/dargueta/floppyscope/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFATTable__EntryAt__KnownBytes(t *testing.T) {
	table := fat12.NewFATTable([]byte{0xF0, 0xFF, 0xFF, 0x03, 0x40, 0x00})

	assert.EqualValues(t, 4, table.EntryCount())
	assert.EqualValues(t, 0xFF0, table.EntryAt(0))
	assert.EqualValues(t, 0xFFF, table.EntryAt(1))
	assert.EqualValues(t, 0x003, table.EntryAt(2))
	assert.EqualValues(t, 0x004, table.EntryAt(3))

	// Past the end reads as bad.
	assert.EqualValues(t, fat12.ClusterBad, table.EntryAt(4))
}

func TestPackFAT__RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))

	// Odd and even lengths exercise the trailing half-filled triplet.
	for _, count := range []int{1, 2, 3, 64, 341, 1000} {
		entries := make([]uint16, count)
		for i := range entries {
			entries[i] = uint16(rng.Intn(0x1000))
		}

		table := fat12.NewFATTable(fat12.PackFAT(entries))
		require.GreaterOrEqual(t, int(table.EntryCount()), count)

		for i, expected := range entries {
			if !assert.Equalf(t, expected, table.EntryAt(fat12.ClusterID(i)), "entry %d of %d", i, count) {
				break
			}
		}
	}
}

func TestPackFAT__IgnoresHighBits(t *testing.T) {
	table := fat12.NewFATTable(fat12.PackFAT([]uint16{0xFABC, 0x1123}))
	assert.EqualValues(t, 0xABC, table.EntryAt(0))
	assert.EqualValues(t, 0x123, table.EntryAt(1))
}

func TestFATTable__NextCluster(t *testing.T) {
	entries := []uint16{
		0xFF0, 0xFFF, // reserved head
		0x003,        // 2 -> 3
		0xFFF,        // 3: end of chain
		0xFF8,        // 4: end of chain, low marker
		0x000,        // 5: free
		0xFF7,        // 6: bad
		0xFF3,        // 7: reserved
		0x001,        // 8: reserved
		0x002,        // 9 -> 2
	}
	table := fat12.NewFATTable(fat12.PackFAT(entries))

	next, ok := table.NextCluster(2)
	assert.True(t, ok)
	assert.EqualValues(t, 3, next)

	next, ok = table.NextCluster(9)
	assert.True(t, ok)
	assert.EqualValues(t, 2, next)

	for _, cluster := range []fat12.ClusterID{3, 4, 5, 6, 7, 8} {
		_, ok = table.NextCluster(cluster)
		assert.Falsef(t, ok, "cluster %d shouldn't have a successor", cluster)
	}
}

func TestFATTable__Stats(t *testing.T) {
	entries := []uint16{0xFF0, 0xFFF, 0x003, 0xFFF, 0x000, 0xFF7, 0xFF2, 0xFF8, 0x000}
	table := fat12.NewFATTable(fat12.PackFAT(entries))

	stats := table.Stats(7)
	assert.Equal(
		t,
		fat12.FATStats{Free: 2, Used: 3, Bad: 1, Reserved: 1, EndOfChain: 2},
		stats)
}

func TestLoadFAT__Matching(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.NumFATs = 3
	builder.Chain(2, 3, 4)

	source := builder.Source(t)
	geometry, err := fat12.DecodeBootSector(builder.Build(t)[:512])
	require.NoError(t, err)

	cursor := fat12.NewCursor(source, geometry.FATOffset())
	table, err := fat12.LoadFAT(cursor, &geometry)
	require.NoError(t, err)

	assert.EqualValues(t, 0xFF0, table.EntryAt(0))
	assert.EqualValues(t, 3, table.EntryAt(2))
	assert.EqualValues(t, 4, table.EntryAt(3))
	assert.EqualValues(t, 0xFFF, table.EntryAt(4))
	assert.Len(t, table.Bytes(), 512)

	// Cursor ends up at the root directory.
	assert.Equal(t, geometry.RootDirOffset(), cursor.Offset())
}

func TestLoadFAT__Mismatch(t *testing.T) {
	tests := []struct {
		name      string
		numFATs   uint8
		copyIndex int
	}{
		{"SecondOfTwo", 2, 1},
		{"SecondOfThree", 3, 1},
		{"ThirdOfThree", 3, 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			builder := fstest.NewImageBuilder()
			builder.NumFATs = test.numFATs
			builder.Chain(2, 3)
			builder.CorruptFATCopy(test.copyIndex, 17)

			image := builder.Build(t)
			geometry, err := fat12.DecodeBootSector(image[:512])
			require.NoError(t, err)

			source := builder.Source(t)
			_, err = fat12.LoadFAT(fat12.NewCursor(source, geometry.FATOffset()), &geometry)
			require.ErrorIs(t, err, floppyscope.ErrFATMismatch)

			index, ok := floppyscope.IndexOf(err)
			require.True(t, ok)
			assert.EqualValues(t, test.copyIndex, index)
			assert.Contains(t, err.Error(), "at byte 17")
		})
	}
}

func TestLoadFAT__SingleCopy(t *testing.T) {
	builder := fstest.NewImageBuilder()
	builder.NumFATs = 1
	builder.Chain(2)

	_, fat, _ := decodeParts(t, builder)
	assert.EqualValues(t, 0xFFF, fat.EntryAt(2))
}
