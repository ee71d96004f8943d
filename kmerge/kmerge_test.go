package kmerge

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tlemane/kmtricks-sub004/kmio"
)

func buildCountedStream(t *testing.T, entries map[uint64]uint8) *bytes.Buffer {
	t.Helper()
	keys := make([]uint64, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	// simple insertion sort, keeps the test dependency-free
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}

	var buf bytes.Buffer
	fw := kmio.NewFrameWriter(&buf, false)
	for _, k := range keys {
		frame := make([]byte, 9)
		binary.LittleEndian.PutUint64(frame[0:8], k)
		frame[8] = entries[k]
		require.NoError(t, fw.WriteFrame(frame))
	}
	return &buf
}

func TestMergeCountFlavorBuildsNWideRows(t *testing.T) {
	s1 := buildCountedStream(t, map[uint64]uint8{1: 5, 2: 3, 4: 1})
	s2 := buildCountedStream(t, map[uint64]uint8{2: 7, 3: 2, 4: 9})

	c1 := NewCursor("s1", s1, 0, 1, 8)
	c2 := NewCursor("s2", s2, 0, 1, 8)

	var out bytes.Buffer
	n, err := Merge([]*Cursor{c1, c2}, AtLeastNSamples(1), FlavorCount, &out, 0)
	require.NoError(t, err)
	require.Equal(t, int64(4), n) // keys 1,2,3,4

	rows := readRows(t, &out, 2)
	require.Equal(t, []uint64{5, 0}, rows[0].counts) // key 1
	require.Equal(t, []uint64{3, 7}, rows[1].counts) // key 2
	require.Equal(t, []uint64{0, 2}, rows[2].counts) // key 3
	require.Equal(t, []uint64{1, 9}, rows[3].counts) // key 4
}

func TestMergeSolidityFiltersRows(t *testing.T) {
	s1 := buildCountedStream(t, map[uint64]uint8{1: 5})
	s2 := buildCountedStream(t, map[uint64]uint8{2: 7})

	c1 := NewCursor("s1", s1, 0, 1, 8)
	c2 := NewCursor("s2", s2, 0, 1, 8)

	var out bytes.Buffer
	n, err := Merge([]*Cursor{c1, c2}, AtLeastNSamples(2), FlavorCount, &out, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestMergeDetectsNonMonotonicKey(t *testing.T) {
	var buf bytes.Buffer
	fw := kmio.NewFrameWriter(&buf, false)
	frame1 := make([]byte, 9)
	binary.LittleEndian.PutUint64(frame1[0:8], 5)
	require.NoError(t, fw.WriteFrame(frame1))
	frame2 := make([]byte, 9)
	binary.LittleEndian.PutUint64(frame2[0:8], 2) // goes backwards
	require.NoError(t, fw.WriteFrame(frame2))

	c := NewCursor("bad", &buf, 0, 1, 8)
	var out bytes.Buffer
	_, err := Merge([]*Cursor{c}, AtLeastNSamples(1), FlavorCount, &out, 0)
	require.Error(t, err)
	var nmErr *ErrNonMonotonicKey
	require.ErrorAs(t, err, &nmErr)
}

func TestMergePresenceFlavorEncodesBits(t *testing.T) {
	s1 := buildCountedStream(t, map[uint64]uint8{1: 5})
	s2 := buildCountedStream(t, map[uint64]uint8{1: 1})

	c1 := NewCursor("s1", s1, 3, 1, 8)
	c2 := NewCursor("s2", s2, 3, 1, 8)

	var out bytes.Buffer
	n, err := Merge([]*Cursor{c1, c2}, AtLeastNSamples(1), FlavorPresence, &out, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = kmio.ReadHeader(&out, kmio.MagicMatrix)
	require.NoError(t, err)
	fr := kmio.NewFrameReader(&out, false)
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, byte(1), frame[8]&1) // s1 present (5>=3)
	require.Equal(t, byte(0), (frame[8]>>1)&1) // s2 absent (1<3)
}

func TestMergeKeepsMultiWordKeysDistinct(t *testing.T) {
	// Two 16-byte (2-word) keys sharing the same first word but differing
	// in the second: a merge keyed on only the first 8 bytes would wrongly
	// fold these into one row.
	key1 := append(bytes.Repeat([]byte{0}, 8), bytes.Repeat([]byte{1}, 8)...)
	key2 := append(bytes.Repeat([]byte{0}, 8), bytes.Repeat([]byte{2}, 8)...)

	var buf bytes.Buffer
	fw := kmio.NewFrameWriter(&buf, false)
	require.NoError(t, fw.WriteFrame(append(append([]byte{}, key1...), 5)))
	require.NoError(t, fw.WriteFrame(append(append([]byte{}, key2...), 3)))

	c := NewCursor("s1", &buf, 0, 1, 16)
	var out bytes.Buffer
	n, err := Merge([]*Cursor{c}, AtLeastNSamples(1), FlavorCount, &out, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

type row struct {
	key    uint64
	counts []uint64
}

func readRows(t *testing.T, buf *bytes.Buffer, n int) []row {
	t.Helper()
	_, err := kmio.ReadHeader(buf, kmio.MagicMatrix)
	require.NoError(t, err)
	fr := kmio.NewFrameReader(buf, false)

	var rows []row
	for {
		frame, err := fr.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		key := binary.LittleEndian.Uint64(frame[0:8])
		counts := make([]uint64, n)
		for i := range counts {
			counts[i] = binary.LittleEndian.Uint64(frame[8+8*i:])
		}
		rows = append(rows, row{key: key, counts: counts})
	}
	return rows
}
