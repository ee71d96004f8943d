package partition

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tlemane/kmtricks-sub004/minimizer"
	"github.com/tlemane/kmtricks-sub004/repart"
	"github.com/tlemane/kmtricks-sub004/superk"
)

func TestSplitValidRunsKeepsOnlyLongEnoughRuns(t *testing.T) {
	runs := SplitValidRuns([]byte("ACGTNNNNACGTACGTNAC"), 5)
	require.Len(t, runs, 1)
	require.Equal(t, []byte("ACGTACGT"), runs[0])
}

func TestSplitValidRunsHandlesAllValid(t *testing.T) {
	runs := SplitValidRuns([]byte("ACGTACGT"), 4)
	require.Len(t, runs, 1)
	require.Equal(t, []byte("ACGTACGT"), runs[0])
}

func TestSplitValidRunsHandlesAllInvalid(t *testing.T) {
	runs := SplitValidRuns([]byte("NNNNNNNN"), 4)
	require.Nil(t, runs)
}

func TestSuperKmerBoundariesGroupsByMinimizer(t *testing.T) {
	windows := []minimizer.Window{
		{Pos: 0, MmerValue: 5},
		{Pos: 1, MmerValue: 5},
		{Pos: 2, MmerValue: 7},
		{Pos: 3, MmerValue: 7},
		{Pos: 4, MmerValue: 7},
	}
	bounds := superKmerBoundaries(windows, 10)
	require.Len(t, bounds, 2)
	require.Equal(t, boundary{start: 0, end: 11, mmer: 5}, bounds[0])
	require.Equal(t, boundary{start: 2, end: 14, mmer: 7}, bounds[1])
}

func TestSuperKmerBoundariesEmptyInput(t *testing.T) {
	require.Nil(t, superKmerBoundaries(nil, 10))
}

func TestProcessReadSkipsSentinelMinimizer(t *testing.T) {
	// A poly-A run has every m-mer candidate starting with "AA", rejected
	// outright by ForbiddenPrefixAA, so its window minimizer is always
	// minimizer.SentinelValue(m) - one past repart.Table.Entries' last
	// valid index. Must not index out of bounds, and since an invalid
	// m-mer never won a slot in the table, its super-k-mer is dropped.
	const k, m = 8, 4
	ext, err := minimizer.NewExtractor(k, m, minimizer.ForbiddenPrefixAA)
	require.NoError(t, err)

	table := &repart.Table{P: 1, M: m, Entries: make([]uint16, 1<<(2*m))}

	var buf bytes.Buffer
	writers := []*partitionWriter{{w: &buf}}

	err = processRead([]byte("AAAAAAAA"), k, m, ext, table, writers)
	require.NoError(t, err)
	require.Zero(t, buf.Len())
}

func TestPartitionWriterSerializesSuperKmers(t *testing.T) {
	var buf bytes.Buffer
	pw := &partitionWriter{w: &buf}
	require.NoError(t, pw.writeRun([]byte("ACGTACGTACGT")))
	require.NoError(t, pw.writeRun([]byte("TTGGCCAAGGTT")))

	dec := superk.NewDecoder(&buf)
	rec1, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, 12, rec1.Len)

	rec2, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, 12, rec2.Len)
}
