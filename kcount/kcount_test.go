package kcount

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tlemane/kmtricks-sub004/kmio"
	"github.com/tlemane/kmtricks-sub004/superk"
)

func encodeSuperKmers(t *testing.T, runs ...string) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	for _, r := range runs {
		require.NoError(t, superk.Encode([]byte(r), &buf))
	}
	return &buf
}

func readEntries(t *testing.T, buf *bytes.Buffer) [][]byte {
	t.Helper()
	_, err := kmio.ReadHeader(buf, kmio.MagicCounted)
	require.NoError(t, err)
	fr := kmio.NewFrameReader(buf, false)
	var out [][]byte
	for {
		f, err := fr.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestCountPartitionInMemoryKmerMode(t *testing.T) {
	in := encodeSuperKmers(t, "ACGTACGTAC", "ACGTACGTAC")
	var out bytes.Buffer

	hist, err := CountPartition([]io.Reader{in}, 8, KmerMode, 1, 0, 1<<30, &out, 0)
	require.NoError(t, err)
	require.NotNil(t, hist)

	entries := readEntries(t, &out)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.Len(t, e, 9) // 8 bytes key + 1 byte count
	}
}

func TestCountPartitionAppliesThreshold(t *testing.T) {
	in := encodeSuperKmers(t, "ACGTACGTAC")
	var out bytes.Buffer

	_, err := CountPartition([]io.Reader{in}, 8, KmerMode, 1, 5, 1<<30, &out, 0)
	require.NoError(t, err)

	entries := readEntries(t, &out)
	require.Empty(t, entries) // every k-mer here occurs once, below threshold 5
}

func TestCountPartitionHashMode(t *testing.T) {
	in := encodeSuperKmers(t, "ACGTACGTACGTAC")
	var out bytes.Buffer

	_, err := CountPartition([]io.Reader{in}, 8, HashMode, 2, 0, 1<<30, &out, 0)
	require.NoError(t, err)

	entries := readEntries(t, &out)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.Len(t, e, 10) // 8 byte hash + 2 byte count
	}
}

func TestCountPartitionFallsBackToExternalSortUnderTightBudget(t *testing.T) {
	in := encodeSuperKmers(t, "ACGTACGTACGTACGTACGTAC")
	var out bytes.Buffer

	hist, err := CountPartition([]io.Reader{in}, 8, KmerMode, 1, 0, 1, &out, 0)
	require.NoError(t, err)
	require.NotNil(t, hist)

	entries := readEntries(t, &out)
	require.NotEmpty(t, entries)
}

func TestCountPartitionKeepsMultiWordKmersDistinct(t *testing.T) {
	// k=64 spans exactly 2 words. Both runs share their first 32 bases
	// (word 0) and differ only in their last 32 (word 1); a key built
	// from word 0 alone would wrongly collapse them into one entry.
	seqA := strings.Repeat("A", 32) + strings.Repeat("C", 32)
	seqB := strings.Repeat("A", 32) + strings.Repeat("G", 32)
	in := encodeSuperKmers(t, seqA, seqB)
	var out bytes.Buffer

	_, err := CountPartition([]io.Reader{in}, 64, KmerMode, 1, 0, 1<<30, &out, 0)
	require.NoError(t, err)

	entries := readEntries(t, &out)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Len(t, e, 17) // 16 bytes (2 words) key + 1 byte count
	}
	require.NotEqual(t, entries[0][:16], entries[1][:16])
}

func TestCountPartitionBloomModeWritesStripeBits(t *testing.T) {
	in := encodeSuperKmers(t, "ACGTACGTAC")
	var out bytes.Buffer

	_, err := CountPartition([]io.Reader{in}, 8, BloomMode, 1, 0, 1<<30, &out, 1024)
	require.NoError(t, err)

	entries := readEntries(t, &out)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.Len(t, e, 8)
	}
}
