package histo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddClampsIntoRangeAndTracksOOB(t *testing.T) {
	h := NewHistogram(1, 10)
	h.Add(0)
	h.Add(5)
	h.Add(5)
	h.Add(100)

	require.Equal(t, uint64(1), h.OOBLo)
	require.Equal(t, uint64(1), h.OOBHi)
	require.Equal(t, uint64(2), h.Unique[5-1])
	require.Equal(t, uint64(10), h.Total[4])
	require.Equal(t, uint64(1), h.Unique[10-1])
}

func TestHistogramRoundTripsThroughWriteAndRead(t *testing.T) {
	h := NewHistogram(1, 20)
	for c := uint64(1); c <= 30; c++ {
		h.Add(c)
		h.Add(c)
	}

	var buf bytes.Buffer
	require.NoError(t, h.WriteTo(&buf))

	got, err := ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, h.Lower, got.Lower)
	require.Equal(t, h.Upper, got.Upper)
	require.Equal(t, h.Unique, got.Unique)
	require.Equal(t, h.Total, got.Total)
	require.Equal(t, h.OOBHi, got.OOBHi)
}

func TestPickThresholdFindsTrough(t *testing.T) {
	h := NewHistogram(1, 15)
	// synthetic error peak descending from count=1 then a coverage peak
	// rising again, trough between them.
	counts := []uint64{100, 50, 20, 8, 3, 2, 5, 15, 40, 60, 35, 10, 4, 2, 1}
	for i, c := range counts {
		for j := uint64(0); j < c; j++ {
			h.Add(uint64(i + 1))
		}
	}

	got := PickThreshold(h, 0)
	require.Equal(t, uint64(6), got) // index of the minimum (value 2) at position i=5 -> abundance 6
}

func TestPickThresholdFallsBackToFloorWhenMonotonic(t *testing.T) {
	h := NewHistogram(1, 10)
	for i := 1; i <= 10; i++ {
		for j := 0; j < i; j++ {
			h.Add(uint64(i))
		}
	}
	require.Equal(t, uint64(DefaultFloor), PickThreshold(h, 0))
}

func TestPickThresholdHonorsCustomFloor(t *testing.T) {
	h := NewHistogram(1, 5)
	require.Equal(t, uint64(7), PickThreshold(h, 7))
}
