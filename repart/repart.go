// Package repart implements the repartition table: a sampled-frequency,
// bin-packed map from minimizer (m-mer) value to partition id, with a
// binary layout grounded line-for-line on the kmtricks C++ repartition
// header.
package repart

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/tlemane/kmtricks-sub004/minimizer"
)

// Magic is the fixed marker written at the end of a serialized Table,
// matching original_source/include/kmtricks/repartition.hpp.
const Magic = uint32(0x12345678)

// ErrBadMagic means the trailing magic word did not match.
var ErrBadMagic = errors.New("repart: bad magic")

// ErrShortRead means the reader ran out before a complete Table was read.
var ErrShortRead = errors.New("repart: short read")

// DefaultSampleFraction is the fraction of input reads Train samples by
// default (spec.md §4.2).
const DefaultSampleFraction = 0.1

// Table maps every possible m-mer value to the partition it belongs to.
type Table struct {
	P       int
	M       int
	Entries []uint16 // length 4^M, Entries[v] = partition id for m-mer value v
	HasFreq bool
}

// Partition returns the partition id assigned to mmerValue.
func (t *Table) Partition(mmerValue uint32) int {
	return int(t.Entries[mmerValue])
}

// SampleSource yields successive reads (as raw ACGT runs, already split
// of any ambiguous bases) to sample for training; partition.SplitValidRuns
// produces exactly this shape.
type SampleSource interface {
	// NextRun returns the next valid run and true, or ok=false at EOF.
	NextRun() (run []byte, ok bool, err error)
}

// Train samples a fraction of src's reads, tallies m-mer frequency, and
// bin-packs the 4^m possible m-mers across p partitions by descending
// frequency using longest-processing-time list scheduling: sort m-mers by
// descending count, repeatedly assign the next heaviest m-mer to whichever
// bin currently holds the least total weight. This keeps per-partition
// input size roughly balanced even though m-mer frequency in real genomes
// is very skewed (spec.md §4.2).
func Train(src SampleSource, k, m, p int, fraction float64) (*Table, []uint32, error) {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultSampleFraction
	}
	if p < 1 {
		return nil, nil, fmt.Errorf("repart: p must be >= 1, got %d", p)
	}

	ext, err := minimizer.NewExtractor(k, m, minimizer.ForbiddenPrefixAA)
	if err != nil {
		return nil, nil, err
	}

	n := uint32(1) << uint(2*m)
	freq := make([]uint32, n)

	keepEvery := int(1 / fraction)
	if keepEvery < 1 {
		keepEvery = 1
	}

	i := 0
	for {
		run, ok, err := src.NextRun()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		i++
		if i%keepEvery != 0 {
			continue
		}
		if len(run) < k {
			continue
		}
		windows, err := ext.ScanRun(run)
		if err != nil {
			return nil, nil, err
		}
		for _, w := range windows {
			if w.MmerValue < n {
				freq[w.MmerValue]++
			}
		}
	}

	entries := packByFrequency(freq, p)
	return &Table{P: p, M: m, Entries: entries, HasFreq: true}, freq, nil
}

// packByFrequency implements longest-processing-time list scheduling of
// the 4^m m-mer ids, sorted by descending freq, into p bins.
func packByFrequency(freq []uint32, p int) []uint16 {
	n := len(freq)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if freq[order[a]] != freq[order[b]] {
			return freq[order[a]] > freq[order[b]]
		}
		return order[a] < order[b]
	})

	load := make([]uint64, p)
	entries := make([]uint16, n)
	for _, mmer := range order {
		lightest := 0
		for b := 1; b < p; b++ {
			if load[b] < load[lightest] {
				lightest = b
			}
		}
		entries[mmer] = uint16(lightest)
		load[lightest] += uint64(freq[mmer])
	}
	return entries
}

// WriteTo serializes t as:
// [u16 P][u64 4^M][u16 pass_count=1][u16[4^M] table][u8 has_freq][u32 magic]
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	var n int64
	var err error

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[:2], uint16(t.P))
	if nn, err := w.Write(buf[:2]); err != nil {
		return n, err
	} else {
		n += int64(nn)
	}

	nMmers := uint64(len(t.Entries))
	binary.LittleEndian.PutUint64(buf[:8], nMmers)
	if nn, err := w.Write(buf[:8]); err != nil {
		return n, err
	} else {
		n += int64(nn)
	}

	binary.LittleEndian.PutUint16(buf[:2], 1) // pass_count
	if nn, err := w.Write(buf[:2]); err != nil {
		return n, err
	} else {
		n += int64(nn)
	}

	tableBytes := make([]byte, 2*len(t.Entries))
	for i, v := range t.Entries {
		binary.LittleEndian.PutUint16(tableBytes[2*i:], v)
	}
	if nn, err := w.Write(tableBytes); err != nil {
		return n, err
	} else {
		n += int64(nn)
	}

	hasFreq := byte(0)
	if t.HasFreq {
		hasFreq = 1
	}
	if nn, err := w.Write([]byte{hasFreq}); err != nil {
		return n, err
	} else {
		n += int64(nn)
	}

	binary.LittleEndian.PutUint32(buf[:4], Magic)
	if nn, err := w.Write(buf[:4]); err != nil {
		return n, err
	} else {
		n += int64(nn)
	}

	return n, err
}

// ReadTableFrom deserializes a Table previously written by WriteTo.
func ReadTableFrom(r io.Reader) (*Table, error) {
	var buf [8]byte

	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return nil, wrapShort(err)
	}
	p := binary.LittleEndian.Uint16(buf[:2])

	if _, err := io.ReadFull(r, buf[:8]); err != nil {
		return nil, wrapShort(err)
	}
	nMmers := binary.LittleEndian.Uint64(buf[:8])

	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return nil, wrapShort(err)
	}
	// pass_count is read but unused: this repo always writes a single pass.

	tableBytes := make([]byte, 2*nMmers)
	if _, err := io.ReadFull(r, tableBytes); err != nil {
		return nil, wrapShort(err)
	}
	entries := make([]uint16, nMmers)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint16(tableBytes[2*i:])
	}

	var hasFreqByte [1]byte
	if _, err := io.ReadFull(r, hasFreqByte[:]); err != nil {
		return nil, wrapShort(err)
	}

	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		return nil, wrapShort(err)
	}
	magic := binary.LittleEndian.Uint32(buf[:4])
	if magic != Magic {
		return nil, ErrBadMagic
	}

	m := 0
	for n := nMmers; n > 1; n >>= 2 {
		m++
	}

	return &Table{
		P:       int(p),
		M:       m,
		Entries: entries,
		HasFreq: hasFreqByte[0] != 0,
	}, nil
}

func wrapShort(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortRead
	}
	return err
}
