// Package histo implements the per-sample k-mer abundance histogram and
// the trough-based minimum-abundance picker, per spec.md §6's histogram
// file layout and §4.6's "hist[min(count,U)]++" accumulation rule.
package histo

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tlemane/kmtricks-sub004/kmio"
)

// DefaultFloor is the minimum abundance PickThreshold falls back to when
// no trough is found.
const DefaultFloor = 2

// Histogram accumulates two parallel counter arrays over [Lower, Upper]:
// Unique counts distinct k-mers at each abundance, Total counts raw
// occurrences; counts landing outside the range accrue in OOBLo/OOBHi.
type Histogram struct {
	Lower, Upper uint64
	Unique       []uint64
	Total        []uint64
	OOBLo, OOBHi uint64
}

// NewHistogram allocates a Histogram covering [lower, upper].
func NewHistogram(lower, upper uint64) *Histogram {
	n := upper - lower + 1
	return &Histogram{
		Lower: lower,
		Upper: upper,
		Unique: make([]uint64, n),
		Total:  make([]uint64, n),
	}
}

// Add records one k-mer seen with the given raw count: one unique
// observation, count total occurrences, both clamped into [Lower, Upper]
// (spec.md §4.6: "hist[min(count,U)]++").
func (h *Histogram) Add(count uint64) {
	if count < h.Lower {
		h.OOBLo++
		return
	}
	clamped := count
	if clamped > h.Upper {
		clamped = h.Upper
		h.OOBHi++
	}
	idx := clamped - h.Lower
	h.Unique[idx]++
	h.Total[idx] += count
}

// WriteTo serializes h via kmio's histogram framing:
// [u64 lower][u64 upper][u64[n] unique][u64[n] total][u64 oob_lo][u64 oob_hi].
func (h *Histogram) WriteTo(w io.Writer) error {
	if err := kmio.WriteHeader(w, kmio.Header{Magic: kmio.MagicHistogram, Version: kmio.CurrentVersion}); err != nil {
		return err
	}
	n := len(h.Unique)
	buf := make([]byte, 8*2+8*n*2+8*2)
	off := 0
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[off:], v)
		off += 8
	}
	putU64(h.Lower)
	putU64(h.Upper)
	for _, v := range h.Unique {
		putU64(v)
	}
	for _, v := range h.Total {
		putU64(v)
	}
	putU64(h.OOBLo)
	putU64(h.OOBHi)

	fw := kmio.NewFrameWriter(w, false)
	return fw.WriteFrame(buf)
}

// ReadFrom deserializes a Histogram previously written by WriteTo.
func ReadFrom(r io.Reader) (*Histogram, error) {
	if _, err := kmio.ReadHeader(r, kmio.MagicHistogram); err != nil {
		return nil, err
	}
	fr := kmio.NewFrameReader(r, false)
	buf, err := fr.ReadFrame()
	if err != nil {
		return nil, err
	}
	if len(buf) < 16 {
		return nil, fmt.Errorf("histo: truncated record")
	}
	off := 0
	getU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		return v
	}
	lower := getU64()
	upper := getU64()
	n := int(upper - lower + 1)
	if len(buf) < off+8*n*2+16 {
		return nil, fmt.Errorf("histo: truncated record")
	}
	unique := make([]uint64, n)
	for i := range unique {
		unique[i] = getU64()
	}
	total := make([]uint64, n)
	for i := range total {
		total[i] = getU64()
	}
	oobLo := getU64()
	oobHi := getU64()

	return &Histogram{
		Lower:  lower,
		Upper:  upper,
		Unique: unique,
		Total:  total,
		OOBLo:  oobLo,
		OOBHi:  oobHi,
	}, nil
}

// PickThreshold walks h.Unique looking for the classic k-mer-spectrum
// "sequencing-error trough": the first local minimum reached after the
// initial descent from the error-kmer peak, on the way up to the true-
// coverage peak. Its abundance value becomes the recommended minimum;
// when no such minimum exists within h's range, floor is returned
// instead.
func PickThreshold(h *Histogram, floor uint64) uint64 {
	if floor == 0 {
		floor = DefaultFloor
	}
	n := len(h.Unique)
	if n < 3 {
		return floor
	}

	i := 1
	for i < n-1 && h.Unique[i] <= h.Unique[i-1] {
		i++
	}
	if i >= n-1 || i == 1 {
		// either no rise before the last bucket, or a rise at the very
		// first step (no error peak to descend from): no trough to find.
		return floor
	}

	value := h.Lower + uint64(i-1)
	if value < floor {
		return floor
	}
	return value
}
