// Package kcount counts the canonical k-mers held in one partition's
// super-k-mer file, either entirely in memory or, past a memory budget,
// via an external-sort-and-aggregate fallback, emitting one of three
// output flavors plus an accumulated Histogram.
package kcount

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/twotwotwo/sorts/sortutil"

	"github.com/tlemane/kmtricks-sub004/histo"
	"github.com/tlemane/kmtricks-sub004/kmer"
	"github.com/tlemane/kmtricks-sub004/kmio"
	"github.com/tlemane/kmtricks-sub004/superk"
)

// ErrCorruptSuperKmer is re-exported from superk for callers that only
// import kcount.
var ErrCorruptSuperKmer = superk.ErrCorruptSuperKmer

// ErrMemoryBudget names the resource error for an allocation over the
// memory budget. CountPartition does not return it: past memBudget it
// switches to the sort-based path, which holds every k-mer occurrence of
// the partition in one slice with no upper bound.
var ErrMemoryBudget = errors.New("kcount: memory budget exceeded")

// Mode selects the counted file's output encoding.
type Mode int

const (
	KmerMode Mode = iota
	HashMode
	BloomMode
)

// bytesPerMapEntry estimates map[string]uint32's per-entry overhead for
// the in-memory/external-sort budget decision.
const bytesPerMapEntry = 48

// CountPartition decodes every super-k-mer from every reader in in
// (typically one per input file contributing to this partition),
// canonicalizes and counts each constituent k-mer with a saturating
// counter sized by countWidth bytes (1, 2 or 4), and writes the counted
// output in the given mode to w, returning the accumulated Histogram.
//
// When decoding into an in-memory map would exceed memBudget, falls back
// to decoding into a flat slice, sorting it with
// github.com/twotwotwo/sorts/sortutil (the teacher's common.go idiom),
// and run-length-aggregating adjacent equal keys — the external-sort path
// spec.md §4.6 describes.
func CountPartition(in []io.Reader, k int, mode Mode, countWidth int, threshold uint64, memBudget int64, w io.Writer, stripeWidth uint64) (*histo.Histogram, error) {
	spec, err := kmer.NewSpec(k)
	if err != nil {
		return nil, err
	}

	var allCodes []string // external-sort fallback, keyed the same as the map
	useMap := true
	counts := make(map[string]uint32)

	estimatedEntries := int64(0)
	for _, r := range in {
		dec := superk.NewDecoder(r)
		for {
			rec, err := dec.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, errors.Wrap(err, "kcount: decode super-k-mer")
			}
			codes, err := rec.KmerCodes(k, spec)
			if err != nil {
				return nil, err
			}
			for _, c := range codes {
				key := codeKey(c)
				if useMap {
					counts[key]++
					estimatedEntries = int64(len(counts))
					if estimatedEntries*bytesPerMapEntry > memBudget {
						useMap = false
						allCodes = make([]string, 0, estimatedEntries*2)
						for kk, vv := range counts {
							for i := uint32(0); i < vv; i++ {
								allCodes = append(allCodes, kk)
							}
						}
						counts = nil
					}
				} else {
					allCodes = append(allCodes, key)
				}
			}
		}
	}

	var hist *histo.Histogram
	var err2 error
	if useMap {
		hist, err2 = writeFromMap(counts, countWidth, threshold, mode, w, stripeWidth)
	} else {
		hist, err2 = writeFromSortedSlice(allCodes, countWidth, threshold, mode, w, stripeWidth)
	}
	return hist, err2
}

// codeKey packs every word of c into a big-endian byte string, word 0
// (most significant) first, so byte-lexicographic ordering of the key
// matches kmer.Spec.Compare exactly for any word count — a single 64-bit
// word loses every k-mer past the first 32 bases for k>32.
func codeKey(c kmer.Code) string {
	buf := make([]byte, 8*len(c))
	for i, word := range c {
		binary.BigEndian.PutUint64(buf[i*8:], word)
	}
	return string(buf)
}

func writeFromMap(counts map[string]uint32, countWidth int, threshold uint64, mode Mode, w io.Writer, stripeWidth uint64) (*histo.Histogram, error) {
	hist := histo.NewHistogram(1, 255)
	if err := writeHeader(w); err != nil {
		return nil, err
	}
	fw := kmio.NewFrameWriter(w, false)

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sortutil.Strings(keys)

	for _, key := range keys {
		count := counts[key]
		hist.Add(uint64(count))
		if uint64(count) < threshold {
			continue
		}
		if err := writeEntry(fw, key, count, countWidth, mode, stripeWidth); err != nil {
			return nil, err
		}
	}
	return hist, nil
}

func writeFromSortedSlice(codes []string, countWidth int, threshold uint64, mode Mode, w io.Writer, stripeWidth uint64) (*histo.Histogram, error) {
	sortutil.Strings(codes)

	hist := histo.NewHistogram(1, 255)
	if err := writeHeader(w); err != nil {
		return nil, err
	}
	fw := kmio.NewFrameWriter(w, false)

	i := 0
	for i < len(codes) {
		j := i + 1
		for j < len(codes) && codes[j] == codes[i] {
			j++
		}
		count := uint32(j - i)
		hist.Add(uint64(count))
		if uint64(count) >= threshold {
			if err := writeEntry(fw, codes[i], count, countWidth, mode, stripeWidth); err != nil {
				return nil, err
			}
		}
		i = j
	}
	return hist, nil
}

func writeHeader(w io.Writer) error {
	return kmio.WriteHeader(w, kmio.Header{Magic: kmio.MagicCounted, Version: kmio.CurrentVersion})
}

// writeEntry encodes one counted entry. In KmerMode the record's key field
// is every word of the k-mer's Code (big-endian, word 0 first, i.e. exactly
// codeKey's bytes) so downstream readers can recover the full k-mer for any
// k, not just its low 32 bases; Hash/Bloom modes hash over those same bytes
// so two k-mers sharing a 32-base suffix don't collide past k=32.
func writeEntry(fw *kmio.FrameWriter, key string, count uint32, countWidth int, mode Mode, stripeWidth uint64) error {
	switch mode {
	case KmerMode:
		buf := make([]byte, len(key)+countWidth)
		copy(buf, key)
		putCount(buf[len(key):], count, countWidth)
		return fw.WriteFrame(buf)
	case HashMode:
		h := xxhash.Sum64([]byte(key))
		buf := make([]byte, 8+countWidth)
		binary.LittleEndian.PutUint64(buf[0:8], h)
		putCount(buf[8:], count, countWidth)
		return fw.WriteFrame(buf)
	case BloomMode:
		h := xxhash.Sum64([]byte(key))
		bit := h % stripeWidth
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, bit)
		return fw.WriteFrame(buf)
	}
	return errors.Errorf("kcount: unknown mode %d", mode)
}

func putCount(buf []byte, count uint32, width int) {
	max := uint32(1)<<uint(8*width) - 1
	if count > max {
		count = max // saturating counter
	}
	switch width {
	case 1:
		buf[0] = byte(count)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(count))
	case 4:
		binary.LittleEndian.PutUint32(buf, count)
	}
}
