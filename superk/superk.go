// Package superk packs and unpacks super-k-mers: the maximal run of
// overlapping k-mers sharing one minimizer, stored as a single packed
// sequence rather than k separate k-mers. Grounded on
// original_source/include/kmtricks/superk.hpp's set/to_string byte
// layout.
package superk

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/tlemane/kmtricks-sub004/kmer"
)

// ErrCorruptSuperKmer means a stored record's length field didn't match
// the bytes that followed, or the length itself was nonsensical.
var ErrCorruptSuperKmer = errors.New("superk: corrupt record")

// Encode writes one super-k-mer record: [u32 len][ceil(len/4) bytes],
// packing run 2 bits per base, low-to-high within each byte (base 0 in
// the low 2 bits of byte 0), matching superk.hpp's set().
func Encode(run []byte, w io.Writer) error {
	if len(run) == 0 || len(run) > 1<<32-1 {
		return ErrCorruptSuperKmer
	}
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(run)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}

	packed := make([]byte, (len(run)+3)/4)
	for i, b := range run {
		v, err := baseBits(b)
		if err != nil {
			return err
		}
		packed[i/4] |= v << uint(2*(i%4))
	}
	_, err := w.Write(packed)
	return err
}

// Record is one decoded super-k-mer: its original base length and packed
// bytes, ready for sliding-window k-mer extraction.
type Record struct {
	Len    int
	Packed []byte
}

// Decoder reads successive Records from r.
type Decoder struct {
	r io.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next reads the next Record, or io.EOF when the stream is exhausted
// cleanly at a record boundary.
func (d *Decoder) Next() (Record, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(d.r, lenBuf); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, ErrCorruptSuperKmer
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n == 0 {
		return Record{}, ErrCorruptSuperKmer
	}
	packed := make([]byte, (n+3)/4)
	if _, err := io.ReadFull(d.r, packed); err != nil {
		return Record{}, ErrCorruptSuperKmer
	}
	return Record{Len: int(n), Packed: packed}, nil
}

// base returns the base at position i of the packed run.
func (rec Record) base(i int) byte {
	v := (rec.Packed[i/4] >> uint(2*(i%4))) & 3
	return bits2base[v]
}

var bits2base = [4]byte{'A', 'C', 'G', 'T'}

// KmerCodes returns the canonical kmer.Code of every k-mer in rec, in
// left-to-right order, decoded by sliding a k-base window across rec:
// each step shifts the window by one base and re-encodes all k bases with
// spec.Encode (the window shape of the teacher's iterator.go NextKmer,
// without MustEncodeFromFormerKmer's incremental encode).
func (rec Record) KmerCodes(k int, spec *kmer.Spec) ([]kmer.Code, error) {
	if spec.K != k {
		return nil, kmer.ErrKMismatch
	}
	if rec.Len < k {
		return nil, ErrCorruptSuperKmer
	}
	nKmers := rec.Len - k + 1
	out := make([]kmer.Code, nKmers)

	window := make([]byte, k)
	for i := 0; i < k; i++ {
		window[i] = rec.base(i)
	}
	code, err := spec.Encode(window)
	if err != nil {
		return nil, err
	}
	out[0] = spec.Canonical(code)

	for i := 1; i < nKmers; i++ {
		copy(window, window[1:])
		window[k-1] = rec.base(i + k - 1)
		code, err = spec.Encode(window)
		if err != nil {
			return nil, err
		}
		out[i] = spec.Canonical(code)
	}
	return out, nil
}

func baseBits(b byte) (byte, error) {
	switch b {
	case 'A', 'a':
		return 0, nil
	case 'C', 'c':
		return 1, nil
	case 'G', 'g':
		return 2, nil
	case 'T', 't':
		return 3, nil
	}
	return 0, kmer.ErrIllegalBase
}
