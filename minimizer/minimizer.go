// Package minimizer extracts, for every k-mer window of a read, the
// minimum m-mer under a hash-derived ordering, using a window buffer kept
// sorted by ordering key (the same shape as the teacher's sketch.go
// windowed-minimum scan). Insertion and eviction both scan the buffer
// linearly, so each position costs O(k-m+1).
package minimizer

import (
	"fmt"

	"github.com/tlemane/kmtricks-sub004/kmer"
)

// ErrInvalidM means m is out of range or not smaller than k.
var ErrInvalidM = fmt.Errorf("minimizer: invalid m-mer size")

// MmerSpec describes the m-mer size used to pick minimizers. m is at most
// 15 so that every m-mer value and the sentinel 4^m fit a uint32 and a
// repartition table of size 4^m is tractable.
type MmerSpec struct {
	M    int
	spec *kmer.Spec
}

// NewMmerSpec validates m against k and builds the associated kmer.Spec.
// The spec is only used for Spec.Hash, which reads a Code's words alone,
// so it is built directly rather than through kmer.NewSpec (whose k >=
// kmer.MinK bound does not apply to m-mers).
func NewMmerSpec(k, m int) (*MmerSpec, error) {
	if m < 1 || m > 15 || m >= k {
		return nil, fmt.Errorf("%w: m=%d k=%d", ErrInvalidM, m, k)
	}
	return &MmerSpec{M: m, spec: &kmer.Spec{K: m, Words: 1}}, nil
}

// SentinelValue is the value assigned to an m-mer rejected by IsValid:
// 4^m, one past the largest representable m-mer value.
func SentinelValue(m int) uint32 {
	return uint32(1) << uint(2*m)
}

// ForbiddenPrefixAA is the default IsValid policy: an m-mer beginning
// with "AA" (the two most-significant bases both zero) is excluded, as
// spec.md §3 calls for ("e.g. leading AA").
func ForbiddenPrefixAA(value uint32, m int) bool {
	top := value >> uint(2*(m-2))
	return top == 0
}

// IsValid reports whether the m-mer encoded by value passes the given
// forbidden-pattern predicate (nil means "always valid").
func IsValid(value uint32, m int, forbidden func(uint32, int) bool) bool {
	if forbidden == nil {
		return true
	}
	return !forbidden(value, m)
}

// valueAndKey returns the m-mer value held in the top 2*m bits of
// windowBits and its ordering key (hash), mirroring the C++ side's
// Mmer::value()/ordering.
func (ms *MmerSpec) valueAndKey(windowBits uint64, forbidden func(uint32, int) bool) (value uint32, key uint64) {
	value = uint32(windowBits >> uint(64-2*ms.M))
	if !IsValid(value, ms.M, forbidden) {
		value = SentinelValue(ms.M)
		return value, ^uint64(0)
	}
	code := kmer.Code{uint64(value) << uint(64-2*ms.M)}
	key = ms.spec.Hash(code)
	return value, key
}

// Window is the minimizer winning at one k-mer start position of a read.
type Window struct {
	Pos       int    // 0-based start offset of the k-mer in the run
	MmerValue uint32 // winning m-mer value, used to look up the partition
}

// entry is one candidate m-mer still inside the current k-mer's window.
type entry struct {
	pos   int
	value uint32
	key   uint64
}

// Extractor slides a k-length window across a valid (all-ACGT) run and
// yields the minimizer Window at every k-mer start position.
type Extractor struct {
	k, m int
	ms   *MmerSpec
	forbidden func(uint32, int) bool
}

// NewExtractor builds an Extractor for k-mers of length k with m-mer
// minimizers of length m.
func NewExtractor(k, m int, forbidden func(uint32, int) bool) (*Extractor, error) {
	ms, err := NewMmerSpec(k, m)
	if err != nil {
		return nil, err
	}
	return &Extractor{k: k, m: m, ms: ms, forbidden: forbidden}, nil
}

// ScanRun returns the minimizer Window for every k-mer start position in
// run (run must be all-ACGT and at least k bases long; the caller -
// partition.SplitValidRuns - guarantees this).
//
// Implementation: maintain a buffer of m-mer entries currently inside the
// k-mer window, kept sorted by ordering key via linear-scan insertion
// and position-keyed linear eviction (sketch.go's NextMinimizer shape,
// without its binary-search insert), so the window minimum is always
// buf[0].
func (e *Extractor) ScanRun(run []byte) ([]Window, error) {
	nWindows := len(run) - e.k + 1
	if nWindows <= 0 {
		return nil, nil
	}
	nMmerWindows := len(run) - e.m + 1

	mvals := make([]uint32, nMmerWindows)
	mkeys := make([]uint64, nMmerWindows)
	var bits uint64
	mmask := uint64(1)<<uint(2*e.m) - 1
	for i := 0; i < len(run); i++ {
		b, err := baseBits(run[i])
		if err != nil {
			return nil, err
		}
		bits = ((bits << 2) | uint64(b)) & mmask
		if i >= e.m-1 {
			idx := i - (e.m - 1)
			v, k := e.ms.valueAndKey(bits<<uint(64-2*e.m), e.forbidden)
			mvals[idx] = v
			mkeys[idx] = k
		}
	}

	out := make([]Window, nWindows)
	mmersPerWindow := e.k - e.m + 1

	buf := make([]entry, 0, mmersPerWindow)
	// prime the first window
	for i := 0; i < mmersPerWindow; i++ {
		insert(&buf, entry{pos: i, value: mvals[i], key: mkeys[i]})
	}
	out[0] = Window{Pos: 0, MmerValue: buf[0].value}

	for w := 1; w < nWindows; w++ {
		evictPos := w - 1
		for i := range buf {
			if buf[i].pos == evictPos {
				buf = append(buf[:i], buf[i+1:]...)
				break
			}
		}
		newIdx := w + mmersPerWindow - 1
		insert(&buf, entry{pos: newIdx, value: mvals[newIdx], key: mkeys[newIdx]})
		out[w] = Window{Pos: w, MmerValue: buf[0].value}
	}

	return out, nil
}

// insert keeps buf sorted ascending by key (ties broken by natural
// integer order on value, per spec.md §4.1).
func insert(buf *[]entry, e entry) {
	b := *buf
	i := 0
	for i < len(b) && less(b[i], e) {
		i++
	}
	b = append(b, entry{})
	copy(b[i+1:], b[i:])
	b[i] = e
	*buf = b
}

func less(a, b entry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.value < b.value
}

func baseBits(b byte) (uint64, error) {
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
