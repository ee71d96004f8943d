// Package kmerge performs the N-way merge of per-sample counted
// partition files into a joint matrix, presence/absence, or Bloom-stripe
// output. Grounded on the teacher's unikmer/cmd/util-sort.go
// codeEntryHeap/mergeChunksFile k-way merge, generalized from "dedup one
// stream" to "build an N-wide row per popped key."
package kmerge

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash"

	"github.com/tlemane/kmtricks-sub004/kmio"
)

// ErrNonMonotonicKey aborts a partition's merge: a cursor produced a key
// not >= the previous key it returned, meaning its input wasn't sorted as
// required (spec.md §8 scenario 6).
type ErrNonMonotonicKey struct {
	Sample string
	Offset int64
}

func (e *ErrNonMonotonicKey) Error() string {
	return fmt.Sprintf("kmerge: non-monotonic key in sample %q at offset %d", e.Sample, e.Offset)
}

// Flavor selects the merged output's shape.
type Flavor int

const (
	FlavorCount    Flavor = iota // length-N vector of per-sample counts
	FlavorPresence               // bit-vector of count >= threshold
	FlavorBloom                  // OR row's presence bits into stripe key%W
)

// Solidity decides whether a merged row should be emitted at all.
type Solidity func(counts []uint64) bool

// AtLeastNSamples returns a Solidity requiring at least n samples to have
// a nonzero count.
func AtLeastNSamples(n int) Solidity {
	return func(counts []uint64) bool {
		present := 0
		for _, c := range counts {
			if c > 0 {
				present++
			}
		}
		return present >= n
	}
}

// Cursor wraps one sample's counted-file reader, its per-sample
// threshold, and the countWidth/keyWidth used to decode its entries.
// keyWidth is 8*words for a KmerMode-counted file (every word of the
// k-mer's kmer.Code, so k>32 k-mers stay distinct) or a fixed 8 for a
// HashMode-counted file (a single xxhash word regardless of k).
type Cursor struct {
	Sample     string
	fr         *kmio.FrameReader
	Threshold  uint64
	CountWidth int
	KeyWidth   int

	curKey   string
	curCount uint64
	lastKey  string
	hasLast  bool
	done     bool
	offset   int64
}

// NewCursor builds a Cursor over r, which must already be positioned past
// its kmio header (the caller reads the header to learn countWidth/mode
// up front).
func NewCursor(sample string, r io.Reader, threshold uint64, countWidth, keyWidth int) *Cursor {
	return &Cursor{
		Sample:     sample,
		fr:         kmio.NewFrameReader(r, false),
		Threshold:  threshold,
		CountWidth: countWidth,
		KeyWidth:   keyWidth,
	}
}

// advance reads the next entry into curKey/curCount, or sets done.
func (c *Cursor) advance() error {
	frame, err := c.fr.ReadFrame()
	if err != nil {
		if err == io.EOF {
			c.done = true
			return nil
		}
		return err
	}
	c.offset += int64(len(frame))
	if len(frame) < c.KeyWidth+c.CountWidth {
		return &ErrNonMonotonicKey{Sample: c.Sample, Offset: c.offset}
	}
	key := string(frame[:c.KeyWidth])
	if c.hasLast && key < c.lastKey {
		return &ErrNonMonotonicKey{Sample: c.Sample, Offset: c.offset}
	}
	c.lastKey, c.hasLast = key, true
	c.curKey = key
	c.curCount = decodeCount(frame[c.KeyWidth:], c.CountWidth)
	return nil
}

func decodeCount(buf []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	}
	return 0
}

// cursorHeap is a container/heap of cursors keyed by ascending curKey,
// grounded on the teacher's codeEntryHeap.
type cursorHeap []*Cursor

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].curKey < h[j].curKey }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*Cursor)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge drives a k-way heap merge of cursors, emitting one row per
// distinct key across all cursors currently positioned there. flavor
// selects the row encoding; solidity gates which rows are emitted at all.
// Returns the number of rows written.
func Merge(cursors []*Cursor, solidity Solidity, flavor Flavor, w io.Writer, stripeWidth uint64) (int64, error) {
	if err := kmio.WriteHeader(w, kmio.Header{Magic: kmio.MagicMatrix, Version: kmio.CurrentVersion}); err != nil {
		return 0, err
	}
	fw := kmio.NewFrameWriter(w, false)

	h := make(cursorHeap, 0, len(cursors))
	for _, c := range cursors {
		if err := c.advance(); err != nil {
			return 0, err
		}
		if !c.done {
			h = append(h, c)
		}
	}
	heap.Init(&h)

	n := len(cursors)
	indexOf := make(map[*Cursor]int, n)
	for i, c := range cursors {
		indexOf[c] = i
	}

	// The Bloom stripe is stripeWidth rows of rowBytes bytes; bit i of a
	// row is sample i.
	stripe := make([]byte, 0)
	rowBytes := uint64(n+7) / 8
	if flavor == FlavorBloom {
		if stripeWidth == 0 {
			stripeWidth = 1 << 20
		}
		stripe = make([]byte, stripeWidth*rowBytes)
	}

	var rowsWritten int64
	for h.Len() > 0 {
		key := h[0].curKey
		counts := make([]uint64, n)

		for h.Len() > 0 && h[0].curKey == key {
			c := heap.Pop(&h).(*Cursor)
			counts[indexOf[c]] = c.curCount
			if err := c.advance(); err != nil {
				return rowsWritten, err
			}
			if !c.done {
				heap.Push(&h, c)
			}
		}

		if !solidity(counts) {
			continue
		}

		switch flavor {
		case FlavorCount:
			if err := writeCountRow(fw, key, counts); err != nil {
				return rowsWritten, err
			}
		case FlavorPresence:
			if err := writePresenceRow(fw, key, counts, cursors); err != nil {
				return rowsWritten, err
			}
		case FlavorBloom:
			// Hash the full key (not just its low 64 bits, which for a
			// KmerMode key >8 bytes would collapse every k-mer sharing
			// its low 32 bases onto the same row) down to one stripe row,
			// then OR the row's presence bits into it.
			bit := xxhash.Sum64([]byte(key)) % stripeWidth
			stripeRow := stripe[bit*rowBytes : (bit+1)*rowBytes]
			for i, c := range counts {
				if c >= cursors[i].Threshold {
					stripeRow[i/8] |= 1 << uint(i%8)
				}
			}
		}
		rowsWritten++
	}

	if flavor == FlavorBloom {
		if err := fw.WriteFrame(stripe); err != nil {
			return rowsWritten, err
		}
	}

	return rowsWritten, nil
}

func writeCountRow(fw *kmio.FrameWriter, key string, counts []uint64) error {
	buf := make([]byte, len(key)+8*len(counts))
	copy(buf, key)
	for i, c := range counts {
		binary.LittleEndian.PutUint64(buf[len(key)+8*i:], c)
	}
	return fw.WriteFrame(buf)
}

func writePresenceRow(fw *kmio.FrameWriter, key string, counts []uint64, cursors []*Cursor) error {
	nBytes := (len(counts) + 7) / 8
	buf := make([]byte, len(key)+nBytes)
	copy(buf, key)
	for i, c := range counts {
		if c >= cursors[i].Threshold {
			buf[len(key)+i/8] |= 1 << uint(i%8)
		}
	}
	return fw.WriteFrame(buf)
}
