// Package runconfig derives and persists the parameters one kmtricks run
// is pinned to: k, m, partition count, Bloom stripe width, count width
// and memory budget, plus the on-disk directory layout every other
// package reads and writes through.
package runconfig

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/tlemane/kmtricks-sub004/kmio"
)

// Ordering names how minimizers are ranked within a window; kept as an
// explicit type so a persisted Config always states which rule a
// repartition table was trained under.
type Ordering int

const (
	// OrderingHash orders m-mers by kmer.Spec.Hash, ties broken by value.
	OrderingHash Ordering = iota
)

// perPartitionMemoryBudget is the working-set size Derive aims to keep
// each partition's in-memory counting pass under, before P is grown.
const perPartitionMemoryBudget = 256 * 1024 * 1024 // 256MiB

// defaultUserCapP bounds how many partitions Derive will ever pick absent
// an explicit cap, independent of the open-file-limit clamp.
const defaultUserCapP = 2048

// Config is the full set of parameters one run is pinned to for its
// lifetime; every artifact kmio writes carries (or is validated against)
// these values.
type Config struct {
	K                 int
	M                 int
	P                 int
	W                 uint64
	MinimizerOrdering Ordering
	CountWidth        int
	MemoryBudget      int64
	RunDir            string
}

// Option customizes Derive's defaults.
type Option func(*deriveOptions)

type deriveOptions struct {
	k, m         int
	countWidth   int
	memoryBudget int64
	userCapP     int
	runDir       string
}

// WithK sets the k-mer length (default 31).
func WithK(k int) Option { return func(o *deriveOptions) { o.k = k } }

// WithM sets the minimizer length (default 10).
func WithM(m int) Option { return func(o *deriveOptions) { o.m = m } }

// WithCountWidth sets the saturating counter width in bytes: 1, 2 or 4
// (default 1).
func WithCountWidth(w int) Option { return func(o *deriveOptions) { o.countWidth = w } }

// WithMemoryBudget overrides the total memory budget Derive plans
// partition count P around.
func WithMemoryBudget(bytes int64) Option {
	return func(o *deriveOptions) { o.memoryBudget = bytes }
}

// WithPartitionCap bounds the number of partitions Derive may pick,
// independent of the open-file-descriptor clamp.
func WithPartitionCap(p int) Option { return func(o *deriveOptions) { o.userCapP = p } }

// WithRunDir sets the run directory (default "."); a leading "~" is
// expanded via go-homedir.
func WithRunDir(dir string) Option { return func(o *deriveOptions) { o.runDir = dir } }

// Derive computes a Config sized for nSamples input samples holding an
// estimated estimatedDistinctKmers total distinct k-mers: P grows
// proportionally to estimatedDistinctKmers/perPartitionMemoryBudget,
// clamped to [1, min(openFileLimit(), userCap)], and W (the Bloom stripe
// window width) is rounded up to a multiple of 64 bits exactly as
// ROUND_UP does in original_source/include/kmtricks/hash.hpp.
func Derive(nSamples int, estimatedDistinctKmers int64, opts ...Option) (*Config, error) {
	if nSamples < 1 {
		return nil, fmt.Errorf("runconfig: nSamples must be >= 1, got %d", nSamples)
	}
	if estimatedDistinctKmers < 0 {
		return nil, fmt.Errorf("runconfig: estimatedDistinctKmers must be >= 0")
	}

	o := deriveOptions{
		k:            31,
		m:            10,
		countWidth:   1,
		memoryBudget: int64(perPartitionMemoryBudget) * int64(runtime.NumCPU()),
		userCapP:     defaultUserCapP,
		runDir:       ".",
	}
	for _, opt := range opts {
		opt(&o)
	}

	bytesPerDistinctKmer := int64(8) // one packed word estimate for k<=32
	totalWorkingSet := estimatedDistinctKmers * bytesPerDistinctKmer
	p := int(totalWorkingSet/perPartitionMemoryBudget) + 1

	cap := o.userCapP
	if limit, ok := openFileLimit(); ok && limit < cap {
		cap = limit
	}
	if p > cap {
		p = cap
	}
	if p < 1 {
		p = 1
	}

	bloomSizeEstimate := uint64(estimatedDistinctKmers) * 8
	if bloomSizeEstimate == 0 {
		bloomSizeEstimate = 64
	}
	windowBits := roundUp(ceilDiv(bloomSizeEstimate, uint64(p)), 64)

	runDir, err := homedir.Expand(o.runDir)
	if err != nil {
		return nil, err
	}

	return &Config{
		K:                 o.k,
		M:                 o.m,
		P:                 p,
		W:                 windowBits,
		MinimizerOrdering: OrderingHash,
		CountWidth:        o.countWidth,
		MemoryBudget:      o.memoryBudget,
		RunDir:            runDir,
	}, nil
}

// roundUp rounds n up to the nearest multiple of to, matching the C++
// ROUND_UP macro.
func roundUp(n, to uint64) uint64 {
	return ((n + to - 1) / to) * to
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// openFileLimit returns the process's soft RLIMIT_NOFILE, halved to
// leave headroom for stdio/log/socket fds, or ok=false on platforms where
// the syscall is unavailable (Derive then relies solely on userCapP).
func openFileLimit() (int, bool) {
	limit, ok := getrlimitNoFile()
	if !ok {
		return 0, false
	}
	n := int(limit / 2)
	if n < 1 {
		n = 1
	}
	return n, true
}

// Layout names every directory/file this run writes, matching spec.md
// §4.8's tree.
type Layout struct {
	root string
}

// Layout returns the path helper rooted at cfg.RunDir.
func (c *Config) Layout() Layout {
	return Layout{root: c.RunDir}
}

func (l Layout) Root() string            { return l.root }
func (l Layout) ConfigFile() string      { return filepath.Join(l.root, "config.kmtc") }
func (l Layout) RepartitionFile() string { return filepath.Join(l.root, "repartition.kmtc") }
func (l Layout) StateFile() string       { return filepath.Join(l.root, "state.kmtc") }
func (l Layout) SuperkDir(sample string) string {
	return filepath.Join(l.root, "partition_storage", "superkmer", sample)
}
func (l Layout) SuperkFile(sample string, partition int) string {
	return filepath.Join(l.SuperkDir(sample), fmt.Sprintf("partition_%d.sk", partition))
}
func (l Layout) CountedDir(sample string) string {
	return filepath.Join(l.root, "partition_storage", "counts", sample)
}
func (l Layout) CountedFile(sample string, partition int) string {
	return filepath.Join(l.CountedDir(sample), fmt.Sprintf("partition_%d.cnt", partition))
}
func (l Layout) MatrixDir() string { return filepath.Join(l.root, "matrix") }
func (l Layout) MatrixFile(partition int) string {
	return filepath.Join(l.MatrixDir(), fmt.Sprintf("partition_%d.mat", partition))
}
func (l Layout) HistogramFile(sample string) string {
	return filepath.Join(l.root, "histograms", sample+".histo")
}

// EnsureDirs creates every directory this run's layout names.
func (l Layout) EnsureDirs(samples []string, p int) error {
	dirs := []string{l.Root(), l.MatrixDir(), filepath.Join(l.Root(), "histograms")}
	for _, s := range samples {
		dirs = append(dirs, l.SuperkDir(s), l.CountedDir(s))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	_ = p
	return nil
}

// WriteTo serializes cfg using kmio's config framing.
func (c *Config) WriteTo(w io.Writer) error {
	if err := kmio.WriteHeader(w, kmio.Header{Magic: kmio.MagicConfig, Version: kmio.CurrentVersion}); err != nil {
		return err
	}
	fw := kmio.NewFrameWriter(w, false)
	return fw.WriteFrame(encodeConfig(c))
}

// ReadConfigFrom deserializes a Config previously written by WriteTo.
func ReadConfigFrom(r io.Reader) (*Config, error) {
	if _, err := kmio.ReadHeader(r, kmio.MagicConfig); err != nil {
		return nil, err
	}
	fr := kmio.NewFrameReader(r, false)
	buf, err := fr.ReadFrame()
	if err != nil {
		return nil, err
	}
	return decodeConfig(buf)
}

// encodeConfig lays out K, M, P, CountWidth (int32 each), W (uint64),
// MinimizerOrdering (int32), MemoryBudget (int64), then the run directory
// as a u32-length-prefixed string.
func encodeConfig(c *Config) []byte {
	dir := []byte(c.RunDir)
	buf := make([]byte, 4*4+8+4+8+4+len(dir))
	off := 0
	putI32 := func(v int) {
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(v)))
		off += 4
	}
	putI32(c.K)
	putI32(c.M)
	putI32(c.P)
	putI32(c.CountWidth)
	binary.LittleEndian.PutUint64(buf[off:], c.W)
	off += 8
	putI32(int(c.MinimizerOrdering))
	binary.LittleEndian.PutUint64(buf[off:], uint64(c.MemoryBudget))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(dir)))
	off += 4
	copy(buf[off:], dir)
	return buf
}

func decodeConfig(buf []byte) (*Config, error) {
	const fixedLen = 4*4 + 8 + 4 + 8 + 4
	if len(buf) < fixedLen {
		return nil, fmt.Errorf("runconfig: truncated config record")
	}
	off := 0
	getI32 := func() int {
		v := int32(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		return int(v)
	}
	k := getI32()
	m := getI32()
	p := getI32()
	countWidth := getI32()
	w := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	ordering := Ordering(getI32())
	memoryBudget := int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	dirLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+dirLen {
		return nil, fmt.Errorf("runconfig: truncated config record")
	}
	dir := string(buf[off : off+dirLen])

	return &Config{
		K:                 k,
		M:                 m,
		P:                 p,
		W:                 w,
		MinimizerOrdering: ordering,
		CountWidth:        countWidth,
		MemoryBudget:      memoryBudget,
		RunDir:            dir,
	}, nil
}
