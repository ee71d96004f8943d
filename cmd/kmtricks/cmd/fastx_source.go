package cmd

import (
	"io"

	"github.com/shenwei356/bio/seqio/fastx"

	"github.com/tlemane/kmtricks-sub004/fof"
	"github.com/tlemane/kmtricks-sub004/partition"
)

// fastxSampleSource walks every path across every sample in a
// FileOfFiles, handing repart.Train one valid (all-ACGT, >=k) run at a
// time. Grounded on the teacher's unikmer/cmd/count.go fastx.Reader loop,
// generalized to span many samples' files for one training pass.
type fastxSampleSource struct {
	samples []fof.Sample
	k       int

	sampleIdx int
	pathIdx   int
	reader    *fastx.Reader
	pending   [][]byte
	openErr   error
}

func newFastxSampleSource(samples []fof.Sample, k int) *fastxSampleSource {
	return &fastxSampleSource{samples: samples, k: k}
}

func (s *fastxSampleSource) NextRun() ([]byte, bool, error) {
	for {
		if len(s.pending) > 0 {
			run := s.pending[0]
			s.pending = s.pending[1:]
			return run, true, nil
		}

		if s.reader == nil {
			if !s.advance() {
				return nil, false, s.openErr
			}
			continue
		}

		record, err := s.reader.Read()
		if err != nil {
			if err == io.EOF {
				s.reader = nil
				continue
			}
			return nil, false, err
		}
		s.pending = partition.SplitValidRuns(record.Seq.Seq, s.k)
	}
}

// advance opens the next file across samples, returning false once every
// sample's every path has been exhausted.
func (s *fastxSampleSource) advance() bool {
	for s.sampleIdx < len(s.samples) {
		paths := s.samples[s.sampleIdx].Paths
		if s.pathIdx >= len(paths) {
			s.sampleIdx++
			s.pathIdx = 0
			continue
		}
		path := paths[s.pathIdx]
		s.pathIdx++
		reader, err := fastx.NewDefaultReader(path)
		if err != nil {
			s.openErr = err
			return false
		}
		s.reader = reader
		return true
	}
	return false
}
