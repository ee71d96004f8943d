package cmd

import "github.com/tlemane/kmtricks-sub004/histo"

// histoForSample allocates a fresh per-sample histogram spanning the
// same [1, 255] range kcount.CountPartition accumulates into per
// partition, so mergeHistogram can fold every partition's contribution
// into one per-sample total.
func histoForSample() *histo.Histogram {
	return histo.NewHistogram(1, 255)
}

// mergeHistogram folds src's per-abundance counters into dst; both must
// share the same [Lower, Upper] range.
func mergeHistogram(dst, src *histo.Histogram) {
	if src == nil {
		return
	}
	for i := range src.Unique {
		dst.Unique[i] += src.Unique[i]
		dst.Total[i] += src.Total[i]
	}
	dst.OOBLo += src.OOBLo
	dst.OOBHi += src.OOBHi
}
