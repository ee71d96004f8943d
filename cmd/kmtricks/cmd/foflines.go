package cmd

import "github.com/shenwei356/breader"

// countFofLines counts path's lines with a buffered, chunked reader
// instead of a plain bufio.Scanner: a file of files naming thousands of
// samples is exactly the "very large line-oriented input" case
// breader.BufferedReader is for, so --verbose's size report uses it
// rather than re-parsing with fof.Parse just to get a count. Mirrors the
// teacher's dump.go breader.NewDefaultBufferedReader/chunk-range idiom.
func countFofLines(path string) (int, error) {
	reader, err := breader.NewDefaultBufferedReader(path)
	if err != nil {
		return 0, err
	}
	n := 0
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return n, chunk.Err
		}
		n += len(chunk.Data)
	}
	return n, nil
}
