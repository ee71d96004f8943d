package fof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFof(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "samples.fof")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseBasic(t *testing.T) {
	path := writeFof(t, "sampleA : /data/a_R1.fq.gz ; /data/a_R2.fq.gz\nsampleB : /data/b.fq\n")
	f, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, f.Samples, 2)

	require.Equal(t, "sampleA", f.Samples[0].ID)
	require.Equal(t, []string{"/data/a_R1.fq.gz", "/data/a_R2.fq.gz"}, f.Samples[0].Paths)
	require.Equal(t, uint32(0), f.Samples[0].MinCount)

	require.Equal(t, "sampleB", f.Samples[1].ID)
}

func TestParseMinCountSuffix(t *testing.T) {
	path := writeFof(t, "sampleA : /data/a.fq ! 3\n")
	f, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, uint32(3), f.Samples[0].MinCount)
}

func TestParseSkipsBlankLines(t *testing.T) {
	path := writeFof(t, "\n\nsampleA : /data/a.fq\n\n")
	f, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, f.Samples, 1)
}

func TestParseRejectsDuplicateID(t *testing.T) {
	path := writeFof(t, "sampleA : /data/a.fq\nsampleA : /data/b.fq\n")
	_, err := Parse(path)
	require.Error(t, err)

	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, 2, ierr.Line)
}

func TestParseRejectsInvalidCharacters(t *testing.T) {
	path := writeFof(t, "sampleA : /data/[a].fq\n")
	_, err := Parse(path)
	require.Error(t, err)

	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, 1, ierr.Line)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	path := writeFof(t, "not a valid line at all\n")
	_, err := Parse(path)
	require.Error(t, err)

	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestParseRejectsMissingPaths(t *testing.T) {
	path := writeFof(t, "sampleA :\n")
	_, err := Parse(path)
	require.Error(t, err)
}
