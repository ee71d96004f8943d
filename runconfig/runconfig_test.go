package runconfig

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveAppliesDefaults(t *testing.T) {
	cfg, err := Derive(3, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, 31, cfg.K)
	require.Equal(t, 10, cfg.M)
	require.GreaterOrEqual(t, cfg.P, 1)
	require.Equal(t, uint64(0), cfg.W%64)
}

func TestDeriveRejectsZeroSamples(t *testing.T) {
	_, err := Derive(0, 1000)
	require.Error(t, err)
}

func TestDeriveHonorsOptions(t *testing.T) {
	cfg, err := Derive(1, 1000, WithK(21), WithM(8), WithCountWidth(2), WithPartitionCap(4))
	require.NoError(t, err)
	require.Equal(t, 21, cfg.K)
	require.Equal(t, 8, cfg.M)
	require.Equal(t, 2, cfg.CountWidth)
	require.LessOrEqual(t, cfg.P, 4)
}

func TestDerivePartitionCountGrowsWithDistinctKmers(t *testing.T) {
	small, err := Derive(1, 1000, WithPartitionCap(4096))
	require.NoError(t, err)
	large, err := Derive(1, 10_000_000_000, WithPartitionCap(4096))
	require.NoError(t, err)
	require.Greater(t, large.P, small.P)
}

func TestConfigRoundTripsThroughWriteAndRead(t *testing.T) {
	cfg, err := Derive(2, 500_000, WithRunDir("/tmp/a-run"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteTo(&buf))

	got, err := ReadConfigFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg.K, got.K)
	require.Equal(t, cfg.M, got.M)
	require.Equal(t, cfg.P, got.P)
	require.Equal(t, cfg.W, got.W)
	require.Equal(t, cfg.RunDir, got.RunDir)
}

func TestLayoutProducesExpectedPaths(t *testing.T) {
	cfg := &Config{RunDir: "/run"}
	layout := cfg.Layout()
	require.Equal(t, "/run/config.kmtc", layout.ConfigFile())
	require.Equal(t, "/run/partition_storage/superkmer/s1/partition_3.sk", layout.SuperkFile("s1", 3))
	require.Equal(t, "/run/partition_storage/counts/s1/partition_3.cnt", layout.CountedFile("s1", 3))
}

func TestLayoutEnsureDirsCreatesTree(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{RunDir: dir}
	layout := cfg.Layout()
	require.NoError(t, layout.EnsureDirs([]string{"s1", "s2"}, 4))

	for _, p := range []string{layout.SuperkDir("s1"), layout.CountedDir("s2"), layout.MatrixDir()} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}
