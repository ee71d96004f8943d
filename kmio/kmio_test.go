package kmio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Magic: MagicCounted, Version: CurrentVersion, Compressed: true}
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf, MagicCounted)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestReadHeaderRejectsWrongKind(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{Magic: MagicCounted, Version: CurrentVersion}))

	_, err := ReadHeader(&buf, MagicSuperk)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestReadHeaderRejectsFutureVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{Magic: MagicState, Version: CurrentVersion + 1}))

	_, err := ReadHeader(&buf, MagicState)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReadHeaderRejectsShortInput(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte{1, 2, 3}), MagicState)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestFrameRoundTripUncompressed(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf, false)
	require.NoError(t, w.WriteFrame([]byte("hello")))
	require.NoError(t, w.WriteFrame([]byte("world!")))

	r := NewFrameReader(&buf, false)
	f1, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), f1)

	f2, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("world!"), f2)

	_, err = r.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestFrameRoundTripCompressed(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf, true)
	payload := bytes.Repeat([]byte("ACGTACGTACGT"), 100)
	require.NoError(t, w.WriteFrame(payload))

	r := NewFrameReader(&buf, true)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameReaderRejectsTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf, false)
	require.NoError(t, w.WriteFrame([]byte("hello world")))

	truncated := buf.Bytes()[:5]
	r := NewFrameReader(bytes.NewReader(truncated), false)
	_, err := r.ReadFrame()
	require.ErrorIs(t, err, ErrTruncatedFrame)
}

func TestCreateAtomicRenamesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	err := CreateAtomic(path, func(f *os.File) error {
		_, werr := f.Write([]byte("payload"))
		return werr
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestCreateAtomicRemovesTmpOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	wantErr := errors.New("boom")
	err := CreateAtomic(path, func(f *os.File) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(statErr))
}
