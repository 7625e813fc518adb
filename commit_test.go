package pagenorm

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// Writes some bytes, then fails, like an encoder that hit a full disk
type brokenEncoder struct{}

func (brokenEncoder) Encode(r *Raster, path string) error {
	if err := os.WriteFile(path, []byte("partial"), 0644); err != nil {
		return err
	}
	return errors.New("disk full")
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestInPlaceCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	src := makeRamp(4, 3, 1)
	require.NoError(t, InPlaceCommit{Encoder: NewFileCodec()}.Commit(src, path))
	back, err := NewFileCodec().Decode(path)
	require.NoError(t, err)
	require.True(t, src.Equal(back))

	// In-place writes leave whatever the encoder managed to write
	require.Error(t, InPlaceCommit{Encoder: brokenEncoder{}}.Commit(src, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "partial", string(raw))
}

func TestAtomicCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.tif")
	codec := NewFileCodec()
	orig := makeRamp(4, 3, 1)
	require.NoError(t, codec.Encode(orig, path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Error(t, AtomicCommit{Encoder: brokenEncoder{}}.Commit(makeRamp(2, 2, 1), path))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, []string{"page.tif"}, listDir(t, dir))

	next := makeRamp(6, 5, 3)
	require.NoError(t, AtomicCommit{Encoder: codec}.Commit(next, path))
	require.Equal(t, []string{"page.tif"}, listDir(t, dir))
	back, err := codec.Decode(path)
	require.NoError(t, err)
	require.True(t, next.Equal(back))
}

func TestAtomicCommitKeepsMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no unix permission bits")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	codec := NewFileCodec()
	require.NoError(t, codec.Encode(makeRamp(4, 3, 1), path))
	require.NoError(t, os.Chmod(path, 0600))

	require.NoError(t, AtomicCommit{Encoder: codec}.Commit(makeRamp(5, 5, 3), path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A new file gets the encoder's default mode
	fresh := filepath.Join(dir, "fresh.png")
	require.NoError(t, AtomicCommit{Encoder: codec}.Commit(makeRamp(2, 2, 1), fresh))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}
