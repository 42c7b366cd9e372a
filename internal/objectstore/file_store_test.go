package objectstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_CreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "audio_output")

	_, err := objectstore.NewFile(dir, false)
	require.Error(t, err, "missing directory is an error without createDir")

	store, err := objectstore.NewFile(dir, true)
	require.NoError(t, err)

	path, err := store.Path("audio_0.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audio_0.wav"), path)
}

func TestFileStore_UploadOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := objectstore.NewFile(dir, false)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "audio_0.wav", []byte("first")))
	require.NoError(t, store.Upload(ctx, "audio_0.wav", []byte("second")))

	data, err := store.Download(ctx, "audio_0.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFile(t.TempDir(), false)
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../escape.wav", "a/b.wav", "bad:name.wav"} {
		_, pathErr := store.Path(key)
		require.ErrorIs(t, pathErr, objectstore.ErrInvalidKey, key)
	}
}

func TestFileStore_NotFound(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFile(t.TempDir(), false)
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "missing.wav")
	require.ErrorIs(t, err, core.ErrNotFound)

	err = store.Delete(context.Background(), "missing.wav")
	require.ErrorIs(t, err, core.ErrNotFound)
}
