package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/objectstore"
	"github.com/book-expert/music-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPersister(t *testing.T, naming string) (*storage.Persister, string) {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	dir := filepath.Join(t.TempDir(), "audio_output")

	store, err := objectstore.NewFile(dir, true)
	require.NoError(t, err)

	persister, err := storage.NewPersister(store, naming, log)
	require.NoError(t, err)

	return persister, dir
}

func ramp(samples int) []float32 {
	out := make([]float32, samples)
	for i := range out {
		out[i] = float32(i%200)/200 - 0.5
	}

	return out
}

func TestPersister_SavesMonoWAV(t *testing.T) {
	t.Parallel()

	persister, _ := newPersister(t, storage.NamingRequest)

	// Stereo rank-3 input: only channel 0 of the first item is written.
	left := ramp(audio.SampleRate)
	right := make([]float32, audio.SampleRate)
	data := append(append([]float32{}, left...), right...)

	tensor, err := audio.NewTensor(data, 1, 2, audio.SampleRate)
	require.NoError(t, err)

	artifact, err := persister.Save(context.Background(), tensor)
	require.NoError(t, err)

	assert.Equal(t, audio.SampleRate, artifact.SampleRate)
	assert.Equal(t, 1, artifact.Channels)
	assert.Equal(t, audio.SampleRate, artifact.Samples)
	assert.Equal(t, "audio/wav", artifact.ContentType)
	assert.FileExists(t, artifact.Path)

	written, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Len(t, written, artifact.Size)

	decoded, spec, err := audio.DecodeWAV(written)
	require.NoError(t, err)
	assert.Equal(t, audio.DefaultSpec(), spec)
	assert.Equal(t, []int{1, audio.SampleRate}, decoded.Shape)
	assert.InDelta(t, left[100], decoded.Data[100], 1.0/16384)
}

func TestPersister_AcceptsRankTwo(t *testing.T) {
	t.Parallel()

	persister, _ := newPersister(t, storage.NamingRequest)

	artifact, err := persister.Save(context.Background(), audio.Mono(ramp(640)))
	require.NoError(t, err)
	assert.Equal(t, 640, artifact.Samples)
}

func TestPersister_RejectsBadRank(t *testing.T) {
	t.Parallel()

	persister, _ := newPersister(t, storage.NamingRequest)

	_, err := persister.Save(context.Background(), &audio.Tensor{Shape: []int{4}, Data: make([]float32, 4)})
	require.ErrorIs(t, err, core.ErrPersistence)
	require.ErrorIs(t, err, audio.ErrInvalidRank)
}

func TestPersister_FixedNamingOverwrites(t *testing.T) {
	t.Parallel()

	persister, dir := newPersister(t, storage.NamingFixed)
	ctx := context.Background()

	first, err := persister.Save(ctx, audio.Mono(ramp(320)))
	require.NoError(t, err)

	second, err := persister.Save(ctx, audio.Mono(ramp(640)))
	require.NoError(t, err)

	assert.Equal(t, storage.FixedKey, first.Key)
	assert.Equal(t, storage.FixedKey, second.Key)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := persister.Open(ctx, storage.FixedKey)
	require.NoError(t, err)

	decoded, _, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 640, decoded.NumSamples())
}

func TestPersister_RequestNamingIsUnique(t *testing.T) {
	t.Parallel()

	persister, dir := newPersister(t, storage.NamingRequest)
	ctx := context.Background()

	first, err := persister.Save(ctx, audio.Mono(ramp(320)))
	require.NoError(t, err)

	second, err := persister.Save(ctx, audio.Mono(ramp(320)))
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, ".wav", filepath.Ext(first.Key))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPersister_OpenMissing(t *testing.T) {
	t.Parallel()

	persister, _ := newPersister(t, storage.NamingRequest)

	_, err := persister.Open(context.Background(), "missing.wav")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = persister.Open(context.Background(), "../etc/passwd")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestPersister_Delete(t *testing.T) {
	t.Parallel()

	persister, dir := newPersister(t, storage.NamingRequest)
	ctx := context.Background()

	artifact, err := persister.Save(ctx, audio.Mono(ramp(320)))
	require.NoError(t, err)

	require.NoError(t, persister.Delete(ctx, artifact.Key))
	assert.NoFileExists(t, filepath.Join(dir, artifact.Key))

	// Deleting twice is fine.
	require.NoError(t, persister.Delete(ctx, artifact.Key))
}

func TestNewPersister_UnknownNaming(t *testing.T) {
	t.Parallel()

	_, err := storage.NewPersister(nil, "random", nil)
	require.ErrorIs(t, err, storage.ErrUnknownNaming)
}

func TestArtifact_Duration(t *testing.T) {
	t.Parallel()

	artifact := storage.Artifact{SampleRate: audio.SampleRate, Samples: 5 * audio.SampleRate}
	assert.Equal(t, "5s", artifact.Duration().String())
}
