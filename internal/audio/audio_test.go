// Package audio_test tests the waveform tensor and WAV codec.
package audio_test

import (
	"math"
	"testing"

	"github.com/book-expert/music-service/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(samples int, freq float64) []float32 {
	out := make([]float32, samples)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/audio.SampleRate))
	}

	return out
}

func TestNewTensor_RejectsBadShapes(t *testing.T) {
	t.Parallel()

	_, err := audio.NewTensor(make([]float32, 4), 4)
	require.ErrorIs(t, err, audio.ErrInvalidRank)

	_, err = audio.NewTensor(make([]float32, 5), 2, 2)
	require.ErrorIs(t, err, audio.ErrShapeMismatch)

	tensor, err := audio.NewTensor(make([]float32, 6), 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, tensor.NumSamples())
	assert.Equal(t, 2, tensor.NumChannels())
}

func TestTensor_BatchedInsertsBatchDimension(t *testing.T) {
	t.Parallel()

	tensor, err := audio.NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)

	batched, err := tensor.Batched()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, batched.Shape)
	assert.Equal(t, 1, batched.BatchSize())

	again, err := batched.Batched()
	require.NoError(t, err)
	assert.Same(t, batched, again)
}

func TestTensor_ChannelSelectsFirstOfBatch(t *testing.T) {
	t.Parallel()

	// batch x channels x samples = 2 x 2 x 2
	tensor, err := audio.NewTensor([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2)
	require.NoError(t, err)

	first, err := tensor.Channel(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, first)

	second, err := tensor.Channel(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8}, second)

	_, err = tensor.Channel(2, 0)
	require.ErrorIs(t, err, audio.ErrIndexRange)

	first[0] = 99
	assert.InDelta(t, 1, tensor.Data[0], 0, "Channel must return a copy")
}

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()

	samples := sine(audio.SampleRate/10, 440)

	data, err := audio.EncodeWAV(samples, audio.DefaultSpec())
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))

	tensor, spec, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, audio.DefaultSpec(), spec)
	assert.Equal(t, []int{1, len(samples)}, tensor.Shape)

	for i := range samples {
		assert.InDelta(t, samples[i], tensor.Data[i], 1.0/16384)
	}
}

func TestEncodeDecodeWAV_PreservesAmplitude(t *testing.T) {
	t.Parallel()

	samples := []float32{0.5, -0.5, 0.9, -1, 0}

	data, err := audio.EncodeWAV(samples, audio.DefaultSpec())
	require.NoError(t, err)

	tensor, _, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	require.Len(t, tensor.Data, len(samples))

	for i := range samples {
		assert.InDelta(t, samples[i], tensor.Data[i], 1.0/16384, "sample %d", i)
	}
}

func TestEncodeWAV_ClipsOutOfRange(t *testing.T) {
	t.Parallel()

	data, err := audio.EncodeWAV([]float32{2, -2, float32(math.NaN())}, audio.DefaultSpec())
	require.NoError(t, err)

	tensor, _, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.InDelta(t, 1, tensor.Data[0], 0.001)
	assert.InDelta(t, -1, tensor.Data[1], 0.001)
	assert.InDelta(t, 0, tensor.Data[2], 0.001)
}

func TestEncodeTensorChannel_StereoBecomesMono(t *testing.T) {
	t.Parallel()

	left := sine(1000, 220)
	right := make([]float32, 1000)

	tensor, err := audio.NewTensor(append(append([]float32{}, left...), right...), 2, 1000)
	require.NoError(t, err)

	data, err := audio.EncodeTensorChannel(tensor)
	require.NoError(t, err)

	decoded, spec, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Channels)
	assert.Equal(t, audio.SampleRate, spec.SampleRate)
	assert.Equal(t, 1000, decoded.NumSamples())
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, err := audio.DecodeWAV([]byte("definitely not a wav file at all, just text"))
	require.ErrorIs(t, err, audio.ErrNotWAV)
}

func TestSpecValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, audio.DefaultSpec().Validate())

	cases := []audio.Spec{
		{SampleRate: 0, BitDepth: 16, Channels: 1},
		{SampleRate: 32000, BitDepth: 12, Channels: 1},
		{SampleRate: 32000, BitDepth: 16, Channels: 0},
	}
	for _, spec := range cases {
		require.ErrorIs(t, spec.Validate(), audio.ErrInvalidFormat)
	}
}
