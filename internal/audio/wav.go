package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const wavFormatPCM = 1

// ErrNotWAV is returned when a payload cannot be parsed as a PCM WAV file.
var ErrNotWAV = errors.New("payload is not a readable PCM WAV file")

// EncodeWAV writes interleaved float samples as a PCM WAV file in the given layout.
func EncodeWAV(samples []float32, spec Spec) ([]byte, error) {
	specErr := spec.Validate()
	if specErr != nil {
		return nil, specErr
	}

	if len(samples)%spec.Channels != 0 {
		return nil, fmt.Errorf("%w: %d samples do not split into %d channels", ErrShapeMismatch, len(samples), spec.Channels)
	}

	clamped := make([]float32, len(samples))

	for i, sample := range samples {
		clamped[i] = clamp(sample)
	}

	out := &seekBuffer{}
	encoder := wav.NewEncoder(out, spec.SampleRate, spec.BitDepth, spec.Channels, wavFormatPCM)

	writeErr := encoder.Write(&goaudio.Float32Buffer{
		Format: &goaudio.Format{
			NumChannels: spec.Channels,
			SampleRate:  spec.SampleRate,
		},
		Data:           clamped,
		SourceBitDepth: spec.BitDepth,
	})
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finalize wav header: %w", closeErr)
	}

	return out.Bytes(), nil
}

// EncodeTensorChannel encodes channel 0 of batch 0 as a mono WAV at the default rate.
func EncodeTensorChannel(tensor *Tensor) ([]byte, error) {
	samples, err := tensor.Channel(0, 0)
	if err != nil {
		return nil, err
	}

	return EncodeWAV(samples, DefaultSpec())
}

// DecodeWAV parses a PCM WAV file into a channels x samples tensor.
func DecodeWAV(data []byte) (*Tensor, Spec, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, Spec{}, ErrNotWAV
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, Spec{}, fmt.Errorf("%w: %w", ErrNotWAV, err)
	}

	spec := Spec{
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
		Channels:   int(decoder.NumChans),
	}

	specErr := spec.Validate()
	if specErr != nil {
		return nil, Spec{}, specErr
	}

	// The decoder already yields samples normalized to [-1, 1].
	frames := len(buffer.Data) / spec.Channels
	out := make([]float32, frames*spec.Channels)

	// Deinterleave into channel-major order.
	for frame := range frames {
		for channel := range spec.Channels {
			out[channel*frames+frame] = buffer.Data[frame*spec.Channels+channel]
		}
	}

	return &Tensor{Shape: []int{spec.Channels, frames}, Data: out}, spec, nil
}

// clamp bounds a sample to [-1, 1] and maps NaN to silence.
func clamp(sample float32) float32 {
	value := float64(sample)
	if math.IsNaN(value) {
		return 0
	}

	return float32(math.Max(-1, math.Min(1, value)))
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to patch
// chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}

	copy(s.buf[s.pos:end], p)
	s.pos = end

	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}

	s.pos = int(next)

	return next, nil
}

func (s *seekBuffer) Bytes() []byte {
	return s.buf
}
