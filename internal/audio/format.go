// Package audio provides the waveform tensor, the WAV codec and the output format
// settings used by the music service.
package audio

import (
	"errors"
	"fmt"
)

// Output format of every persisted artifact.
const (
	SampleRate = 32000 // MusicGen native sample rate.
	BitDepth   = 16
	Channels   = 1
)

// FrameSamples is the number of samples produced per MusicGen token frame (50 Hz).
const FrameSamples = SampleRate / 50

// Limits for format validation.
const (
	maxSampleRate = 192000
	maxChannels   = 8
)

// Constants for error messages and formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
)

// ErrInvalidFormat is returned when a Spec is outside supported bounds.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format identifies an audio container.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// ContentType returns the MIME type of the container.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

// Spec describes a PCM stream layout.
type Spec struct {
	SampleRate int `json:"sampleRate"`
	BitDepth   int `json:"bitDepth"`
	Channels   int `json:"channels"`
}

// DefaultSpec is the layout of every artifact written by the service.
func DefaultSpec() Spec {
	return Spec{
		SampleRate: SampleRate,
		BitDepth:   BitDepth,
		Channels:   Channels,
	}
}

// Validate checks that the spec can be encoded.
func (s Spec) Validate() error {
	sampleRateErr := validateSampleRate(s.SampleRate)
	if sampleRateErr != nil {
		return sampleRateErr
	}

	bitDepthErr := validateBitDepth(s.BitDepth)
	if bitDepthErr != nil {
		return bitDepthErr
	}

	channelsErr := validateChannels(s.Channels)
	if channelsErr != nil {
		return channelsErr
	}

	return nil
}

func validateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, maxSampleRate, sampleRate)
	}

	return nil
}

func validateBitDepth(bitDepth int) error {
	switch bitDepth {
	case 8, 16, 24, 32:
		return nil
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat, bitDepth)
	}
}

func validateChannels(channels int) error {
	if channels <= 0 || channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, maxChannels, channels)
	}

	return nil
}
