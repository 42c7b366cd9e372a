package audio

import (
	"errors"
	"fmt"
)

// Tensor errors.
var (
	ErrInvalidRank   = errors.New("waveform tensor must be rank 2 or 3")
	ErrShapeMismatch = errors.New("waveform shape does not match data length")
	ErrIndexRange    = errors.New("waveform index out of range")
)

// Tensor is a row-major float waveform buffer. Rank 2 is channels x samples,
// rank 3 is batch x channels x samples. Values are expected in [-1, 1].
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor validates shape against data and returns the tensor.
func NewTensor(data []float32, shape ...int) (*Tensor, error) {
	tensor := &Tensor{Shape: append([]int(nil), shape...), Data: data}

	err := tensor.Validate()
	if err != nil {
		return nil, err
	}

	return tensor, nil
}

// Mono wraps a single channel of samples as a 1 x N tensor.
func Mono(samples []float32) *Tensor {
	return &Tensor{Shape: []int{1, len(samples)}, Data: samples}
}

// Validate checks rank and that the shape covers the data exactly.
func (t *Tensor) Validate() error {
	if t == nil {
		return ErrInvalidRank
	}

	if t.Rank() != 2 && t.Rank() != 3 {
		return fmt.Errorf("%w: got rank %d", ErrInvalidRank, t.Rank())
	}

	size := 1
	for _, dim := range t.Shape {
		if dim < 0 {
			return fmt.Errorf("%w: negative dimension in %v", ErrShapeMismatch, t.Shape)
		}

		size *= dim
	}

	if size != len(t.Data) {
		return fmt.Errorf("%w: shape %v needs %d values, have %d", ErrShapeMismatch, t.Shape, size, len(t.Data))
	}

	return nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Batched returns a rank-3 view of the tensor. Rank-2 input gets a leading batch
// dimension of 1; the data slice is shared.
func (t *Tensor) Batched() (*Tensor, error) {
	err := t.Validate()
	if err != nil {
		return nil, err
	}

	if t.Rank() == 3 {
		return t, nil
	}

	return &Tensor{Shape: []int{1, t.Shape[0], t.Shape[1]}, Data: t.Data}, nil
}

// BatchSize returns the batch dimension, 1 for rank-2 tensors.
func (t *Tensor) BatchSize() int {
	if t.Rank() == 3 {
		return t.Shape[0]
	}

	return 1
}

// NumChannels returns the channel dimension.
func (t *Tensor) NumChannels() int {
	return t.Shape[t.Rank()-2]
}

// NumSamples returns the time dimension length.
func (t *Tensor) NumSamples() int {
	return t.Shape[t.Rank()-1]
}

// Item returns batch entry b as a rank-2 tensor sharing the underlying data.
func (t *Tensor) Item(b int) (*Tensor, error) {
	batched, err := t.Batched()
	if err != nil {
		return nil, err
	}

	channels, samples := batched.Shape[1], batched.Shape[2]
	if b < 0 || b >= batched.Shape[0] {
		return nil, fmt.Errorf("%w: batch %d of %d", ErrIndexRange, b, batched.Shape[0])
	}

	stride := channels * samples

	return &Tensor{
		Shape: []int{channels, samples},
		Data:  batched.Data[b*stride : (b+1)*stride],
	}, nil
}

// Channel returns a copy of channel c of batch entry b.
func (t *Tensor) Channel(b, c int) ([]float32, error) {
	item, err := t.Item(b)
	if err != nil {
		return nil, err
	}

	channels, samples := item.Shape[0], item.Shape[1]
	if c < 0 || c >= channels {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrIndexRange, c, channels)
	}

	out := make([]float32, samples)
	copy(out, item.Data[c*samples:(c+1)*samples])

	return out, nil
}
