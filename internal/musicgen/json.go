package musicgen

import (
	"encoding/json"
	"fmt"

	"github.com/book-expert/music-service/internal/audio"
)

// parseJSON parses JSON data into the target interface.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// stackBatch joins equally shaped rank-2 items into one batch tensor.
func stackBatch(items []*audio.Tensor) (*audio.Tensor, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	first := items[0]
	if first.Rank() != 2 {
		return nil, fmt.Errorf("%w: batch item has rank %d", audio.ErrInvalidRank, first.Rank())
	}

	data := make([]float32, 0, len(first.Data)*len(items))

	for index, item := range items {
		if item.Rank() != 2 || item.Shape[0] != first.Shape[0] || item.Shape[1] != first.Shape[1] {
			return nil, fmt.Errorf("%w: batch item %d has shape %v, want %v", audio.ErrShapeMismatch, index, item.Shape, first.Shape)
		}

		data = append(data, item.Data...)
	}

	return audio.NewTensor(data, len(items), first.Shape[0], first.Shape[1])
}
