// Package core defines the core business types and interfaces for the music service.
package core

import (
	"context"

	"github.com/book-expert/music-service/internal/audio"
)

// DefaultModel is the pretrained checkpoint the service generates with.
const DefaultModel = "facebook/musicgen-small"

// Generation defaults.
const (
	DefaultTopK        = 250
	DefaultTemperature = 1.0
	DefaultDuration    = 10
	MinDuration        = 0
	MaxDuration        = 20
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// GenerationRequest is the user input captured for one generation.
type GenerationRequest struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

// GenerationParams holds the sampling configuration for a single generation call.
// It travels with the call instead of living on the shared model handle.
type GenerationParams struct {
	Model       string  `json:"model"`
	UseSampling bool    `json:"use_sampling"`
	TopK        int     `json:"top_k"`
	TopP        float64 `json:"top_p"`
	Temperature float64 `json:"temperature"`
	Duration    int     `json:"duration"`
	SampleRate  int     `json:"sample_rate"`
}

// DefaultParams returns the sampling configuration used by the demo page.
func DefaultParams() GenerationParams {
	return GenerationParams{
		Model:       DefaultModel,
		UseSampling: true,
		TopK:        DefaultTopK,
		TopP:        0,
		Temperature: DefaultTemperature,
		Duration:    DefaultDuration,
		SampleRate:  audio.SampleRate,
	}
}

// Generator runs a text-to-music model over a batch of descriptions and returns a
// batch x channels x samples tensor.
type Generator interface {
	Generate(ctx context.Context, descriptions []string, params GenerationParams) (*audio.Tensor, error)
}

// HealthChecker is implemented by generators that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
