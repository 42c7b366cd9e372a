package musicgen

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
)

// Invoker turns one validated request into one generated item.
type Invoker struct {
	provider *Provider
	defaults core.GenerationParams
	log      *logger.Logger
}

// NewInvoker creates an invoker that copies defaults into every call.
func NewInvoker(provider *Provider, defaults core.GenerationParams, log *logger.Logger) *Invoker {
	return &Invoker{
		provider: provider,
		defaults: defaults,
		log:      log,
	}
}

// Generate returns the channels x samples tensor for req.
func (i *Invoker) Generate(ctx context.Context, req core.GenerationRequest) (*audio.Tensor, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	params := i.defaults
	params.Duration = req.Duration

	err = params.Validate()
	if err != nil {
		return nil, err
	}

	generator, err := i.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	i.log.Info("Generating %ds of music for description of %d bytes", params.Duration, len(req.Description))

	batch, err := generator.Generate(ctx, []string{req.Description}, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}

	item, err := batch.Item(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}

	return item, nil
}
