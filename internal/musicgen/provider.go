package musicgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/core"
)

// ErrProviderClosed is returned by Get after Close.
var ErrProviderClosed = errors.New("model provider is closed")

// Factory loads the model and returns a ready generator.
type Factory func(ctx context.Context) (core.Generator, error)

// Provider owns the model handle. It loads the model on first use and hands the same
// generator to every caller afterwards. A failed load is not remembered, so the next
// caller retries.
type Provider struct {
	factory   Factory
	log       *logger.Logger
	sem       chan struct{}
	generator core.Generator
	closed    bool
}

// NewProvider creates a provider that loads the model through factory.
func NewProvider(factory Factory, log *logger.Logger) *Provider {
	return &Provider{
		factory: factory,
		log:     log,
		sem:     make(chan struct{}, 1),
	}
}

// Get returns the loaded generator, loading it if needed. Only one load runs at a
// time; waiting callers give up when ctx is done.
func (p *Provider) Get(ctx context.Context) (core.Generator, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrModelLoad, ctx.Err())
	}
	defer func() { <-p.sem }()

	if p.closed {
		return nil, fmt.Errorf("%w: %w", core.ErrModelLoad, ErrProviderClosed)
	}

	if p.generator != nil {
		return p.generator, nil
	}

	start := time.Now()
	p.log.Info("Loading music model...")

	generator, err := p.factory(ctx)
	if err != nil {
		p.log.Error("Failed to load music model: %v", err)

		return nil, fmt.Errorf("%w: %w", core.ErrModelLoad, err)
	}

	p.log.Info("Music model loaded in %s", time.Since(start).Round(time.Millisecond))
	p.generator = generator

	return generator, nil
}

// Ready reports whether the model is loaded and, when the generator supports it,
// whether it passes its health check. It does not wait for a load in progress.
func (p *Provider) Ready(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
	default:
		return core.ErrModelLoad
	}

	generator := p.generator
	<-p.sem

	if generator == nil {
		return core.ErrModelLoad
	}

	checker, ok := generator.(core.HealthChecker)
	if !ok {
		return nil
	}

	return checker.HealthCheck(ctx)
}

// Close releases the generator if it holds resources. Subsequent Get calls fail.
func (p *Provider) Close() error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	p.closed = true

	closer, ok := p.generator.(io.Closer)
	p.generator = nil

	if ok {
		return closer.Close()
	}

	return nil
}
