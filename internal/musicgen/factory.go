package musicgen

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/config"
	"github.com/book-expert/music-service/internal/core"
)

const logReplicateCheckpoint = "Replicate backend runs %s (version %s), not the configured model %s"

// NewFactory returns the Factory for the configured backend.
func NewFactory(cfg config.ModelConfig, log *logger.Logger) (Factory, error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		return func(ctx context.Context) (core.Generator, error) {
			client := NewHTTPClient(cfg.ServiceURL, cfg.Timeout(), log)

			if !cfg.WaitForHealthy {
				err := client.HealthCheck(ctx)
				if err != nil {
					return nil, err
				}

				return client, nil
			}

			waitCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout())
			defer cancel()

			err := client.WaitForHealthy(waitCtx, cfg.HealthInterval())
			if err != nil {
				return nil, err
			}

			return client, nil
		}, nil
	case config.BackendReplicate:
		if cfg.ReplicateModel != cfg.Name {
			log.Warn(logReplicateCheckpoint, cfg.ReplicateModel, cfg.ReplicateVersion, cfg.Name)
		}

		return func(_ context.Context) (core.Generator, error) {
			return NewReplicateGenerator(cfg.ReplicateModel, cfg.ReplicateVersion, cfg.ReplicateToken)
		}, nil
	case config.BackendProcess:
		return func(_ context.Context) (core.Generator, error) {
			return NewProcessGenerator(cfg.BinaryPath, cfg.CheckpointPath, log)
		}, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnknownBackend, cfg.Backend)
	}
}
