package main

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/config"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/musicgen"
	"github.com/book-expert/music-service/internal/objectstore"
	"github.com/book-expert/music-service/internal/pipeline"
	"github.com/book-expert/music-service/internal/storage"
	"github.com/book-expert/music-service/internal/web"
	"github.com/book-expert/music-service/internal/worker"
	"github.com/nats-io/nats.go"
)

// app holds the wired service components.
type app struct {
	provider       *musicgen.Provider
	web            *web.Server
	worker         *worker.NatsWorker
	natsConnection *nats.Conn
	log            *logger.Logger
	cancelWarmUp   context.CancelFunc
	warmUpDone     chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{log: log}

	if cfg.NATS.Enabled {
		natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("music-service"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}

		a.natsConnection = natsConnection
	}

	store, err := a.newStore(cfg)
	if err != nil {
		a.Close()

		return nil, err
	}

	factory, err := musicgen.NewFactory(cfg.Model, log)
	if err != nil {
		a.Close()

		return nil, err
	}

	a.provider = musicgen.NewProvider(factory, log)
	invoker := musicgen.NewInvoker(a.provider, cfg.Params(core.DefaultDuration), log)

	persister, err := storage.NewPersister(store, cfg.Storage.Naming, log)
	if err != nil {
		a.Close()

		return nil, err
	}

	runner, err := pipeline.New(invoker, persister, pipeline.Options{
		CacheSize:         cfg.Cache.Entries(),
		RequestsPerMinute: cfg.Limits.PerMinute(),
		Burst:             cfg.Limits.Burst,
	}, log)
	if err != nil {
		a.Close()

		return nil, err
	}

	a.web, err = web.New(runner, web.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready:          a.provider.Ready,
	}, log)
	if err != nil {
		a.Close()

		return nil, err
	}

	if a.natsConnection != nil {
		a.worker, err = worker.NewNatsWorker(a.natsConnection, cfg.NATS.GenerateSubject, cfg.NATS.QueueGroup, runner, log)
		if err != nil {
			a.Close()

			return nil, err
		}
	}

	// Load the model in the background so the first request does not pay for it.
	warmCtx, cancelWarmUp := context.WithCancel(ctx)
	a.cancelWarmUp = cancelWarmUp
	a.warmUpDone = make(chan struct{})

	go func() {
		defer close(a.warmUpDone)

		_, loadErr := a.provider.Get(warmCtx)
		if loadErr != nil {
			log.Warn("Model warm-up failed, will retry on first request: %v", loadErr)
		}
	}()

	return a, nil
}

func (a *app) newStore(cfg *config.Config) (core.ObjectStore, error) {
	if cfg.Storage.Backend == config.StorageNATS {
		jetstreamContext, err := a.natsConnection.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		return objectstore.NewNats(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	}

	return objectstore.NewFile(cfg.Storage.OutputDir, *cfg.Storage.CreateDir)
}

// Close stops the warm-up, then releases the model handle and the NATS connection.
func (a *app) Close() {
	if a.cancelWarmUp != nil {
		a.cancelWarmUp()
		<-a.warmUpDone
	}

	if a.provider != nil {
		closeErr := a.provider.Close()
		if closeErr != nil {
			a.log.Warn("Failed to close model provider: %v", closeErr)
		}
	}

	if a.natsConnection != nil {
		drainErr := a.natsConnection.Drain()
		if drainErr != nil {
			a.log.Warn("Failed to drain NATS connection: %v", drainErr)
		}
	}
}
