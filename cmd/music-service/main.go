// main package for the music-service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/config"
)

const shutdownTimeout = 30 * time.Second

const flagConfigDesc = "Path to a TOML configuration file (defaults to the central configurator)"

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "music-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func loadConfig(path string, log *logger.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load(log)
}

func run() error {
	configPath := flag.String("config", "", flagConfigDesc)
	flag.Parse()

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := logger.New(os.TempDir(), "music-service-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration
	cfg, err := loadConfig(*configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Wire the components
	app, err := newApp(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to initialize service: %v", err)

		return err
	}

	defer func() {
		cancel()
		app.Close()
	}()

	return serve(ctx, cfg, app, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, app *app, log *logger.Logger) error {
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           app.web.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errChan := make(chan error, 2)

	go func() {
		log.System("Music-Service listening on %s (backend %s, model %s)", cfg.Server.ListenAddr, cfg.Model.Backend, cfg.Model.Name)

		listenErr := server.ListenAndServe()
		if !errors.Is(listenErr, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", listenErr)
		}
	}()

	if app.worker != nil {
		go func() {
			workerErr := app.worker.Run(ctx)
			if workerErr != nil {
				errChan <- fmt.Errorf("nats worker error: %w", workerErr)
			}
		}()
	}

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case runErr = <-errChan:
		log.Error("Service stopped: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		log.Warn("HTTP server shutdown: %v", shutdownErr)
	}

	return runErr
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
