package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/fsutil"
	"github.com/book-expert/music-service/internal/web"
)

// Flag descriptions and messages.
const (
	flagDescriptionDesc = "Text description of the music to generate"
	flagDurationDesc    = "Duration of the music in seconds (0-20)"
	flagOutputDesc      = "Output file path (.wav)"
	flagServerDesc      = "Base URL of the music service"
	flagVerboseDesc     = "Enable verbose logging"
	flagHealthDesc      = "Check music service health and exit"
)

// Flag names.
const (
	flagDescription = "description"
	flagDuration    = "duration"
	flagOutput      = "output"
	flagServer      = "server"
	flagVerbose     = "verbose"
	flagHealth      = "health"
)

// Error and log messages.
const (
	errFailedToInitLogger  = "Failed to initialize logger: %v"
	errHealthCheckFailed   = "Health check failed: %v"
	errServiceNotHealthy   = "Music service is not healthy: %v\n"
	msgServiceHealthy      = "Music service is healthy"
	errDescriptionRequired = "--description must be provided"
	errDurationRange       = "--duration must be between 0 and 20"
	errOutputNotAudio      = "--output must name a .wav file"
	errFailedToGenerate    = "Failed to generate music: %v"
	errFmtServiceStatus    = "music service returned %s: %s"
)

// Log messages.
const (
	logClientInitialized = "Music client initialized (server: %s)"
	logGenerating        = "Generating %ds of music for %q"
	logSummary           = "Summary: %s"
	logGenerated         = "Generated: %s (%s)\n"
)

// File names and paths.
const (
	logFileNameDefault = "music-client.log"
	logFileNameVerbose = "music-client-verbose.log"
	defaultOutputFile  = "audio_output/audio_0.wav"
	defaultServerURL   = "http://127.0.0.1:8080"
	requestTimeout     = 10 * time.Minute
	healthTimeout      = 10 * time.Second
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	description string
	duration    int
	output      string
	server      string
	verbose     bool
	health      bool
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run() error {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer func() { _ = clientLog.Close() }()

	client := newMusicClient(flags.server, requestTimeout)
	clientLog.Info(logClientInitialized, flags.server)

	if flags.health {
		return handleHealthCheck(client, clientLog)
	}

	err = validateArguments(flags)
	if err != nil {
		clientLog.Error("%v", err)

		return err
	}

	return generate(context.Background(), client, clientLog, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("go-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.description, flagDescription, "", flagDescriptionDesc)
	flagSet.IntVar(&flags.duration, flagDuration, core.DefaultDuration, flagDurationDesc)
	flagSet.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flagSet.StringVar(&flags.server, flagServer, defaultServerURL, flagServerDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, err
	}

	flags.server = strings.TrimRight(flags.server, "/")

	return flags, nil
}

// validateArguments checks required and bounded arguments before any request is sent.
func validateArguments(flags appFlags) error {
	if strings.TrimSpace(flags.description) == "" {
		return errors.New(errDescriptionRequired)
	}

	if flags.duration < core.MinDuration || flags.duration > core.MaxDuration {
		return errors.New(errDurationRange)
	}

	if !fsutil.IsWAVPath(flags.output) {
		return errors.New(errOutputNotAudio)
	}

	return nil
}

// handleHealthCheck performs a service health check and prints the result.
func handleHealthCheck(client *musicClient, clientLog *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	err := client.health(ctx)
	if err != nil {
		clientLog.Error(errHealthCheckFailed, err)
		fmt.Printf(errServiceNotHealthy, err)

		return err
	}

	fmt.Println(msgServiceHealthy)

	return nil
}

// generate requests the music, downloads the artifact and writes it to the output path.
func generate(ctx context.Context, client *musicClient, clientLog *logger.Logger, flags appFlags) error {
	clientLog.Info(logGenerating, flags.duration, flags.description)

	resp, err := client.generate(ctx, flags.description, flags.duration)
	if err != nil {
		clientLog.Error(errFailedToGenerate, err)

		return fmt.Errorf(errFailedToGenerate, err)
	}

	if flags.verbose {
		summary, _ := json.MarshalIndent(resp.Summary, "", "  ")
		clientLog.Info(logSummary, summary)
		fmt.Println(string(summary))
	}

	data, err := client.download(ctx, resp.AudioURL)
	if err != nil {
		clientLog.Error(errFailedToGenerate, err)

		return fmt.Errorf(errFailedToGenerate, err)
	}

	output, err := fsutil.PrepareOutput(flags.output)
	if err != nil {
		return err
	}

	err = os.WriteFile(output, data, 0o644) // #nosec G306 -- audio output is meant to be shared
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", output, err)
	}

	fmt.Printf(logGenerated, output, fsutil.DescribeAudio(resp.Samples, resp.SampleRate, int64(len(data))))

	return nil
}

// musicClient talks to the music service HTTP API.
type musicClient struct {
	baseURL    string
	httpClient *http.Client
}

func newMusicClient(baseURL string, timeout time.Duration) *musicClient {
	return &musicClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *musicClient) generate(ctx context.Context, description string, duration int) (*web.GenerateResponse, error) {
	body, err := json.Marshal(web.GenerateRequest{Description: description, Duration: &duration})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp web.GenerateResponse

	err = json.Unmarshal(data, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &resp, nil
}

func (c *musicClient) download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+audioURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	return c.do(req)
}

func (c *musicClient) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	_, err = c.do(req)

	return err
}

func (c *musicClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp web.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf(errFmtServiceStatus, resp.Status, errResp.Error)
		}

		return nil, fmt.Errorf(errFmtServiceStatus, resp.Status, strings.TrimSpace(string(data)))
	}

	return data, nil
}
