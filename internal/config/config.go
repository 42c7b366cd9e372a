// Package config provides the configuration structure for the music-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/music-service/internal/core"
)

// Backend and naming choices.
const (
	BackendHTTP      = "http"
	BackendReplicate = "replicate"
	BackendProcess   = "process"

	StorageFile = "file"
	StorageNATS = "nats"

	NamingRequest = "request"
	NamingFixed   = "fixed"
)

// Defaults.
const (
	defaultListenAddr            = ":8080"
	defaultReadTimeoutSeconds    = 30
	defaultWriteTimeoutSeconds   = 600
	defaultServiceURL            = "http://127.0.0.1:8000"
	defaultTimeoutSeconds        = 300
	defaultStartupTimeoutSeconds = 300
	defaultHealthIntervalSeconds = 5
	defaultReplicateModel        = "meta/musicgen"
	defaultReplicateVersion      = "melody-large"
	defaultBinaryPath            = "musicgen"
	defaultOutputDir             = "audio_output"
	defaultNATSURL               = "nats://127.0.0.1:4222"
	defaultGenerateSubject       = "music.generate"
	defaultQueueGroup            = "music-workers"
	defaultBucket                = "MUSIC_AUDIO"
	defaultRequestsPerMinute     = 30
	defaultBurst                 = 2
	defaultCacheSize             = 32
	envReplicateToken            = "REPLICATE_API_TOKEN"
)

// Validation errors.
var (
	ErrUnknownBackend = errors.New("unknown model backend")
	ErrUnknownStorage = errors.New("unknown storage backend")
	ErrUnknownNaming  = errors.New("unknown artifact naming")
	ErrNATSRequired   = errors.New("nats storage requires nats.enabled")
	ErrInvalidValue   = errors.New("invalid configuration value")
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	ListenAddr          string   `toml:"listen_addr"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
	AllowedOrigins      []string `toml:"allowed_origins"`
}

// ModelConfig holds the model handle and backend configuration.
type ModelConfig struct {
	Backend               string  `toml:"backend"`
	Name                  string  `toml:"name"`
	ServiceURL            string  `toml:"service_url"`
	TimeoutSeconds        int     `toml:"timeout_seconds"`
	StartupTimeoutSeconds int     `toml:"startup_timeout_seconds"`
	HealthIntervalSeconds int     `toml:"health_interval_seconds"`
	WaitForHealthy        bool    `toml:"wait_for_healthy"`
	UseSampling           *bool   `toml:"use_sampling"`
	TopK                  int     `toml:"top_k"`
	TopP                  float64 `toml:"top_p"`
	Temperature           float64 `toml:"temperature"`
	ReplicateModel        string  `toml:"replicate_model"`
	ReplicateVersion      string  `toml:"replicate_model_version"`
	ReplicateToken        string  `toml:"replicate_token"`
	BinaryPath            string  `toml:"binary_path"`
	CheckpointPath        string  `toml:"checkpoint_path"`
}

// StorageConfig holds the artifact store configuration.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	OutputDir string `toml:"output_dir"`
	Naming    string `toml:"naming"`
	CreateDir *bool  `toml:"create_dir"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"`
	URL                    string `toml:"url"`
	GenerateSubject        string `toml:"generate_subject"`
	QueueGroup             string `toml:"queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// LimitsConfig bounds how often the model runs. requests_per_minute = 0 turns the
// limiter off; leaving it out keeps the default.
type LimitsConfig struct {
	RequestsPerMinute *int `toml:"requests_per_minute"`
	Burst             int  `toml:"burst"`
}

// CacheConfig sizes the result cache. size = 0 turns the cache off.
type CacheConfig struct {
	Size *int `toml:"size"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Model   ModelConfig   `toml:"model"`
	Storage StorageConfig `toml:"storage"`
	NATS    NATSConfig    `toml:"nats"`
	Limits  LimitsConfig  `toml:"limits"`
	Cache   CacheConfig   `toml:"cache"`
	Paths   PathsConfig   `toml:"paths"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a local TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file '%s': %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.ListenAddr, defaultListenAddr)
	setInt(&c.Server.ReadTimeoutSeconds, defaultReadTimeoutSeconds)
	setInt(&c.Server.WriteTimeoutSeconds, defaultWriteTimeoutSeconds)

	setString(&c.Model.Backend, BackendHTTP)
	setString(&c.Model.Name, core.DefaultModel)
	setString(&c.Model.ServiceURL, defaultServiceURL)
	setInt(&c.Model.TimeoutSeconds, defaultTimeoutSeconds)
	setInt(&c.Model.StartupTimeoutSeconds, defaultStartupTimeoutSeconds)
	setInt(&c.Model.HealthIntervalSeconds, defaultHealthIntervalSeconds)
	setInt(&c.Model.TopK, core.DefaultTopK)
	setString(&c.Model.ReplicateModel, defaultReplicateModel)
	setString(&c.Model.ReplicateVersion, defaultReplicateVersion)
	setString(&c.Model.ReplicateToken, os.Getenv(envReplicateToken))
	setString(&c.Model.BinaryPath, defaultBinaryPath)

	if c.Model.Temperature == 0 {
		c.Model.Temperature = core.DefaultTemperature
	}

	if c.Model.UseSampling == nil {
		c.Model.UseSampling = boolPtr(true)
	}

	setString(&c.Storage.Backend, StorageFile)
	setString(&c.Storage.OutputDir, defaultOutputDir)
	setString(&c.Storage.Naming, NamingRequest)

	if c.Storage.CreateDir == nil {
		c.Storage.CreateDir = boolPtr(true)
	}

	setString(&c.NATS.URL, defaultNATSURL)
	setString(&c.NATS.GenerateSubject, defaultGenerateSubject)
	setString(&c.NATS.QueueGroup, defaultQueueGroup)
	setString(&c.NATS.AudioObjectStoreBucket, defaultBucket)

	if c.Limits.RequestsPerMinute == nil {
		c.Limits.RequestsPerMinute = intPtr(defaultRequestsPerMinute)
	}

	setInt(&c.Limits.Burst, defaultBurst)

	if c.Cache.Size == nil {
		c.Cache.Size = intPtr(defaultCacheSize)
	}

	setString(&c.Paths.BaseLogsDir, os.TempDir())
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case BackendHTTP, BackendReplicate, BackendProcess:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownBackend, c.Model.Backend)
	}

	switch c.Storage.Backend {
	case StorageFile:
	case StorageNATS:
		if !c.NATS.Enabled {
			return ErrNATSRequired
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownStorage, c.Storage.Backend)
	}

	switch c.Storage.Naming {
	case NamingRequest, NamingFixed:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownNaming, c.Storage.Naming)
	}

	paramsErr := c.Params(core.DefaultDuration).Validate()
	if paramsErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, paramsErr)
	}

	if c.Limits.PerMinute() < 0 || c.Limits.Burst < 0 || c.Cache.Entries() < 0 {
		return fmt.Errorf("%w: limits and cache size must be non-negative", ErrInvalidValue)
	}

	return nil
}

// Params returns the generation parameters configured for a request of duration seconds.
func (c *Config) Params(duration int) core.GenerationParams {
	params := core.DefaultParams()
	params.Model = c.Model.Name
	params.TopK = c.Model.TopK
	params.TopP = c.Model.TopP
	params.Temperature = c.Model.Temperature
	params.Duration = duration

	if c.Model.UseSampling != nil {
		params.UseSampling = *c.Model.UseSampling
	}

	return params
}

// PerMinute returns the configured rate, 0 when the limiter is off.
func (l LimitsConfig) PerMinute() int {
	if l.RequestsPerMinute == nil {
		return 0
	}

	return *l.RequestsPerMinute
}

// Entries returns the configured cache size, 0 when the cache is off.
func (c CacheConfig) Entries() int {
	if c.Size == nil {
		return 0
	}

	return *c.Size
}

// Timeout returns the per-request model timeout.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// StartupTimeout returns how long the provider waits for the model to become ready.
func (m ModelConfig) StartupTimeout() time.Duration {
	return time.Duration(m.StartupTimeoutSeconds) * time.Second
}

// HealthInterval returns the delay between readiness probes.
func (m ModelConfig) HealthInterval() time.Duration {
	return time.Duration(m.HealthIntervalSeconds) * time.Second
}

func setString(target *string, fallback string) {
	if *target == "" {
		*target = fallback
	}
}

func setInt(target *int, fallback int) {
	if *target == 0 {
		*target = fallback
	}
}

func intPtr(value int) *int {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}
