// Package pipeline runs one generation request from user input to a playable artifact.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/download"
	"github.com/book-expert/music-service/internal/prompt"
	"github.com/book-expert/music-service/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DownloadLabel is the text shown after "Download" in every link.
const DownloadLabel = "Audio"

// DownloadName is the filename browsers suggest when saving the artifact.
const DownloadName = storage.FixedKey

// Log messages.
const (
	logCacheHit     = "Cache hit for %s"
	logRateLimited  = "Rate limit reached, rejecting request"
	logGenerated    = "Generated %s in %s"
	logRunFailed    = "Generation pipeline failed: %v"
	logPipelineInit = "Pipeline ready (cache size %d, %d requests/minute, burst %d, naming %s)"
	logEvicted      = "Removed artifact %s"
	logEvictFailed  = "Failed to remove artifact %s: %v"
)

// Invoker produces the waveform for a validated request.
type Invoker interface {
	Generate(ctx context.Context, req core.GenerationRequest) (*audio.Tensor, error)
}

// Persister saves waveforms and reads them back.
type Persister interface {
	Save(ctx context.Context, tensor *audio.Tensor) (*storage.Artifact, error)
	Open(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Naming() string
}

// Options tunes caching and rate limiting. Zero values disable the feature.
//
// With request naming, an artifact lives as long as its cache entry; without a cache
// only the latest artifact is kept.
type Options struct {
	CacheSize         int
	RequestsPerMinute int
	Burst             int
}

// Summary echoes the captured input back to the user.
type Summary struct {
	Description string `json:"Your Description"`
	Duration    int    `json:"Selected Time Duration (in Seconds)"`
}

// Result is everything a caller needs to present one generation.
type Result struct {
	Request  core.GenerationRequest `json:"request"`
	Summary  Summary                `json:"summary"`
	Artifact *storage.Artifact      `json:"artifact"`
	Audio    []byte                 `json:"-"`
	Link     download.Link          `json:"link"`
	Cached   bool                   `json:"cached"`
	Elapsed  time.Duration          `json:"elapsed"`
}

// Pipeline runs generations one at a time behind a cache and a rate limiter.
type Pipeline struct {
	invoker      Invoker
	persister    Persister
	preprocessor *prompt.Preprocessor
	cache        *lru.Cache[string, *Result]
	limiter      *rate.Limiter
	sem          chan struct{}
	lastKey      string
	log          *logger.Logger
}

// New creates a pipeline.
func New(invoker Invoker, persister Persister, opts Options, log *logger.Logger) (*Pipeline, error) {
	pipeline := &Pipeline{
		invoker:      invoker,
		persister:    persister,
		preprocessor: prompt.NewPreprocessor(0),
		sem:          make(chan struct{}, 1),
		log:          log,
	}

	if opts.CacheSize > 0 && persister.Naming() != storage.NamingFixed {
		cache, err := lru.NewWithEvict[string, *Result](opts.CacheSize, pipeline.evicted)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}

		pipeline.cache = cache
	}

	if opts.RequestsPerMinute > 0 {
		burst := max(opts.Burst, 1)
		pipeline.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), burst)
	}

	log.Info(logPipelineInit, opts.CacheSize, opts.RequestsPerMinute, opts.Burst, persister.Naming())

	return pipeline, nil
}

// Normalize cleans the description and validates the request.
func (p *Pipeline) Normalize(req core.GenerationRequest) (core.GenerationRequest, error) {
	req.Description = p.preprocessor.Normalize(req.Description)

	err := req.Validate()
	if err != nil {
		return req, err
	}

	return req, nil
}

// Run generates, saves and links the audio for req.
func (p *Pipeline) Run(ctx context.Context, req core.GenerationRequest) (*Result, error) {
	start := time.Now()

	req, err := p.Normalize(req)
	if err != nil {
		return nil, err
	}

	key := CacheKey(req)

	if cached, ok := p.lookup(key, start); ok {
		return cached, nil
	}

	if p.limiter != nil && !p.limiter.Allow() {
		p.log.Warn(logRateLimited)

		return nil, core.ErrRateLimited
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrGeneration, ctx.Err())
	}
	defer func() { <-p.sem }()

	// A concurrent caller may have produced the same request while this one waited.
	if cached, ok := p.lookup(key, start); ok {
		return cached, nil
	}

	result, err := p.generate(ctx, req)
	if err != nil {
		p.log.Error(logRunFailed, err)

		return nil, err
	}

	result.Elapsed = time.Since(start)
	p.log.Info(logGenerated, result.Artifact.Key, result.Elapsed.Round(time.Millisecond))

	p.retain(key, result)

	return result, nil
}

// Open returns the bytes of a previously saved artifact.
func (p *Pipeline) Open(ctx context.Context, key string) ([]byte, error) {
	return p.persister.Open(ctx, key)
}

func (p *Pipeline) generate(ctx context.Context, req core.GenerationRequest) (*Result, error) {
	tensor, err := p.invoker.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	artifact, err := p.persister.Save(ctx, tensor)
	if err != nil {
		return nil, err
	}

	data, err := p.persister.Open(ctx, artifact.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	return &Result{
		Request:  req,
		Summary:  Summary{Description: req.Description, Duration: req.Duration},
		Artifact: artifact,
		Audio:    data,
		Link:     download.BuildLink(DownloadName, DownloadLabel, data),
	}, nil
}

// retain records the new artifact and removes the ones that fall out of retention.
// Callers hold p.sem.
func (p *Pipeline) retain(key string, result *Result) {
	if p.cache != nil {
		p.cache.Add(key, result)

		return
	}

	if p.persister.Naming() == storage.NamingFixed {
		return
	}

	previous := p.lastKey
	p.lastKey = result.Artifact.Key

	if previous != "" && previous != p.lastKey {
		p.remove(previous)
	}
}

func (p *Pipeline) evicted(_ string, result *Result) {
	p.remove(result.Artifact.Key)
}

func (p *Pipeline) remove(artifactKey string) {
	err := p.persister.Delete(context.Background(), artifactKey)
	if err != nil {
		p.log.Warn(logEvictFailed, artifactKey, err)

		return
	}

	p.log.Info(logEvicted, artifactKey)
}

func (p *Pipeline) lookup(key string, start time.Time) (*Result, bool) {
	if p.cache == nil {
		return nil, false
	}

	cached, ok := p.cache.Get(key)
	if !ok {
		return nil, false
	}

	p.log.Info(logCacheHit, cached.Artifact.Key)

	hit := *cached
	hit.Cached = true
	hit.Elapsed = time.Since(start)

	return &hit, true
}

// CacheKey identifies a normalized request.
func CacheKey(req core.GenerationRequest) string {
	sum := sha256.Sum256([]byte(req.Description))

	return hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(req.Duration)
}
