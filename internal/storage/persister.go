// Package storage writes generated waveforms as WAV artifacts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
	"github.com/google/uuid"
)

// Naming strategies.
const (
	NamingRequest = "request"
	NamingFixed   = "fixed"
)

// FixedKey is the single slot used by fixed naming.
const FixedKey = "audio_0.wav"

const wavExtension = ".wav"

// ErrUnknownNaming is returned for a naming strategy other than request or fixed.
var ErrUnknownNaming = errors.New("unknown artifact naming")

// Artifact describes one saved WAV file.
type Artifact struct {
	Key         string    `json:"key"`
	Path        string    `json:"path,omitempty"`
	ContentType string    `json:"content_type"`
	SampleRate  int       `json:"sample_rate"`
	Channels    int       `json:"channels"`
	Samples     int       `json:"samples"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Duration returns the playback length of the artifact.
func (a *Artifact) Duration() time.Duration {
	if a.SampleRate == 0 {
		return 0
	}

	return time.Duration(a.Samples) * time.Second / time.Duration(a.SampleRate)
}

// Locator is implemented by stores that keep artifacts at a filesystem path.
type Locator interface {
	Path(key string) (string, error)
}

// Persister encodes tensors and writes them to an object store.
type Persister struct {
	store  core.ObjectStore
	naming string
	log    *logger.Logger
}

// NewPersister creates a persister writing to store with the given naming strategy.
func NewPersister(store core.ObjectStore, naming string, log *logger.Logger) (*Persister, error) {
	switch naming {
	case NamingRequest, NamingFixed:
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownNaming, naming)
	}

	return &Persister{
		store:  store,
		naming: naming,
		log:    log,
	}, nil
}

// Naming returns the configured naming strategy.
func (p *Persister) Naming() string {
	return p.naming
}

// Save writes channel 0 of the first batch item as a mono WAV file.
func (p *Persister) Save(ctx context.Context, tensor *audio.Tensor) (*Artifact, error) {
	batched, err := tensor.Batched()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	data, err := audio.EncodeTensorChannel(batched)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	key := p.nextKey()

	err = p.store.Upload(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	artifact := &Artifact{
		Key:         key,
		ContentType: audio.FormatWAV.ContentType(),
		SampleRate:  audio.SampleRate,
		Channels:    audio.Channels,
		Samples:     batched.NumSamples(),
		Size:        len(data),
		CreatedAt:   time.Now().UTC(),
	}

	if locator, ok := p.store.(Locator); ok {
		path, pathErr := locator.Path(key)
		if pathErr == nil {
			artifact.Path = path
		}
	}

	p.log.Info("Saved %s (%d samples, %d bytes)", key, artifact.Samples, artifact.Size)

	return artifact, nil
}

// Open re-reads a saved artifact.
func (p *Persister) Open(ctx context.Context, key string) ([]byte, error) {
	data, err := p.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	return data, nil
}

// Delete removes a saved artifact. A missing artifact is not an error.
func (p *Persister) Delete(ctx context.Context, key string) error {
	err := p.store.Delete(ctx, key)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	return nil
}

func (p *Persister) nextKey() string {
	if p.naming == NamingFixed {
		return FixedKey
	}

	return uuid.NewString() + wavExtension
}
