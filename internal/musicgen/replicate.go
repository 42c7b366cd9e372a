package musicgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
	"github.com/replicate/replicate-go"
)

const outputFormatWAV = "wav"

// ErrUnsupportedOutput is returned when a hosted prediction yields something other than audio.
var ErrUnsupportedOutput = errors.New("unsupported prediction output")

// RunFunc runs one hosted prediction and blocks until it is done.
type RunFunc func(ctx context.Context, input replicate.PredictionInput) (replicate.PredictionOutput, error)

// ReplicateGenerator runs the model as a hosted prediction.
type ReplicateGenerator struct {
	run          RunFunc
	modelVersion string
	httpClient   *http.Client
}

// NewReplicateGenerator creates a generator for model (e.g., "meta/musicgen:<version>").
// An empty token falls back to the REPLICATE_API_TOKEN environment variable.
func NewReplicateGenerator(model, modelVersion, token string) (*ReplicateGenerator, error) {
	options := []replicate.ClientOption{}
	if token != "" {
		options = append(options, replicate.WithToken(token))
	}

	client, err := replicate.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate client: %w", err)
	}

	run := func(ctx context.Context, input replicate.PredictionInput) (replicate.PredictionOutput, error) {
		return client.RunWithOptions(ctx, model, input, nil, replicate.WithBlockUntilDone(), replicate.WithFileOutput())
	}

	return NewReplicateGeneratorWithRunner(modelVersion, run), nil
}

// NewReplicateGeneratorWithRunner creates a generator around an existing prediction runner.
func NewReplicateGeneratorWithRunner(modelVersion string, run RunFunc) *ReplicateGenerator {
	return &ReplicateGenerator{
		run:          run,
		modelVersion: modelVersion,
		httpClient:   http.DefaultClient,
	}
}

// Generate runs one prediction per description and stacks the results.
func (g *ReplicateGenerator) Generate(
	ctx context.Context,
	descriptions []string,
	params core.GenerationParams,
) (*audio.Tensor, error) {
	if len(descriptions) == 0 {
		return nil, ErrNoDescriptions
	}

	items := make([]*audio.Tensor, 0, len(descriptions))

	for _, description := range descriptions {
		output, err := g.run(ctx, g.convertInput(description, params))
		if err != nil {
			return nil, fmt.Errorf("replicate prediction failed: %w", err)
		}

		data, err := g.readOutput(ctx, output)
		if err != nil {
			return nil, err
		}

		batch, err := decodeWAVBatch(data, params.SampleRate)
		if err != nil {
			return nil, err
		}

		item, err := batch.Item(0)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return stackBatch(items)
}

func (g *ReplicateGenerator) convertInput(description string, params core.GenerationParams) replicate.PredictionInput {
	input := replicate.PredictionInput{
		"prompt":        description,
		"duration":      params.Duration,
		"temperature":   params.Temperature,
		"output_format": outputFormatWAV,
	}

	if g.modelVersion != "" {
		input["model_version"] = g.modelVersion
	}

	if params.UseSampling {
		input["top_k"] = params.TopK
		input["top_p"] = params.TopP
	} else {
		input["top_k"] = 1
	}

	return input
}

func (g *ReplicateGenerator) readOutput(ctx context.Context, output replicate.PredictionOutput) ([]byte, error) {
	switch value := output.(type) {
	case *replicate.FileOutput:
		defer value.Close()

		data, err := io.ReadAll(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read prediction output: %w", err)
		}

		return data, nil
	case string:
		return g.fetch(ctx, value)
	case []any:
		if len(value) == 0 {
			return nil, ErrEmptyBatch
		}

		return g.readOutput(ctx, value[0])
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedOutput, output)
	}
}

func (g *ReplicateGenerator) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create output request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download prediction output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prediction output download returned status: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read prediction output: %w", err)
	}

	return data, nil
}
