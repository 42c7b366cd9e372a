package musicgen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/fsutil"
)

// ProcessGenerator runs a local generation binary once per description.
type ProcessGenerator struct {
	binaryPath     string
	checkpointPath string
	log            *logger.Logger
}

// NewProcessGenerator creates a generator that executes binaryPath. checkpointPath may
// be empty, in which case the binary resolves the model name itself; otherwise it must
// exist locally or under $MUSICGEN_CHECKPOINT_DIR.
func NewProcessGenerator(binaryPath, checkpointPath string, log *logger.Logger) (*ProcessGenerator, error) {
	resolved, err := exec.LookPath(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("generation binary '%s' not found: %w", binaryPath, err)
	}

	if checkpointPath != "" {
		checkpointPath, err = fsutil.ResolveCheckpoint(checkpointPath)
		if err != nil {
			return nil, err
		}
	}

	return &ProcessGenerator{
		binaryPath:     resolved,
		checkpointPath: checkpointPath,
		log:            log,
	}, nil
}

// Generate takes descriptions and returns the stacked audio by calling the binary.
func (p *ProcessGenerator) Generate(
	ctx context.Context,
	descriptions []string,
	params core.GenerationParams,
) (*audio.Tensor, error) {
	if len(descriptions) == 0 {
		return nil, ErrNoDescriptions
	}

	items := make([]*audio.Tensor, 0, len(descriptions))

	for _, description := range descriptions {
		item, err := p.generateOne(ctx, description, params)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return stackBatch(items)
}

func (p *ProcessGenerator) generateOne(
	ctx context.Context,
	description string,
	params core.GenerationParams,
) (*audio.Tensor, error) {
	tempFile, err := os.CreateTemp("", "musicgen-output-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for model output: %w", err)
	}

	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil && !os.IsNotExist(removeErr) {
			p.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	model := params.Model
	if p.checkpointPath != "" {
		model = p.checkpointPath
	}

	args := []string{
		"--model", model,
		"--description", description,
		"--duration", strconv.Itoa(params.Duration),
		"--use_sampling=" + strconv.FormatBool(params.UseSampling),
		"--top_k", strconv.Itoa(params.TopK),
		"--top_p", fmt.Sprintf("%.2f", params.TopP),
		"--temperature", fmt.Sprintf("%.2f", params.Temperature),
		"--output", tempFile.Name(),
	}

	// #nosec G204 -- arguments are validated via core.GenerationParams validation
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("generation binary execution failed: %w - output: %s", err, string(output))
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	batch, err := decodeWAVBatch(audioData, params.SampleRate)
	if err != nil {
		return nil, err
	}

	return batch.Item(0)
}
