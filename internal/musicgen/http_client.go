// Package musicgen owns the pretrained model handle and the backends that run it.
package musicgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
)

// API endpoints and paths.
const (
	apiGenerateMusic = "/v1/generate/music"
	apiHealth        = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errUnexpectedContentType   = "unexpected content type: expected audio/wav or application/json, got %s"
	errFmtServiceErrorWithCode = "model service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "model service returned non-OK status: %s, body: %s"
	errFmtSampleRate           = "%w: model returned %d Hz, expected %d Hz"
)

// Log messages.
const (
	logWaitingForModel = "Waiting for model service at %s to become healthy..."
	logModelNotReady   = "Model service not ready (%v), retrying in %s"
	logModelHealthy    = "Model service at %s is healthy"
)

// Static errors.
var (
	ErrNoDescriptions     = errors.New("at least one description is required")
	ErrEmptyBatch         = errors.New("model returned an empty batch")
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
	ErrBatchSize          = errors.New("model returned a different batch size than requested")
)

// HTTPClient talks to a model server hosting the pretrained checkpoint.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// MusicRequest defines the JSON payload of a generation request.
type MusicRequest struct {
	Model        string   `json:"model"`
	Descriptions []string `json:"descriptions"`
	Duration     int      `json:"duration"`
	UseSampling  bool     `json:"use_sampling"`
	TopK         int      `json:"top_k"`
	TopP         float64  `json:"top_p"`
	Temperature  float64  `json:"temperature"`
	SampleRate   int      `json:"sample_rate"`
}

// TensorResponse is the JSON form of a generated batch.
type TensorResponse struct {
	SampleRate int       `json:"sample_rate"`
	Shape      []int     `json:"shape"`
	Data       []float32 `json:"data"`
}

// ErrorResponse represents a structured error response from the model service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client for the model server at baseURL
// (e.g., "http://localhost:8000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Generate runs the model over descriptions and returns a batch x channels x samples
// tensor.
func (c *HTTPClient) Generate(
	ctx context.Context,
	descriptions []string,
	params core.GenerationParams,
) (*audio.Tensor, error) {
	if len(descriptions) == 0 {
		return nil, ErrNoDescriptions
	}

	requestBody, err := json.Marshal(MusicRequest{
		Model:        params.Model,
		Descriptions: descriptions,
		Duration:     params.Duration,
		UseSampling:  params.UseSampling,
		TopK:         params.TopK,
		TopP:         params.TopP,
		Temperature:  params.Temperature,
		SampleRate:   params.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateMusic,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV+", "+contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to model service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read model response: %w", err)
	}

	batch, err := c.decodeBatch(resp.Header.Get(headerContentType), body, params.SampleRate)
	if err != nil {
		return nil, err
	}

	if batch.BatchSize() != len(descriptions) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBatchSize, batch.BatchSize(), len(descriptions))
	}

	return batch, nil
}

// HealthCheck verifies that the model service is running and has loaded the model.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// WaitForHealthy blocks until HealthCheck succeeds or ctx is done.
func (c *HTTPClient) WaitForHealthy(ctx context.Context, interval time.Duration) error {
	c.log.Info(logWaitingForModel, c.baseURL)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := c.HealthCheck(ctx)
		if err == nil {
			c.log.Info(logModelHealthy, c.baseURL)

			return nil
		}

		c.log.Warn(logModelNotReady, err, interval)

		select {
		case <-ctx.Done():
			return fmt.Errorf("model service never became healthy: %w", errors.Join(ctx.Err(), err))
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) decodeBatch(contentType string, body []byte, sampleRate int) (*audio.Tensor, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf(errUnexpectedContentType, contentType)
	}

	switch mediaType {
	case contentTypeWAV, "audio/x-wav", "audio/wave":
		return decodeWAVBatch(body, sampleRate)
	case contentTypeJSON:
		var tensorResp TensorResponse

		parseErr := parseJSON(body, &tensorResp)
		if parseErr != nil {
			return nil, parseErr
		}

		if tensorResp.SampleRate != sampleRate {
			return nil, fmt.Errorf(errFmtSampleRate, ErrSampleRateMismatch, tensorResp.SampleRate, sampleRate)
		}

		tensor, tensorErr := audio.NewTensor(tensorResp.Data, tensorResp.Shape...)
		if tensorErr != nil {
			return nil, tensorErr
		}

		return tensor.Batched()
	default:
		return nil, fmt.Errorf(errUnexpectedContentType, contentType)
	}
}

// parseErrorResponse decodes a structured JSON error from the service, falling back
// to the raw body.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}

// decodeWAVBatch turns a single WAV reply into a batch of one.
func decodeWAVBatch(data []byte, sampleRate int) (*audio.Tensor, error) {
	tensor, spec, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	if spec.SampleRate != sampleRate {
		return nil, fmt.Errorf(errFmtSampleRate, ErrSampleRateMismatch, spec.SampleRate, sampleRate)
	}

	return tensor.Batched()
}
