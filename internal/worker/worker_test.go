// Package worker_test tests the NATS worker for the music service.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/pipeline"
	"github.com/book-expert/music-service/internal/storage"
	"github.com/book-expert/music-service/internal/worker"
	"github.com/google/uuid"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubject = "test.music.generate"

// mockRunner is a mock implementation of the worker's Runner.
type mockRunner struct {
	mu         sync.Mutex
	shouldFail error
	requests   []core.GenerationRequest
}

func (m *mockRunner) Run(_ context.Context, req core.GenerationRequest) (*pipeline.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.shouldFail != nil {
		return nil, m.shouldFail
	}

	return &pipeline.Result{
		Request: req,
		Artifact: &storage.Artifact{
			Key:        "generated.wav",
			SampleRate: 32000,
			Channels:   1,
			Samples:    req.Duration * 32000,
		},
	}, nil
}

func (m *mockRunner) seen() []core.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]core.GenerationRequest(nil), m.requests...)
}

func createTestNatsClient(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	cleanup := func() {
		natsConnection.Close()
		server.Shutdown()
	}

	return natsConnection, cleanup
}

func startWorker(t *testing.T, runner *mockRunner) (*nats.Conn, context.CancelFunc, <-chan error) {
	t.Helper()

	natsConnection, natsCleanup := createTestNatsClient(t)
	t.Cleanup(natsCleanup)

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	workerInstance, err := worker.NewNatsWorker(natsConnection, testSubject, "music-workers", runner, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	return natsConnection, cancel, errChan
}

// request retries until the worker's subscription is live.
func request(t *testing.T, natsConnection *nats.Conn, payload any) worker.MusicGeneratedEvent {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var replyMsg *nats.Msg

	for range 100 {
		replyMsg, err = natsConnection.Request(testSubject, data, 5*time.Second)
		if !errors.Is(err, nats.ErrNoResponders) {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent worker.MusicGeneratedEvent
	require.NoError(t, json.Unmarshal(replyMsg.Data, &replyEvent))

	return replyEvent
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	natsConnection, cancel, errChan := startWorker(t, runner)

	duration := 5
	testEvent := &worker.MusicRequestedEvent{
		Header:      newHeader(),
		Description: "a calm piano melody",
		Duration:    &duration,
	}

	replyEvent := request(t, natsConnection, testEvent)

	assert.Empty(t, replyEvent.Error)
	assert.Equal(t, "generated.wav", replyEvent.AudioKey)
	assert.Equal(t, 32000, replyEvent.SampleRate)
	assert.Equal(t, 5*32000, replyEvent.Samples)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)

	require.Len(t, runner.seen(), 1)
	assert.Equal(t, core.GenerationRequest{Description: "a calm piano melody", Duration: 5}, runner.seen()[0])

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}

func TestMessageHandler_DefaultDuration(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	natsConnection, _, _ := startWorker(t, runner)

	replyEvent := request(t, natsConnection, &worker.MusicRequestedEvent{
		Header:      newHeader(),
		Description: "drum and bass",
	})

	assert.Empty(t, replyEvent.Error)
	require.Len(t, runner.seen(), 1)
	assert.Equal(t, core.DefaultDuration, runner.seen()[0].Duration)
}

func TestMessageHandler_RunFailureReplies(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{shouldFail: core.ErrRateLimited}
	natsConnection, _, _ := startWorker(t, runner)

	testEvent := &worker.MusicRequestedEvent{Header: newHeader(), Description: "techno"}

	replyEvent := request(t, natsConnection, testEvent)

	assert.Equal(t, core.UserMessage(core.ErrRateLimited), replyEvent.Error)
	assert.Empty(t, replyEvent.AudioKey)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)
}

func TestMessageHandler_InvalidEvent(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	natsConnection, _, _ := startWorker(t, runner)

	replyEvent := request(t, natsConnection, map[string]string{"description": "no header"})

	assert.Equal(t, core.UserMessage(core.ErrInvalidRequest), replyEvent.Error)
	assert.Empty(t, runner.seen())
}
