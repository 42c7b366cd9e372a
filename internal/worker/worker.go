// Package worker provides a NATS worker that processes music generation jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/pipeline"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 2 * time.Minute

// ErrMissingWorkflowID indicates that a request event carries no workflow ID.
var ErrMissingWorkflowID = errors.New("event header must carry a workflow ID")

// Runner runs one generation request.
type Runner interface {
	Run(ctx context.Context, req core.GenerationRequest) (*pipeline.Result, error)
}

// MusicRequestedEvent asks for one generation. A missing duration selects the default.
type MusicRequestedEvent struct {
	Header      events.EventHeader `json:"header"`
	Description string             `json:"description"`
	Duration    *int               `json:"duration,omitempty"`
}

// MusicGeneratedEvent is the reply to a MusicRequestedEvent. Error is set instead of
// the audio fields when generation failed.
type MusicGeneratedEvent struct {
	Header     events.EventHeader `json:"header"`
	AudioKey   string             `json:"audio_key,omitempty"`
	SampleRate int                `json:"sample_rate,omitempty"`
	Samples    int                `json:"samples,omitempty"`
	Cached     bool               `json:"cached,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// NatsWorker listens for music jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queueGroup     string
	runner         Runner
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. An empty queueGroup makes
// every worker instance receive every message.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	queueGroup string,
	runner Runner,
	log *logger.Logger,
) (*NatsWorker, error) {
	if natsConnection == nil || runner == nil {
		return nil, errors.New("nats worker requires a connection and a runner")
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		queueGroup:     queueGroup,
		runner:         runner,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages. It returns after ctx is
// done and in-flight messages have drained.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	if w.queueGroup != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.subject, w.queueGroup, w.handleMessage)
	} else {
		sub, err = w.natsConnection.Subscribe(w.subject, w.handleMessage)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for music jobs on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)
		w.reply(msg, &MusicGeneratedEvent{
			Header: events.EventHeader{Timestamp: time.Now().UTC()},
			Error:  core.UserMessage(fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)),
		})

		return
	}

	replyEvent := w.processMusicJob(ctx, event)
	w.reply(msg, replyEvent)
}

// processMusicJob runs the pipeline and builds the reply for event.
func (w *NatsWorker) processMusicJob(ctx context.Context, event *MusicRequestedEvent) *MusicGeneratedEvent {
	req := core.GenerationRequest{Description: event.Description, Duration: core.DefaultDuration}
	if event.Duration != nil {
		req.Duration = *event.Duration
	}

	header := event.Header
	header.Timestamp = time.Now().UTC()

	result, err := w.runner.Run(ctx, req)
	if err != nil {
		w.log.Error("Failed to process music job for workflow %s: %v", event.Header.WorkflowID, err)

		return &MusicGeneratedEvent{Header: header, Error: core.UserMessage(err)}
	}

	return &MusicGeneratedEvent{
		Header:     header,
		AudioKey:   result.Artifact.Key,
		SampleRate: result.Artifact.SampleRate,
		Samples:    result.Artifact.Samples,
		Cached:     result.Cached,
	}
}

func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *MusicGeneratedEvent) {
	if msg.Reply == "" {
		return
	}

	err := w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", replyEvent.Header.WorkflowID, err)
	}
}

// publishReplyEvent marshals and responds with the MusicGeneratedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *MusicGeneratedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*MusicRequestedEvent, error) {
	var event MusicRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.Header.WorkflowID == "" {
		return nil, ErrMissingWorkflowID
	}

	return &event, nil
}
