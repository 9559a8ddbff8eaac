package natsclient

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamExecutionEvents is the durable stream capturing execution and
	// debug-session lifecycle events.
	StreamExecutionEvents = "EXECUTION_EVENTS"
	// SubjectExecutionEvents captures every event published by
	// internal/events under this prefix.
	SubjectExecutionEvents = "EXECUTION_EVENTS.>"
)

var streamSubjects = []string{SubjectExecutionEvents}

// ProvisionStreams idempotently ensures the EXECUTION_EVENTS JetStream
// stream exists. It creates the stream on first run and is a no-op if the
// stream already exists.
func (c *Client) ProvisionStreams() error {
	info, err := c.JS.StreamInfo(StreamExecutionEvents)
	if err == nil {
		_ = info
		c.Log.Info("NATS stream already exists", zap.String("stream", StreamExecutionEvents))
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamExecutionEvents,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}

	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	c.Log.Info("NATS stream provisioned",
		zap.String("stream", StreamExecutionEvents),
		zap.Strings("subjects", streamSubjects),
	)
	return nil
}
