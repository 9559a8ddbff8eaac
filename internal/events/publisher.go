// Package events publishes best-effort lifecycle notifications over NATS
// JetStream — execution completions and debug-session starts — so other
// services can react without the core's request path depending on them.
package events

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/codetrace/internal/platform/natsclient"
)

const (
	subjectExecutionCompleted  = "EXECUTION_EVENTS.execution.completed"
	subjectDebugSessionStarted = "EXECUTION_EVENTS.debug.session_started"
)

// Publisher emits domain events. A nil Client makes every Publish call a
// no-op, so the core runs without NATS configured at all (e.g. in tests).
type Publisher struct {
	client *natsclient.Client
	logger *zap.Logger
}

func NewPublisher(client *natsclient.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

type executionCompletedPayload struct {
	Language  string    `json:"language"`
	IsError   bool      `json:"isError"`
	EventCt   int       `json:"eventCount"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionCompleted publishes a summary of a finished /execute call.
// Failures to publish are logged, never returned, so they cannot change
// the HTTP response.
func (p *Publisher) ExecutionCompleted(language string, isError bool, eventCount int) {
	p.publish(subjectExecutionCompleted, executionCompletedPayload{
		Language:  language,
		IsError:   isError,
		EventCt:   eventCount,
		Timestamp: time.Now(),
	})
}

type debugSessionStartedPayload struct {
	SessionID string    `json:"sessionId"`
	EventCt   int       `json:"eventCount"`
	Timestamp time.Time `json:"timestamp"`
}

// DebugSessionStarted publishes notice of a new debug session.
func (p *Publisher) DebugSessionStarted(sessionID string, eventCount int) {
	p.publish(subjectDebugSessionStarted, debugSessionStartedPayload{
		SessionID: sessionID,
		EventCt:   eventCount,
		Timestamp: time.Now(),
	})
}

func (p *Publisher) publish(subject string, payload any) {
	if p == nil || p.client == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to encode event payload", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.client.JS.Publish(subject, body); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
