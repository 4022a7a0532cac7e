// Package events publishes pipeline run events to NATS.
//
// Events are published to subjects of the form:
//
//	{prefix}.runs.{run_id}.{kind}
//
// where kind is one of started, loaded, embedded, retrieved, completed or
// failed. Subscribers can follow one run with "{prefix}.runs.{run_id}.>" or
// every run with "{prefix}.runs.>".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/logging"
)

// Kind identifies a pipeline stage event.
type Kind string

const (
	KindStarted   Kind = "started"
	KindLoaded    Kind = "loaded"
	KindEmbedded  Kind = "embedded"
	KindRetrieved Kind = "retrieved"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Event is one stage transition of a pipeline run.
type Event struct {
	RunID     string    `json:"run_id"`
	Kind      Kind      `json:"kind"`
	Pipeline  string    `json:"pipeline"`
	Message   string    `json:"message,omitempty"`
	Chunks    int       `json:"chunks,omitempty"`
	Hits      int       `json:"hits,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes run events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subject returns the subject an event is published to.
func Subject(prefix, runID string, kind Kind) string {
	return fmt.Sprintf("%s.runs.%s.%s", prefix, runID, kind)
}

// NATSPublisher publishes events as JSON over core NATS.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewNATSPublisher creates a publisher on an existing connection.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "medrag"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Publish sends ev. The timestamp is set when zero.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.RunID == "" {
		return fmt.Errorf("publish %s event: run id is required", ev.Kind)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}

	subject := Subject(p.prefix, ev.RunID, ev.Kind)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	p.logger.Debug(ctx, "run event published", zap.String("subject", subject))
	return nil
}

// Noop discards events.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, Event) error { return nil }

// Connect dials NATS with the reconnect settings shared by the publisher and
// the worker.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = Noop{}
)
